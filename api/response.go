package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/payload"
	"github.com/rbaliyan/kewtag/render"
	"github.com/rbaliyan/kewtag/reservation"
	"github.com/rbaliyan/kewtag/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Failure string `json:"failure,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeEncoded(w, status, payload.JSON{}, v)
}

func writeEncoded(w http.ResponseWriter, status int, codec payload.Codec, v any) {
	data, err := codec.Encode(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	data, _ := json.Marshal(errorResponse{Error: message})
	w.Header().Set("Content-Type", payload.ContentTypeJSON)
	w.WriteHeader(status)
	w.Write(data)
}

func writeImage(w http.ResponseWriter, img *render.Image) {
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

// writeErr maps service errors to HTTP status codes. Codec failures also
// carry their failure class.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	f := kewtag.ClassifyError(err)
	if f == kewtag.FailureUnknown || f == kewtag.FailureNone {
		writeError(w, status, err.Error())
		return
	}
	data, _ := json.Marshal(errorResponse{Error: err.Error(), Failure: f.String()})
	w.Header().Set("Content-Type", payload.ContentTypeJSON)
	w.WriteHeader(status)
	w.Write(data)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidRecord),
		errors.Is(err, store.ErrInvalidFilter),
		errors.Is(err, render.ErrInvalidFidelity):
		return http.StatusBadRequest
	case errors.Is(err, kewtag.ErrNoRenderer):
		return http.StatusNotImplemented
	case kewtag.ClassifyError(err) != kewtag.FailureUnknown:
		return http.StatusUnprocessableEntity
	case errors.Is(err, reservation.ErrCodeCollision),
		errors.Is(err, store.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
