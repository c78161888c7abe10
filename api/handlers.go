package api

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/payload"
	"github.com/rbaliyan/kewtag/render"
	"github.com/rbaliyan/kewtag/store"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNewCode handles GET /api/codes?prefix=AST
func (h *Handler) handleNewCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.svc.NewCode(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

type tagRequest struct {
	Kind     kewtag.Kind     `json:"kind"`
	ID       int64           `json:"id"`
	Fidelity render.Fidelity `json:"fidelity"`
}

type tagResponse struct {
	Payload map[string]any `json:"payload"`
	Text    string         `json:"text"`
	Image   string         `json:"image,omitempty"` // data URI
}

// handleTag handles POST /api/tags. With Accept: image/png the label image
// is returned as is; otherwise the payload, its text and the image as a
// data URI are encoded with the codec negotiated from Accept.
func (h *Handler) handleTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	fidelity, err := render.ParseFidelity(string(req.Fidelity))
	if err != nil {
		writeErr(w, err)
		return
	}
	res, err := h.svc.Tag(r.Context(), req.Kind, req.ID, fidelity)
	if err != nil {
		writeErr(w, err)
		return
	}

	accept := r.Header.Get("Accept")
	if acceptsImage(accept, res.Image.ContentType) {
		writeImage(w, res.Image)
		return
	}
	writeEncoded(w, http.StatusOK, payload.Negotiate(accept), tagResponse{
		Payload: res.Payload.Fields(),
		Text:    res.Text,
		Image:   res.Image.DataURI(),
	})
}

// handleRecordTag handles GET /api/{collection}/{id}/tag?fidelity=print
func (h *Handler) handleRecordTag(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := pathRecord(w, r)
	if !ok {
		return
	}
	fidelity, err := render.ParseFidelity(r.URL.Query().Get("fidelity"))
	if err != nil {
		writeErr(w, err)
		return
	}
	res, err := h.svc.Tag(r.Context(), kind, id, fidelity)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeImage(w, res.Image)
}

type scanRequest struct {
	Text string `json:"text"`
}

type scanResponse struct {
	Payload     *kewtag.Payload `json:"payload"`
	Record      *store.Record   `json:"record"`
	CodeMatches bool            `json:"code_matches"`
}

// handleScan handles POST /api/tags/scan
func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.svc.Scan(r.Context(), req.Text)
	if err != nil {
		if failure := kewtag.ClassifyError(err); failure != kewtag.FailureUnknown {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:   failure.Message(),
				Failure: failure.String(),
			})
			return
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{
		Payload:     res.Payload,
		Record:      res.Record,
		CodeMatches: res.CodeMatches,
	})
}

// handleList handles GET /api/{collection}
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Kind = collections[mux.Vars(r)["collection"]]

	page, err := h.svc.Store().List(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	if page.Records == nil {
		page.Records = []*store.Record{}
	}
	writeJSON(w, http.StatusOK, page)
}

// handleCreate handles POST /api/{collection}
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rec store.Record
	if err := decodeBody(w, r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rec.Kind = collections[mux.Vars(r)["collection"]]
	rec.ID = 0

	created, err := h.svc.Create(r.Context(), &rec)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGet handles GET /api/{collection}/{id}
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := pathRecord(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Store().Get(r.Context(), kind, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUpdate handles PATCH /api/{collection}/{id}
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := pathRecord(w, r)
	if !ok {
		return
	}
	var patch store.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rec, err := h.svc.Store().Update(r.Context(), kind, id, patch)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDelete handles DELETE /api/{collection}/{id}
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := pathRecord(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), kind, id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathRecord(w http.ResponseWriter, r *http.Request) (kewtag.Kind, int64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return "", 0, false
	}
	return collections[vars["collection"]], id, true
}

// parseFilter reads store.Filter fields from query parameters.
func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Category:  q.Get("category"),
		Status:    q.Get("status"),
		Condition: q.Get("condition"),
		Location:  q.Get("location"),
		Query:     q.Get("q"),
	}

	sort, err := store.ParseSort(q.Get("sort"))
	if err != nil {
		return f, err
	}
	f.SortBy = sort

	switch q.Get("order") {
	case "", "asc":
	case "desc":
		f.OrderDesc = true
	default:
		return f, errInvalidParam("order")
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errInvalidParam("offset")
		}
		f.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errInvalidParam("limit")
		}
		f.Limit = n
	}
	return f, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string {
	return "invalid " + string(e) + " parameter"
}

// acceptsImage reports whether the Accept header names contentType.
func acceptsImage(accept, contentType string) bool {
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == contentType {
			return true
		}
	}
	return false
}
