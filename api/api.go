// Package api exposes the tag service over HTTP.
//
// Routes:
//
//	GET    /health
//	GET    /api/codes?prefix=AST                  mint a unique code
//	POST   /api/tags                              {kind,id,fidelity} -> tag
//	POST   /api/tags/scan                         {text} -> payload + record
//	GET    /api/{collection}                      list with filter params
//	POST   /api/{collection}                      create
//	GET    /api/{collection}/{id}                 read
//	PATCH  /api/{collection}/{id}                 partial update
//	DELETE /api/{collection}/{id}                 delete
//	GET    /api/{collection}/{id}/tag?fidelity=   PNG label
//
// Collections are assets, inventory, locations and units. Errors are JSON
// objects of the form {"error": "..."}; scan decode failures add a
// "failure" field naming the failure class.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/ratelimit"
	"github.com/rbaliyan/kewtag/tagging"
)

// collections maps URL collection names to entity kinds.
var collections = map[string]kewtag.Kind{
	"assets":    kewtag.KindAsset,
	"inventory": kewtag.KindInventory,
	"locations": kewtag.KindLocation,
	"units":     kewtag.KindUnit,
}

const collectionPattern = "{collection:assets|inventory|locations|units}"

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for request logs.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithScanLimiter rate limits POST /api/tags/scan per client address.
// Unlimited by default.
func WithScanLimiter(l ratelimit.Limiter) Option {
	return func(h *Handler) {
		if l != nil {
			h.scanLimiter = l
		}
	}
}

// Handler implements http.Handler for the tag service.
type Handler struct {
	svc         *tagging.Service
	router      *mux.Router
	logger      *slog.Logger
	scanLimiter ratelimit.Limiter
}

// New creates the HTTP handler.
func New(svc *tagging.Service, opts ...Option) *Handler {
	h := &Handler{
		svc:         svc,
		router:      mux.NewRouter(),
		logger:      slog.Default(),
		scanLimiter: ratelimit.Unlimited{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "api")

	r := h.router
	r.Use(h.logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/codes", h.handleNewCode).Methods(http.MethodGet)
	api.HandleFunc("/tags", h.handleTag).Methods(http.MethodPost)
	api.Handle("/tags/scan", h.limitScans(http.HandlerFunc(h.handleScan))).Methods(http.MethodPost)

	api.HandleFunc("/"+collectionPattern, h.handleList).Methods(http.MethodGet)
	api.HandleFunc("/"+collectionPattern, h.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/"+collectionPattern+"/{id:[0-9]+}", h.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/"+collectionPattern+"/{id:[0-9]+}", h.handleUpdate).Methods(http.MethodPatch)
	api.HandleFunc("/"+collectionPattern+"/{id:[0-9]+}", h.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/"+collectionPattern+"/{id:[0-9]+}/tag", h.handleRecordTag).Methods(http.MethodGet)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}
