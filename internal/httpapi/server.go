// Package httpapi binds the cache operations to HTTP routes.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/rs/zerolog"

	"github.com/leonardcser/readthrough/internal/cache"
)

// maxBodySize bounds PUT bodies.
const maxBodySize = 2 << 20

type setRequest struct {
	Value *string `json:"value"`
}

type purgeResponse struct {
	Deleted int `json:"deleted"`
}

// Handler serves the cache API.
type Handler struct {
	api     cache.API
	log     zerolog.Logger
	mux     *http.ServeMux
	metrics http.Handler
}

// Option customizes a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithMetrics exposes h on GET /metrics.
func WithMetrics(metrics http.Handler) Option {
	return func(h *Handler) { h.metrics = metrics }
}

// New returns a Handler routing to api.
func New(api cache.API, opts ...Option) *Handler {
	h := &Handler{api: api, log: zerolog.Nop(), mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}

	// {key...} so keys may contain escaped slashes, e.g. URL keys.
	h.mux.HandleFunc("GET /keys/{key...}", h.getKey)
	h.mux.HandleFunc("PUT /keys/{key...}", h.setKey)
	h.mux.HandleFunc("DELETE /keys/{key...}", h.deleteKey)
	h.mux.HandleFunc("GET /keys", h.getKeys)
	h.mux.HandleFunc("DELETE /keys", h.purge)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	h.log.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Dur("duration", time.Since(start)).
		Msg("request")
}

func (h *Handler) getKey(w http.ResponseWriter, r *http.Request) {
	entry, err := h.api.GetKey(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) setKey(w http.ResponseWriter, r *http.Request) {
	var req setRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, errors.Wrap(err, errors.CodeInvalidInput, "invalid request body"))
		return
	}
	if req.Value == nil {
		h.writeError(w, errors.New(errors.CodeInvalidInput, `request body must contain "value"`))
		return
	}
	entry, err := h.api.SetKey(r.Context(), r.PathValue("key"), *req.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) deleteKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	entry, found, err := h.api.DeleteKey(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		h.writeError(w, errors.WithContext(errors.New(errors.CodeNotFound, "key not found"), "key", key))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) getKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.api.GetKeys(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	n, err := h.api.PurgeCache(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purgeResponse{Deleted: n})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errors.ToJSON(err))
}

// StatusFor maps an error code to the response status.
func StatusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeTimeout:
		return http.StatusGatewayTimeout
	case errors.CodeDatabase, cache.CodeValueGeneration:
		return http.StatusBadGateway
	case cache.CodeInitialization, errors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
