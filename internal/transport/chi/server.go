// Package chi is the HTTP transport: a thin JSON layer over the session,
// with sentinel-to-status error mapping and no business logic of its own.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/group"
	"github.com/openpano/tourdex/internal/index"
	logpkg "github.com/openpano/tourdex/internal/logger"
	"github.com/openpano/tourdex/internal/metrics"
	"github.com/openpano/tourdex/internal/session"
)

// maxConfigPatchBytes caps the config update body size.
const maxConfigPatchBytes = 1 << 20

// ErrorCode is the machine-readable error discriminator in error responses.
type ErrorCode string

// Error response codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeQueryTooShort    ErrorCode = "query_too_short"
	CodeEntryNotFound    ErrorCode = "entry_not_found"
	CodeIndexNotReady    ErrorCode = "index_not_ready"
	CodeSourceAbsent     ErrorCode = "source_absent"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HitResponse is one scored entry in a search response.
type HitResponse struct {
	domain.IndexEntry
	Score float64 `json:"score"`
}

// GroupResponse is one display group of hits.
type GroupResponse struct {
	Key   string        `json:"key"`
	Kind  domain.Kind   `json:"kind"`
	Items []HitResponse `json:"items"`
}

// SearchResponse is the grouped answer to one query.
type SearchResponse struct {
	Query  string          `json:"query"`
	Total  int             `json:"total"`
	Groups []GroupResponse `json:"groups"`
}

// EntryListResponse lists the active index contents.
type EntryListResponse struct {
	Items []domain.IndexEntry `json:"items"`
	Total int                 `json:"total"`
}

// DispatchRequest addresses one entry for navigation.
type DispatchRequest struct {
	Source        domain.Source `json:"source"`
	Identifier    string        `json:"identifier"`
	SequenceIndex int           `json:"sequence_index"`
}

// RebuildResponse reports the size of the freshly built index.
type RebuildResponse struct {
	Entries int `json:"entries"`
}

// ConfigUpdateResponse reports whether the patch triggered a rebuild.
type ConfigUpdateResponse struct {
	Rebuilt bool `json:"rebuilt"`
}

// HealthResponse is the readiness report.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Pinger is the optional cache connectivity probe consumed by the health
// endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the session over HTTP.
type Server struct {
	session       *session.Session
	cache         Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. cache may be nil (no cache check in
// health).
func NewServer(sess *session.Session, cache Pinger, logger *zap.Logger) *Server {
	s := &Server{
		session: sess,
		cache:   cache,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrQueryTooShort, http.StatusBadRequest, CodeQueryTooShort),
		sentinelHandler(domain.ErrEntryNotFound, http.StatusNotFound, CodeEntryNotFound),
		sentinelHandler(domain.ErrNoIndex, http.StatusServiceUnavailable, CodeIndexNotReady),
		sentinelHandler(domain.ErrSourceAbsent, http.StatusUnprocessableEntity, CodeSourceAbsent),
	}
	return s
}

// Routes mounts all endpoints on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.Search)
		r.Get("/entries", s.ListEntries)
		r.Post("/dispatch", s.Dispatch)
		r.Post("/rebuild", s.Rebuild)
		r.Patch("/config", s.UpdateConfig)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Search handles GET /api/v1/search?q=term.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "query parameter q is required")
		return
	}

	groups, err := s.session.Groups(r.Context(), term)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	resp := SearchResponse{Query: term, Groups: make([]GroupResponse, len(groups))}
	for i, g := range groups {
		resp.Groups[i] = groupToResponse(g)
		resp.Total += len(g.Hits)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListEntries handles GET /api/v1/entries.
func (s *Server) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.session.Entries(r.Context())
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, EntryListResponse{Items: entries, Total: len(entries)})
}

// Dispatch handles POST /api/v1/dispatch.
func (s *Server) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "source is required")
		return
	}

	if err := s.session.Dispatch(r.Context(), req.Source, req.Identifier, req.SequenceIndex); err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rebuild handles POST /api/v1/rebuild.
func (s *Server) Rebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Rebuild(r.Context()); err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	entries, err := s.session.Entries(r.Context())
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, RebuildResponse{Entries: len(entries)})
}

// UpdateConfig handles PATCH /api/v1/config. The body is a YAML patch merged
// onto the active configuration.
func (s *Server) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	patch, err := io.ReadAll(io.LimitReader(r.Body, maxConfigPatchBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "read body: "+err.Error())
		return
	}
	if len(patch) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "config patch body is required")
		return
	}

	rebuilt, err := s.session.UpdateConfig(r.Context(), patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ConfigUpdateResponse{Rebuilt: rebuilt})
}

// HealthCheck handles GET /health. The index check reports readiness: it is
// down until the first successful rebuild.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if _, err := s.session.Entries(r.Context()); err != nil {
		checks["index"] = "down"
		healthy = false
	} else {
		checks["index"] = "up"
	}

	if s.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cache.Ping(ctx); err != nil {
			checks["cache"] = "down"
			healthy = false
		} else {
			checks["cache"] = "up"
		}
	}

	status, httpStatus := "healthy", http.StatusOK
	if !healthy {
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: status, Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func groupToResponse(g group.Group) GroupResponse {
	resp := GroupResponse{Key: g.Key, Kind: g.Kind, Items: make([]HitResponse, len(g.Hits))}
	for i, h := range g.Hits {
		resp.Items[i] = hitToResponse(h)
	}
	return resp
}

func hitToResponse(h index.Hit) HitResponse {
	return HitResponse{IndexEntry: h.Entry, Score: h.Score}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrQueryTooShort,
		domain.ErrEntryNotFound,
		domain.ErrNoIndex,
		domain.ErrSourceAbsent,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContext(ctx)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// Router assembles the full middleware stack and routes. apiKeys enables
// bearer authentication when non-empty.
func Router(s *Server, apiKeys []string, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())
	s.Routes(r)
	return r
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain
// text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates
// X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
