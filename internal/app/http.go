package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"folio/engine/internal/domain"
	"folio/engine/internal/logging"
	"folio/engine/internal/metrics"
)

// HTTPServer is the operations surface: liveness, readiness, metrics and
// read-only document introspection. Document mutations arrive as workflow
// signals, never over HTTP.
type HTTPServer struct {
	service *Service
	metrics *metrics.Metrics
	logger  logging.Logger
}

func NewHTTPServer(service *Service, m *metrics.Metrics, logger logging.Logger) *HTTPServer {
	if logger == nil {
		logger = logging.New("ops-http")
	}
	return &HTTPServer{service: service, metrics: m, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.handle)
	return s.withMiddleware(mux)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if r.URL.Path == "/healthz" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.URL.Path == "/readyz" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": check(s.service.Ping(ctx)),
		}
		if cache, ok := s.service.previews.(pinger); ok {
			checks["cache"] = check(cache.Ping(ctx))
		}
		for _, result := range checks {
			if result.(map[string]any)["status"] != "ok" {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "v1" && parts[1] == "documents" {
		s.handleDocument(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, documentID string, parts []string) {
	ctx := r.Context()
	switch {
	case len(parts) == 1 && parts[0] == "state":
		state, err := s.service.DocumentState(ctx, documentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, state)

	case len(parts) == 1 && parts[0] == "merge-status":
		version, err := versionParam(r, "version")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		status, err := s.service.MergeStatus(ctx, documentID, version)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)

	case len(parts) == 1 && parts[0] == "revisions":
		items, err := s.service.ListRevisions(ctx, documentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out := make([]revisionView, 0, len(items))
		for _, item := range items {
			out = append(out, newRevisionView(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out})

	case len(parts) == 2 && parts[0] == "revisions":
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || version < 1 {
			writeError(w, http.StatusBadRequest, "INVALID_VERSION", "Version must be a positive integer", nil)
			return
		}
		item, err := s.service.GetRevision(ctx, documentID, version)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newRevisionView(item))

	case len(parts) == 1 && parts[0] == "diff":
		from, err := versionParam(r, "from")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		to, err := versionParam(r, "to")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		result, err := s.service.DiffRevisions(ctx, documentID, from, to)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorw("request failed", "request_id", requestIDFrom(r.Context()), "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("Cache-Control", "no-store")
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Infow("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func check(err error) map[string]any {
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok"}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// versionParam reads an optional non-negative version query parameter.
func versionParam(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return 0, domain.Validation("INVALID_VERSION", name+" must be a non-negative integer", map[string]any{name: raw})
	}
	return version, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) && domainErr.Kind != domain.KindInternal {
		return httpStatus(err), domainErr.Code, domainErr.Message, domainErr.Details
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
