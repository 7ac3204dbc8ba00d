package chi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/annai-dev/annai/internal/domain"
	"github.com/annai-dev/annai/internal/metrics"
	"github.com/annai-dev/annai/internal/ratelimit"
	askuc "github.com/annai-dev/annai/internal/usecase/ask"
	healthuc "github.com/annai-dev/annai/internal/usecase/health"
	"github.com/annai-dev/annai/internal/version"
)

// Error codes returned to clients.
const (
	codeBadRequest         = "bad_request"
	codeValidationFailed   = "validation_failed"
	codeRateLimited        = "rate_limited"
	codeBackendUnavailable = "backend_unavailable"
	codeInternalError      = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer   string `json:"answer"`
	Fallback bool   `json:"fallback"`
}

// Diagnostics is the static operational state echoed by GET /diagz.
// It carries no secrets.
type Diagnostics struct {
	ArtifactPath   string  `json:"artifact_path"`
	ArtifactLoaded bool    `json:"artifact_loaded"`
	Backend        string  `json:"backend"`
	Chunks         int     `json:"chunks"`
	Dimensions     int     `json:"dimensions"`
	EmbeddingModel string  `json:"embedding_model"`
	ChatModel      string  `json:"chat_model"`
	Threshold      float64 `json:"similarity_threshold"`
	TopK           int     `json:"top_k"`
	Version        string  `json:"version"`
}

// Server exposes the question-answering API over HTTP.
type Server struct {
	ask           *askuc.Service
	health        *healthuc.Service
	limiter       *ratelimit.Limiter
	diag          Diagnostics
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ask *askuc.Service,
	health *healthuc.Service,
	limiter *ratelimit.Limiter,
	diag Diagnostics,
	logger *zap.Logger,
) *Server {
	diag.Version = version.Version
	s := &Server{
		ask:     ask,
		health:  health,
		limiter: limiter,
		diag:    diag,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusBadGateway, codeBackendUnavailable),
	}
	return s
}

// Routes registers the API handlers on the given router.
func (s *Server) Routes(r chirouter.Router) {
	r.Post("/ask", s.Ask)
	r.Get("/healthz", s.Liveness)
	r.Get("/readyz", s.Readiness)
	r.Get("/diagz", s.Diagz)
	r.Get("/metrics", s.Metrics)
}

// Ask handles POST /ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	identity := clientIdentity(r)
	if !s.limiter.Allow(identity) {
		metrics.RateLimitDecisionsTotal.WithLabelValues("denied").Inc()
		s.handleDomainError(w, domain.ErrRateLimited)
		return
	}
	metrics.RateLimitDecisionsTotal.WithLabelValues("admitted").Inc()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	answer, err := s.ask.Ask(r.Context(), req.Question)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{Answer: answer.Text, Fallback: answer.Fallback})
}

// Liveness handles GET /healthz. It only proves the process is serving.
func (s *Server) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Readiness handles GET /readyz with a per-component report.
func (s *Server) Readiness(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Diagz handles GET /diagz.
func (s *Server) Diagz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.diag)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// clientIdentity keys rate limiting by client IP. Unresolvable addresses
// share one bucket rather than bypassing the limiter.
func clientIdentity(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return ratelimit.DefaultIdentity
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrRateLimited,
		domain.ErrBackendUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
