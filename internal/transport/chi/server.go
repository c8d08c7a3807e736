// Package chi exposes the answering pipeline over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kitab-cloud/isnad/internal/domain"
	answeruc "github.com/kitab-cloud/isnad/internal/usecase/answer"
	healthuc "github.com/kitab-cloud/isnad/internal/usecase/health"
)

const maxRequestBytes = 1 << 20 // 1 MB

// Error codes returned to clients.
const (
	codeBadRequest         = "bad_request"
	codeValidationFailed   = "validation_failed"
	codeServiceUnavailable = "service_unavailable"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type answerRequest struct {
	Question    string `json:"question"`
	Constraints struct {
		Language         string   `json:"language,omitempty"`
		MaxSources       int      `json:"max_sources,omitempty"`
		PreferredSources []string `json:"preferred_sources,omitempty"`
	} `json:"constraints"`
}

// Server holds the HTTP handlers.
type Server struct {
	answers *answeruc.Service
	health  *healthuc.Service
	logger  *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(answers *answeruc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{answers: answers, health: health, logger: logger}
}

// Routes registers all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/answer", s.Answer)
	r.Get("/healthz", s.Healthz)
	r.Get("/readyz", s.Readyz)
	r.Get("/metrics", s.Metrics)
}

// Answer handles POST /v1/answer. A pipeline refusal is a normal 200
// response; only a retrieval-layer outage maps to 503 so clients can tell
// "no good answer" from "system broken".
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "question is required")
		return
	}

	constraints := domain.Constraints{
		Language:         req.Constraints.Language,
		MaxSources:       req.Constraints.MaxSources,
		PreferredSources: req.Constraints.PreferredSources,
	}

	ans, err := s.answers.Answer(r.Context(), req.Question, constraints)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ans)
}

// Healthz handles GET /healthz (liveness).
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz (readiness).
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		s.logger.Warn("Retrieval unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, codeServiceUnavailable, "retrieval unavailable")
	case errors.Is(err, domain.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
