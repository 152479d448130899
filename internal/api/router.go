// Package api exposes grading over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kcay/local-ai-grader/internal/application"
)

// Grader runs one grading attempt. *application.Orchestrator implements it.
type Grader interface {
	Grade(ctx context.Context, in application.GradeInput) application.Outcome
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options configures the router. Metrics and Health may be nil.
type Options struct {
	Grader  Grader
	Metrics http.Handler
	Health  HealthCheck
	Logger  zerolog.Logger
}

type handler struct {
	grader Grader
	health HealthCheck
	logger zerolog.Logger
}

// NewRouter builds the HTTP routes:
//
//	POST /v1/assignments/{assignmentID}/submissions/{submissionID}/grade
//	GET  /metrics
//	GET  /healthz
func NewRouter(opts Options) http.Handler {
	h := &handler{
		grader: opts.Grader,
		health: opts.Health,
		logger: opts.Logger.With().Str("component", "http").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.healthz)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	r.Route("/v1/assignments/{assignmentID}/submissions/{submissionID}", func(r chi.Router) {
		r.Post("/grade", h.grade)
	})
	return r
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type gradeRequest struct {
	UserID int64 `json:"user_id"`
}

type gradeResponse struct {
	Success   bool      `json:"success"`
	Grade     *float64  `json:"grade,omitempty"`
	Feedback  string    `json:"feedback,omitempty"`
	Error     string    `json:"error,omitempty"`
	AttemptID uuid.UUID `json:"attempt_id"`
}

func (h *handler) grade(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := pathID(r, "assignmentID")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	submissionID, err := pathID(r, "submissionID")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}

	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, errors.New("request body must be JSON"))
		return
	}

	out := h.grader.Grade(r.Context(), application.GradeInput{
		SubmissionID: submissionID,
		AssignmentID: assignmentID,
		UserID:       req.UserID,
	})

	if !out.Success {
		h.respond(w, http.StatusUnprocessableEntity, gradeResponse{Error: out.Error, AttemptID: out.AttemptID})
		return
	}
	grade := out.Grade
	h.respond(w, http.StatusOK, gradeResponse{
		Success:   true,
		Grade:     &grade,
		Feedback:  out.Feedback,
		AttemptID: out.AttemptID,
	})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("health check failed")
			h.respond(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return id, nil
}

func (h *handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("failed to write response")
	}
}

func (h *handler) respondError(w http.ResponseWriter, status int, err error) {
	h.respond(w, status, gradeResponse{Error: err.Error()})
}

func (h *handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		h.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
