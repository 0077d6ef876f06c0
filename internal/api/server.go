package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/metrics"
	"github.com/JakeFAU/geo-ingest/internal/status"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultSubmitTimeout  = 5 * time.Second
	readyTimeout          = 2 * time.Second
	maxSubmitBytes        = 8 << 20
)

// Config controls the HTTP surface.
type Config struct {
	// APIKey enables key authentication when non-empty.
	APIKey         string
	RequestTimeout time.Duration
	SubmitTimeout  time.Duration
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the job publisher and status ledger.
type Server struct {
	router chi.Router
	jobs   ingest.Publisher
	ids    ingest.IDGenerator
	checks map[string]ReadinessCheck
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. jobs receives
// submitted job messages keyed by job id.
func NewServer(
	jobs ingest.Publisher,
	ledger status.Ledger,
	ids ingest.IDGenerator,
	checks map[string]ReadinessCheck,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	s := &Server{
		jobs:   jobs,
		ids:    ids,
		checks: checks,
		cfg:    cfg,
		logger: logger,
	}
	statusHandler := NewStatusHandler(ledger, logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/{job_id}/status", statusHandler.GetStatus)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	Data *ingest.DataResource `json:"data"`
	Host bool                 `json:"host"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSubmitBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Data == nil {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}
	if req.Data.DataType == nil {
		writeError(w, http.StatusBadRequest, ingest.ErrMissingDataType.Error())
		return
	}
	jobID, err := s.enqueueJob(r.Context(), req)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusServiceUnavailable
		}
		s.logger.Error("submit job failed", zap.Error(err))
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (s *Server) enqueueJob(ctx context.Context, req submitRequest) (string, error) {
	if s.jobs == nil {
		return "", errors.New("job submission is not configured")
	}
	jobID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	job := ingest.Job{
		JobID:   jobID,
		JobType: ingest.JobTypeIngest,
		Data:    req.Data,
		Host:    req.Host,
	}
	pubCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()
	if _, err := s.jobs.Publish(pubCtx, jobID, job); err != nil {
		return "", fmt.Errorf("publish job: %w", err)
	}
	s.logger.Info("job submitted",
		zap.String("job_id", jobID),
		zap.String("data_type", req.Data.DataType.Type()),
		zap.Bool("host", req.Host),
	)
	return jobID, nil
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
