package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/status"
)

const (
	statusTimeout = 3 * time.Second
	maxJobIDLen   = 256
)

// StatusHandler serves the last recorded status update per job.
type StatusHandler struct {
	ledger  status.Ledger
	timeout time.Duration
	logger  *zap.Logger
}

// NewStatusHandler wires the ledger and logger.
func NewStatusHandler(ledger status.Ledger, logger *zap.Logger) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{
		ledger:  ledger,
		timeout: statusTimeout,
		logger:  logger,
	}
}

// GetStatus handles GET /v1/jobs/{job_id}/status. It returns the status
// update with its recording time, 400 for a malformed id, 404 when nothing
// was recorded, 503 without a ledger, or 500 otherwise.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "status ledger unavailable")
		return
	}
	jobID, err := parseJobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.ledger.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("get job status failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job status")
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(rec))
}

func parseJobID(r *http.Request) (string, error) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		return "", errors.New("job_id is required")
	}
	if len(jobID) > maxJobIDLen {
		return "", errors.New("invalid job_id")
	}
	return jobID, nil
}

type statusDTO struct {
	ingest.StatusUpdate
	UpdatedAt time.Time `json:"updatedAt"`
}

func toStatusDTO(rec status.Record) statusDTO {
	return statusDTO{StatusUpdate: rec.Update, UpdatedAt: rec.UpdatedAt.UTC()}
}
