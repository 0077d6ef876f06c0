// Package status guards the job status channel so that every job reports a
// legal sequence of updates, and records the last update per job for
// querying.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/metrics"
)

// ErrNotFound is returned when no update has been recorded for a job.
var ErrNotFound = errors.New("job status not found")

// Record is the last update accepted for a job.
type Record struct {
	Update    ingest.StatusUpdate `json:"update"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Ledger stores the last accepted update per job. Record must apply
// ingest.CheckTransition atomically against the stored update.
type Ledger interface {
	Record(ctx context.Context, update ingest.StatusUpdate) error
	Get(ctx context.Context, jobID string) (Record, error)
}

// Guard is a Publisher decorator that records status updates in a Ledger
// before forwarding them. Illegal transitions are dropped.
type Guard struct {
	next   ingest.Publisher
	ledger Ledger
	logger *zap.Logger
}

// NewGuard wraps next.
func NewGuard(next ingest.Publisher, ledger Ledger, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{next: next, ledger: ledger, logger: logger}
}

// Publish records status updates and forwards every payload to the wrapped
// publisher. Non-status payloads pass through unchecked.
func (g *Guard) Publish(ctx context.Context, key string, payload any) (string, error) {
	var update *ingest.StatusUpdate
	switch u := payload.(type) {
	case ingest.StatusUpdate:
		update = &u
	case *ingest.StatusUpdate:
		update = u
	}
	if update != nil && g.ledger != nil {
		if err := g.ledger.Record(ctx, *update); err != nil {
			if errors.Is(err, ingest.ErrIllegalTransition) {
				g.logger.Error("dropping status update",
					zap.String("job_id", update.JobID),
					zap.String("status", string(update.Status)),
					zap.Error(err),
				)
			}
			return "", fmt.Errorf("record status: %w", err)
		}
	}
	id, err := g.next.Publish(ctx, key, payload)
	if err != nil {
		if update != nil {
			metrics.ObserveStatusPublishFailure(string(update.Status))
		}
		return "", err
	}
	return id, nil
}
