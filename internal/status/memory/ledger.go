// Package memory provides an in-memory status ledger for development/testing.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/status"
)

// Ledger keeps the last update per job in a map.
type Ledger struct {
	mu      sync.RWMutex
	clock   ingest.Clock
	records map[string]status.Record
}

// New constructs a Ledger stamped by clock.
func New(clock ingest.Clock) *Ledger {
	return &Ledger{
		clock:   clock,
		records: make(map[string]status.Record),
	}
}

// Record stores update if it legally follows the current record.
func (l *Ledger) Record(_ context.Context, update ingest.StatusUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var prev *ingest.StatusUpdate
	if rec, ok := l.records[update.JobID]; ok {
		prev = &rec.Update
	}
	if err := ingest.CheckTransition(prev, update); err != nil {
		return err
	}
	l.records[update.JobID] = status.Record{Update: cloneUpdate(update), UpdatedAt: l.clock.Now()}
	return nil
}

// Get returns a copy of the last update for jobID.
func (l *Ledger) Get(_ context.Context, jobID string) (status.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[jobID]
	if !ok {
		return status.Record{}, status.ErrNotFound
	}
	rec.Update = cloneUpdate(rec.Update)
	return rec, nil
}

func cloneUpdate(u ingest.StatusUpdate) ingest.StatusUpdate {
	if u.Progress != nil {
		p := *u.Progress
		u.Progress = &p
	}
	if u.Result != nil {
		r := *u.Result
		u.Result = &r
	}
	return u
}
