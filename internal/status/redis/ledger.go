// Package redis stores the status ledger in Redis so that every worker
// replica and API instance shares it.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/status"
)

const maxTxRetries = 5

// Config controls key naming and retention.
type Config struct {
	KeyPrefix string
	TTL       time.Duration
}

// Ledger keeps one JSON record per job under <prefix><jobId>.
type Ledger struct {
	client redis.UniversalClient
	clock  ingest.Clock
	prefix string
	ttl    time.Duration
}

// New creates a Ledger over client.
func New(client redis.UniversalClient, clock ingest.Clock, cfg Config) (*Ledger, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "geoingest:status:"
	}
	return &Ledger{client: client, clock: clock, prefix: prefix, ttl: cfg.TTL}, nil
}

func (l *Ledger) key(jobID string) string {
	return l.prefix + jobID
}

// Record applies update under WATCH so concurrent writers for the same job
// cannot interleave between the transition check and the write.
func (l *Ledger) Record(ctx context.Context, update ingest.StatusUpdate) error {
	key := l.key(update.JobID)
	txf := func(tx *redis.Tx) error {
		prev, err := decode(tx.Get(ctx, key))
		if err != nil && !errors.Is(err, status.ErrNotFound) {
			return err
		}
		var prevUpdate *ingest.StatusUpdate
		if prev != nil {
			prevUpdate = &prev.Update
		}
		if err := ingest.CheckTransition(prevUpdate, update); err != nil {
			return err
		}
		data, err := json.Marshal(status.Record{Update: update, UpdatedAt: l.clock.Now()})
		if err != nil {
			return fmt.Errorf("marshal status record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, l.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := l.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("record status for %s: too much contention", update.JobID)
}

// Get returns the last record for jobID.
func (l *Ledger) Get(ctx context.Context, jobID string) (status.Record, error) {
	rec, err := decode(l.client.Get(ctx, l.key(jobID)))
	if err != nil {
		return status.Record{}, err
	}
	return *rec, nil
}

// Ping checks connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func decode(cmd *redis.StringCmd) (*status.Record, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	var rec status.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &rec, nil
}
