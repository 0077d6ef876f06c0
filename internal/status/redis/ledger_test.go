package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/status"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

func newLedger(t *testing.T, cfg Config) (*Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ledger, err := New(client, fixedClock{}, cfg)
	require.NoError(t, err)
	return ledger, mr
}

func TestLedgerRecordsAndExpires(t *testing.T) {
	ledger, mr := newLedger(t, Config{TTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, ledger.Ping(ctx))

	_, err := ledger.Get(ctx, "j1")
	require.ErrorIs(t, err, status.ErrNotFound)

	require.NoError(t, ledger.Record(ctx, ingest.RunningUpdate("j1")))
	require.NoError(t, ledger.Record(ctx, ingest.SuccessUpdate("j1", "d1")))

	rec, err := ledger.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, ingest.StatusSuccess, rec.Update.Status)
	require.Equal(t, "d1", rec.Update.Result.DataID)
	require.Equal(t, fixedClock{}.Now(), rec.UpdatedAt)

	require.True(t, mr.Exists("geoingest:status:j1"))
	require.Equal(t, time.Hour, mr.TTL("geoingest:status:j1"))

	mr.FastForward(2 * time.Hour)
	_, err = ledger.Get(ctx, "j1")
	require.ErrorIs(t, err, status.ErrNotFound)
}

func TestLedgerRejectsIllegalTransitions(t *testing.T) {
	ledger, _ := newLedger(t, Config{KeyPrefix: "t:"})
	ctx := context.Background()

	require.ErrorIs(t, ledger.Record(ctx, ingest.SuccessUpdate("j", "d")), ingest.ErrIllegalTransition)
	require.NoError(t, ledger.Record(ctx, ingest.RunningUpdate("j")))
	require.NoError(t, ledger.Record(ctx, ingest.ErrorUpdate("j", errors.New("boom"))))
	require.ErrorIs(t, ledger.Record(ctx, ingest.SuccessUpdate("j", "d")), ingest.ErrIllegalTransition)

	rec, err := ledger.Get(ctx, "j")
	require.NoError(t, err)
	require.Equal(t, ingest.StatusError, rec.Update.Status)
}

func TestLedgerSingleTerminalUnderContention(t *testing.T) {
	ledger, _ := newLedger(t, Config{})
	ctx := context.Background()
	require.NoError(t, ledger.Record(ctx, ingest.RunningUpdate("j")))

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Record(ctx, ingest.SuccessUpdate("j", "d")); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, accepted)
}

func TestLedgerCorruptRecord(t *testing.T) {
	ledger, mr := newLedger(t, Config{})
	require.NoError(t, mr.Set("geoingest:status:bad", "not-json"))

	_, err := ledger.Get(context.Background(), "bad")
	require.ErrorContains(t, err, "decode status")

	_, err = New(nil, fixedClock{}, Config{})
	require.Error(t, err)
}
