package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/geo-ingest/internal/progress"
)

func TestLogSinkWritesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "j1", TS: now, Stage: progress.StageInspectDone, DataType: "raster", DataID: "d1", Dur: time.Second},
		{JobID: "j1", TS: now, Stage: progress.StageJobError, ErrorKind: "EXTRACTION", Note: "bad tiff"},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "raster", entries[0].ContextMap()["data_type"])
	require.Equal(t, "d1", entries[0].ContextMap()["data_id"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "EXTRACTION", entries[1].ContextMap()["error_kind"])
	require.Equal(t, "bad tiff", entries[1].ContextMap()["note"])
}
