package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

func TestProcessRecordsJobSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := newHarness(t, nil)
	h.worker.Process(context.Background(), ingest.Delivery{
		Body: jobBody("job-trace-ok", "data-t", inlineGeoJSON, false),
	}, h.callback)
	h.worker.Process(context.Background(), ingest.Delivery{
		Body: jobBody("job-trace-bad", "data-u", `{"type":"kml"}`, false),
	}, h.callback)

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range rec.Ended() {
		for _, kv := range span.Attributes() {
			if kv.Key == attribute.Key("ingest.job_id") {
				spans[kv.Value.AsString()] = span
			}
		}
	}

	ok := spans["job-trace-ok"]
	require.NotNil(t, ok)
	require.Equal(t, "ingest.job", ok.Name())
	require.Equal(t, codes.Unset, ok.Status().Code)

	bad := spans["job-trace-bad"]
	require.NotNil(t, bad)
	require.Equal(t, codes.Error, bad.Status().Code)
	require.Equal(t, string(ingest.KindUnsupportedType), bad.Status().Description)
}
