// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that ingest workers use to report job milestones. The hub batches
// events on a background goroutine and fans them out to pluggable sinks such
// as structured logs or Prometheus collectors.
package progress
