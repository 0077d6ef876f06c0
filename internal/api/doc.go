// Package api hosts the HTTP server, middleware, and REST handlers for job
// submission and status queries. Routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs to submit an ingest job.
//   - GET /v1/jobs/{job_id}/status for the last recorded status update.
package api
