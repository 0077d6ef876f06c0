// Package cmd implements the geo-ingest command line.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, readiness, metrics, job submission and job status. Submitted
//     jobs are assigned an id and published to the jobs channel keyed by that id.
//   - Pool & queue: internal/pool pulls deliveries from the configured broker (memory, Pub/Sub or RabbitMQ) only
//     while a worker slot is free, so worker.concurrency bounds in-flight jobs. Each delivery is acknowledged when
//     the worker signals completion.
//   - Worker: internal/worker decodes the job, assigns a data id, publishes Running, routes the resource to the
//     inspector for its data type and publishes exactly one terminal status (Success or Error).
//   - Inspectors: GeoJSON, GeoTIFF and zipped shapefile inspectors extract bounds and EPSG codes, project the
//     bounds to WGS84 and, when hosting is requested, load features into PostGIS or copy rasters to object storage.
//   - Status: every update passes through a ledger (memory or Redis) that rejects illegal transitions before it is
//     published, which keeps redelivered jobs from producing a second terminal status.
//
// Operational notes:
//   - Configure with GEOINGEST_* environment variables, a .env file, or --config.
//   - serve runs the service and drains in-flight jobs on SIGINT/SIGTERM.
//   - inspect runs a single local file through the inspectors without a broker.
package cmd
