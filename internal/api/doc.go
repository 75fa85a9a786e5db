// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - POST /v1/scrape runs every journal once and reports per-journal results.
//   - GET /v1/papers and /v1/papers/{id} query stored papers.
//   - POST /v1/sync applies externally prepared records.
//   - GET /v1/stats, /v1/topics, /v1/topics/trending and /v1/journals.
//   - GET /v1/runs and /v1/runs/{run_id} for recent scrape runs.
//   - GET /healthz, /readyz and /metrics for operations.
package api
