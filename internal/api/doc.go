// Package api hosts the operator HTTP server that runs alongside a crawl.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live summary of the current run.
//   - GET /v1/runs/{run_id} for a stored run summary.
package api
