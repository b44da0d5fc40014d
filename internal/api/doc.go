// Package api hosts the operator HTTP surface of the crawler service:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/listings?url= to look up one stored listing.
//   - GET /v1/runs/last and POST /v1/runs to inspect and trigger crawl runs.
package api
