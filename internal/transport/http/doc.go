// Package http serves the results tree over HTTP: run manifests, result
// tables as JSON, the xlsx workbook, health probes and the Prometheus
// metrics endpoint.
//
// Handlers are thin. They resolve the event date and table name from the
// URL, read the artifacts written by the pipeline stages and render them
// with chi/render. Errors are reported as RFC 7807 problem documents
// through errors.ErrorHandler, so a missing table surfaces as a 404 that
// names the stage producing it.
//
// Routes:
//
//	GET /metrics
//	GET /api/health
//	GET /api/health/ready
//	GET /api/version
//	GET /api/runs
//	GET /api/runs/{date}/manifest
//	GET /api/runs/{date}/tables
//	GET /api/runs/{date}/tables/{table}
//	GET /api/runs/{date}/report
package http
