// Package server provides the HTTP surface of the extraction service:
// the /fetch trigger endpoint, Kubernetes health probes and a dedicated
// Prometheus metrics listener.
//
// The main listener serves:
//
//   - POST /fetch: runs a full extraction (token download, mailbox
//     extraction, BigQuery load) and reports the outcome as JSON.
//     Concurrent triggers are rejected with 409 while a run is active.
//   - /healthz, /readyz: liveness and readiness probes.
//
// Metrics are served on a separate port (default :9090) so operational
// data never shares a listener with the trigger surface.
package server
