// Package instrumentation provides OpenTelemetry-based observability
// for the extraction service.
//
// It wires up:
//
//   - Metrics: counters and histograms for extraction runs, mailbox
//     processing, BigQuery loads, Google API calls and the HTTP trigger
//     surface, exported via Prometheus (default), OTLP or stdout.
//   - Tracing: spans for runs, per-mailbox extraction and Google API
//     operations, exported via OTLP or stdout (disabled by default).
//   - Audit logging: structured records of credential handling events
//     (consent granted, artifact published, artifact consumed) with
//     anonymized user identifiers.
//
// Configuration is environment-driven; see DefaultConfig. All recorders
// degrade to no-ops when instrumentation is disabled, so callers never
// need nil checks.
package instrumentation
