// Package pipeline orchestrates a full extraction run: it downloads the
// per-user credential artifacts from the Drive handoff folder, extracts
// message metadata from each mailbox with a bounded worker pool, and
// loads the resulting rows into BigQuery. One failing mailbox is logged
// and skipped; it never aborts the run.
package pipeline
