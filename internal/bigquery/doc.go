// Package bigquery loads extracted Gmail message rows into a BigQuery
// table. The loader inserts rows in fixed-size batches via the streaming
// insert API and can prefilter against the message IDs already present
// in the destination table so repeated runs stay append-only without
// producing duplicates.
package bigquery
