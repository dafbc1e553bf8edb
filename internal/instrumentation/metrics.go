package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrDomain    = "domain"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// OAuth metrics
	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	// Extraction run metrics
	runsTotal               metric.Int64Counter
	runDuration             metric.Float64Histogram
	activeRuns              metric.Int64UpDownCounter
	mailboxesProcessedTotal metric.Int64Counter
	messagesExtractedTotal  metric.Int64Counter
	rowsInsertedTotal       metric.Int64Counter

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels
// such as the user's mail domain are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// Google API Metrics
	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	// OAuth Metrics
	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of OAuth authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	// Extraction run metrics
	m.runsTotal, err = meter.Int64Counter(
		"extraction_runs_total",
		metric.WithDescription("Total number of extraction runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction_runs_total counter: %w", err)
	}

	m.runDuration, err = meter.Float64Histogram(
		"extraction_run_duration_seconds",
		metric.WithDescription("Extraction run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction_run_duration_seconds histogram: %w", err)
	}

	m.activeRuns, err = meter.Int64UpDownCounter(
		"extraction_runs_active",
		metric.WithDescription("Number of extraction runs currently in progress"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction_runs_active gauge: %w", err)
	}

	m.mailboxesProcessedTotal, err = meter.Int64Counter(
		"mailboxes_processed_total",
		metric.WithDescription("Total number of mailboxes processed"),
		metric.WithUnit("{mailbox}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailboxes_processed_total counter: %w", err)
	}

	m.messagesExtractedTotal, err = meter.Int64Counter(
		"messages_extracted_total",
		metric.WithDescription("Total number of Gmail messages extracted"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages_extracted_total counter: %w", err)
	}

	m.rowsInsertedTotal, err = meter.Int64Counter(
		"rows_inserted_total",
		metric.WithDescription("Total number of rows inserted into BigQuery"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows_inserted_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records a Google API operation.
//
// Parameters:
//   - service: Google service name (gmail, drive, bigquery, storage)
//   - operation: Operation type (list, get, insert, upload, download)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthAuth records an OAuth consent flow attempt with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m.oauthAuthTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordOAuthTokenRefresh records an OAuth token refresh attempt with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordRun records a completed extraction run with its status and duration.
func (m *Metrics) RecordRun(ctx context.Context, status string, duration time.Duration) {
	if m.runsTotal == nil || m.runDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
	}

	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordMailbox records one processed mailbox. When detailed labels are
// enabled the user's mail domain is attached; the full address never is.
func (m *Metrics) RecordMailbox(ctx context.Context, user, status string) {
	if m.mailboxesProcessedTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrDomain, ExtractUserDomain(user)))
	}

	m.mailboxesProcessedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// AddMessagesExtracted adds to the extracted-message counter.
func (m *Metrics) AddMessagesExtracted(ctx context.Context, count int) {
	if m.messagesExtractedTotal == nil {
		return // Instrumentation not initialized
	}

	m.messagesExtractedTotal.Add(ctx, int64(count))
}

// AddRowsInserted adds to the inserted-row counter.
func (m *Metrics) AddRowsInserted(ctx context.Context, count int) {
	if m.rowsInsertedTotal == nil {
		return // Instrumentation not initialized
	}

	m.rowsInsertedTotal.Add(ctx, int64(count))
}

// IncrementActiveRuns increments the in-progress run gauge.
func (m *Metrics) IncrementActiveRuns(ctx context.Context) {
	if m.activeRuns == nil {
		return // Instrumentation not initialized
	}

	m.activeRuns.Add(ctx, 1)
}

// DecrementActiveRuns decrements the in-progress run gauge.
func (m *Metrics) DecrementActiveRuns(ctx context.Context) {
	if m.activeRuns == nil {
		return // Instrumentation not initialized
	}

	m.activeRuns.Add(ctx, -1)
}

// ExtractUserDomain extracts the domain part from an email address.
// Using the domain instead of the full address keeps metric cardinality
// bounded by the number of customer domains rather than users.
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// Common operation types for Google API metrics.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationInsert   = "insert"
	OperationUpload   = "upload"
	OperationDownload = "download"
	OperationQuery    = "query"
)
