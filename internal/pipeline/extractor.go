package pipeline

import (
	"context"
	"fmt"

	"github.com/kestrelworks/mailsync/internal/bigquery"
	"github.com/kestrelworks/mailsync/internal/gmail"
	"github.com/kestrelworks/mailsync/internal/google"
	"github.com/kestrelworks/mailsync/internal/instrumentation"
)

// GmailExtractor extracts message metadata from a user's mailbox by
// authenticating with that user's credential artifact.
type GmailExtractor struct {
	query   string
	metrics *instrumentation.Metrics
}

// NewGmailExtractor creates an extractor that lists messages matching
// the given Gmail search query. metrics may be nil.
func NewGmailExtractor(query string, metrics *instrumentation.Metrics) *GmailExtractor {
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return &GmailExtractor{query: query, metrics: metrics}
}

// Extract reads the credential artifact at tokenPath, opens the user's
// mailbox and returns one row per matching message. Messages whose IDs
// the known predicate reports as already loaded are skipped without a
// metadata fetch.
func (e *GmailExtractor) Extract(ctx context.Context, user, tokenPath string, known func(id string) bool) ([]bigquery.Row, error) {
	artifact, err := google.ReadTokenFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential artifact: %w", err)
	}

	// The artifact carries only a refresh token, so the first Token call
	// is a real refresh. Doing it up front surfaces a revoked grant
	// before the mailbox is opened.
	ts := artifact.TokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		e.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("failed to refresh credential: %w", google.WrapError(err))
	}
	e.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	client, err := gmail.NewClientFromTokenSource(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client: %w", err)
	}

	var rows []bigquery.Row
	err = client.ForeachMessageID(ctx, e.query, func(id string) error {
		if known != nil && known(id) {
			return nil
		}
		meta, err := client.MessageMetadata(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch message %s: %w", id, google.WrapError(err))
		}
		rows = append(rows, bigquery.NewRow(user, *meta))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rows, nil
}
