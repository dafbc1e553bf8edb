package gmail

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/kestrelworks/mailsync/internal/instrumentation"
)

const (
	// listPageSize matches the maximum the Messages.List call accepts.
	listPageSize = 500
)

// metadataHeaders are the only headers fetched per message.
var metadataHeaders = []string{"Subject", "From", "To", "Date"}

// Client wraps the Gmail Users service for a single mailbox.
type Client struct {
	svc     *gmail.UsersService
	limiter *RateLimiter
}

// NewClientFromTokenSource creates a Gmail client for the mailbox that
// the token source authenticates. Token refresh happens inside the
// oauth2 transport on first use, so a revoked or expired refresh token
// surfaces as an API error, not here.
func NewClientFromTokenSource(ctx context.Context, ts oauth2.TokenSource) (*Client, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		svc:     svc.Users,
		limiter: NewRateLimiter(),
	}, nil
}

// NewClientWithService wraps an existing Gmail service. Used by tests.
func NewClientWithService(svc *gmail.Service) *Client {
	return &Client{svc: svc.Users, limiter: NewRateLimiter()}
}

// Profile returns the email address of the authenticated mailbox.
func (c *Client) Profile(ctx context.Context) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	profile, err := c.svc.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get Gmail profile: %w", err)
	}

	return profile.EmailAddress, nil
}

// ForeachMessageID iterates over all message IDs matching the query,
// following pagination until exhausted or fn returns an error.
func (c *Client) ForeachMessageID(ctx context.Context, query string, fn func(id string) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationList)
	defer span.End()

	pageToken := ""
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			instrumentation.SetSpanError(span, err)
			return err
		}

		call := c.svc.Messages.List("me").
			Context(ctx).
			Q(query).
			MaxResults(listPageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		res, err := call.Do()
		if err != nil {
			instrumentation.SetSpanError(span, err)
			return fmt.Errorf("failed to list messages: %w", err)
		}

		for _, m := range res.Messages {
			if err := fn(m.Id); err != nil {
				instrumentation.SetSpanError(span, err)
				return err
			}
		}

		if res.NextPageToken == "" {
			instrumentation.SetSpanSuccess(span)
			return nil
		}
		pageToken = res.NextPageToken
	}
}

// MessageMetadata fetches one message in metadata format and projects
// it into a flat MessageMeta.
func (c *Client) MessageMetadata(ctx context.Context, id string) (*MessageMeta, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	msg, err := c.svc.Messages.Get("me", id).
		Context(ctx).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Do()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	instrumentation.SetSpanSuccess(span)
	return MetaFromMessage(msg), nil
}

// MetaFromMessage projects a metadata-format Gmail message into a
// MessageMeta. Header matching is case-insensitive; missing headers
// stay empty.
func MetaFromMessage(msg *gmail.Message) *MessageMeta {
	meta := &MessageMeta{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Labels:   msg.LabelIds,
	}

	if msg.Payload == nil {
		return meta
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			meta.Subject = h.Value
		case "from":
			meta.Sender = h.Value
		case "to":
			meta.Recipient = h.Value
		case "date":
			meta.Date = h.Value
		}
	}

	return meta
}
