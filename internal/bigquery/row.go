package bigquery

import (
	"github.com/kestrelworks/mailsync/internal/gmail"
)

// Row is one Gmail message as stored in the destination table.
type Row struct {
	ID             string `bigquery:"id"`
	ThreadID       string `bigquery:"thread_id"`
	User           string `bigquery:"user"`
	Sender         string `bigquery:"sender"`
	Recipient      string `bigquery:"recipient"`
	Subject        string `bigquery:"subject"`
	Timestamp      string `bigquery:"timestamp"`
	Snippet        string `bigquery:"snippet"`
	CombinedLabels string `bigquery:"combined_labels"`
}

// NewRow builds a table row from message metadata extracted for a user.
func NewRow(user string, meta gmail.MessageMeta) Row {
	return Row{
		ID:             meta.ID,
		ThreadID:       meta.ThreadID,
		User:           user,
		Sender:         meta.Sender,
		Recipient:      meta.Recipient,
		Subject:        meta.Subject,
		Timestamp:      meta.Date,
		Snippet:        meta.Snippet,
		CombinedLabels: meta.CombinedLabels(),
	}
}
