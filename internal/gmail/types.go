package gmail

import "strings"

// MessageMeta is the flat projection of one Gmail message, extracted
// from the metadata-format response before anything leaves this package.
type MessageMeta struct {
	ID        string
	ThreadID  string
	Subject   string
	Sender    string
	Recipient string
	// Date is the raw Date header value; no parsing is attempted.
	Date    string
	Snippet string
	Labels  []string
}

// CombinedLabels returns the label IDs joined with commas, the shape
// the row loader stores them in.
func (m *MessageMeta) CombinedLabels() string {
	return strings.Join(m.Labels, ",")
}
