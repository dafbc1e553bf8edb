package instrumentation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func auditLoggerWithBuffer(config AuditLoggingConfig) (*AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditLogger(logger, config), &buf
}

func TestAuditLoggerAnonymizesUser(t *testing.T) {
	audit, buf := auditLoggerWithBuffer(AuditLoggingConfig{Enabled: true})

	audit.ConsentGranted(context.Background(), "alice@example.com")

	output := buf.String()
	assert.Contains(t, output, AuditEventConsentGranted)
	assert.Contains(t, output, "log_type=audit")
	assert.NotContains(t, output, "alice@example.com")
	assert.Contains(t, output, "user:")
}

func TestAuditLoggerIncludePII(t *testing.T) {
	audit, buf := auditLoggerWithBuffer(AuditLoggingConfig{Enabled: true, IncludePII: true})

	audit.ArtifactPublished(context.Background(), "alice@example.com", "file123")

	output := buf.String()
	assert.Contains(t, output, "alice@example.com")
	assert.Contains(t, output, "file123")
	assert.Contains(t, output, AuditEventArtifactPublished)
}

func TestAuditLoggerDisabled(t *testing.T) {
	audit, buf := auditLoggerWithBuffer(AuditLoggingConfig{Enabled: false})

	audit.ConsentGranted(context.Background(), "alice@example.com")
	audit.ArtifactConsumed(context.Background(), "alice@example.com", "run1")
	audit.RunCompleted(context.Background(), "run1", 3, 1, 100)

	assert.Empty(t, buf.String())
}

func TestAuditLoggerRunCompleted(t *testing.T) {
	audit, buf := auditLoggerWithBuffer(AuditLoggingConfig{Enabled: true})

	audit.RunCompleted(context.Background(), "run-42", 5, 1, 250)

	output := buf.String()
	assert.Contains(t, output, AuditEventRunCompleted)
	assert.Contains(t, output, "run-42")
	assert.Contains(t, output, "mailboxes=5")
	assert.Contains(t, output, "failed=1")
	assert.Contains(t, output, "inserted=250")
}

func TestNilAuditLoggerIsSafe(t *testing.T) {
	var audit *AuditLogger

	assert.False(t, audit.Enabled())
	audit.ConsentGranted(context.Background(), "alice@example.com")
}
