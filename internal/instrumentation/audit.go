package instrumentation

import (
	"context"
	"log/slog"

	"github.com/kestrelworks/mailsync/internal/logging"
)

// Audit event types. Every credential-handling action emits exactly one
// of these so the handoff of user tokens stays traceable end to end.
const (
	AuditEventConsentGranted    = "consent_granted"
	AuditEventArtifactPublished = "artifact_published"
	AuditEventArtifactConsumed  = "artifact_consumed"
	AuditEventRunCompleted      = "run_completed"
)

// AuditLogger emits structured audit records for credential handling.
// User identifiers are anonymized unless IncludePII is enabled.
type AuditLogger struct {
	logger *slog.Logger
	config AuditLoggingConfig
}

// NewAuditLogger creates an audit logger. A nil logger falls back to
// slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger: logger.With(slog.String("log_type", "audit")),
		config: config,
	}
}

// Enabled returns whether audit logging is active.
func (a *AuditLogger) Enabled() bool {
	return a != nil && a.config.Enabled
}

// userAttr returns the user attribute, anonymized unless PII is allowed.
func (a *AuditLogger) userAttr(user string) slog.Attr {
	if a.config.IncludePII {
		return slog.String("user", user)
	}
	return slog.String("user", logging.AnonymizeEmail(user))
}

// ConsentGranted records a successful OAuth consent flow for a user.
func (a *AuditLogger) ConsentGranted(ctx context.Context, user string) {
	if !a.Enabled() {
		return
	}
	a.logger.LogAttrs(ctx, slog.LevelInfo, "user granted mailbox access",
		slog.String("event", AuditEventConsentGranted),
		a.userAttr(user),
	)
}

// ArtifactPublished records a credential artifact upload to the handoff
// folder.
func (a *AuditLogger) ArtifactPublished(ctx context.Context, user, fileID string) {
	if !a.Enabled() {
		return
	}
	a.logger.LogAttrs(ctx, slog.LevelInfo, "credential artifact published",
		slog.String("event", AuditEventArtifactPublished),
		a.userAttr(user),
		slog.String("file_id", fileID),
	)
}

// ArtifactConsumed records that a run used a user's credential artifact
// to open their mailbox.
func (a *AuditLogger) ArtifactConsumed(ctx context.Context, user, runID string) {
	if !a.Enabled() {
		return
	}
	a.logger.LogAttrs(ctx, slog.LevelInfo, "credential artifact consumed",
		slog.String("event", AuditEventArtifactConsumed),
		a.userAttr(user),
		slog.String("run_id", runID),
	)
}

// RunCompleted records the outcome of an extraction run.
func (a *AuditLogger) RunCompleted(ctx context.Context, runID string, mailboxes, failed, inserted int) {
	if !a.Enabled() {
		return
	}
	a.logger.LogAttrs(ctx, slog.LevelInfo, "extraction run completed",
		slog.String("event", AuditEventRunCompleted),
		slog.String("run_id", runID),
		slog.Int("mailboxes", mailboxes),
		slog.Int("failed", failed),
		slog.Int("inserted", inserted),
	)
}
