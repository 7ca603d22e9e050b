package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a redemption audit event
type AuditEvent struct {
	EventType  string // redemption_success, redemption_blocked, redemption_replay
	GAN        string
	MerchantID string
	IPAddress  string
	UserAgent  string
	Success    bool
	Reason     string
	Metadata   map[string]string
}

// AuditLogger provides audit logging for redemption outcomes
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogRedemptionAttempt logs the outcome of a redemption attempt. GANs are
// masked; the full value lives in the database, not the log stream.
func (al *AuditLogger) LogRedemptionAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "redemption"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.GAN != "" {
		attrs = append(attrs, slog.String("gan", SanitizedGAN(event.GAN)))
	}
	if event.MerchantID != "" {
		attrs = append(attrs, slog.String("merchant_id", event.MerchantID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}
