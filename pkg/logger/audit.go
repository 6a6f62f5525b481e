package logger

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// AuditEvent is the log-line view of a security event
type AuditEvent struct {
	EventType         string
	Failure           bool
	Timestamp         time.Time
	AdminID           string
	SessionID         string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Details           map[string]any
}

// AuditLogger writes security events as structured log lines
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// Log writes the event at Warn for failures and Info otherwise
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", event.EventType),
		slog.String("timestamp", ts.UTC().Format(time.RFC3339)),
	}

	if event.AdminID != "" {
		attrs = append(attrs, slog.String("admin_id", event.AdminID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.DeviceFingerprint != "" {
		attrs = append(attrs, slog.String("device_fingerprint", event.DeviceFingerprint))
	}

	// stable ordering keeps log lines diffable
	keys := make([]string, 0, len(event.Details))
	for k := range event.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Details[k]))
	}

	level := slog.LevelInfo
	if event.Failure {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
