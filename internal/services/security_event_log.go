package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/google/uuid"
)

const defaultSinkTimeout = 3 * time.Second

// SecurityEventSink receives every emitted security event
type SecurityEventSink interface {
	Name() string
	Publish(ctx context.Context, event *models.SecurityEvent) error
}

// SecurityEventLog writes security events to the structured log and fans them out to sinks.
// Sink failures are logged and never returned to the caller.
type SecurityEventLog struct {
	audit       *pkglogger.AuditLogger
	logger      *slog.Logger
	sinks       []SecurityEventSink
	now         func() time.Time
	sinkTimeout time.Duration
}

func NewSecurityEventLog(logger *slog.Logger, sinks ...SecurityEventSink) *SecurityEventLog {
	return &SecurityEventLog{
		audit:       pkglogger.NewAuditLogger(logger),
		logger:      logger,
		sinks:       sinks,
		now:         time.Now,
		sinkTimeout: defaultSinkTimeout,
	}
}

func (l *SecurityEventLog) SetClock(now func() time.Time) {
	l.now = now
}

// Emit records one event and returns it
func (l *SecurityEventLog) Emit(ctx context.Context, kind models.SecurityEventKind, sc models.SecurityContext, details models.EventDetails) *models.SecurityEvent {
	event := &models.SecurityEvent{
		ID:              uuid.New(),
		Kind:            kind,
		Timestamp:       l.now().UTC(),
		SecurityContext: sc,
		Details:         details,
	}

	l.audit.Log(ctx, pkglogger.AuditEvent{
		EventType:         string(kind),
		Failure:           kind.IsFailure(),
		Timestamp:         event.Timestamp,
		AdminID:           sc.AdminID,
		SessionID:         sc.SessionID,
		IPAddress:         sc.IPAddress,
		UserAgent:         sc.UserAgent,
		DeviceFingerprint: sc.DeviceFingerprint,
		Details:           details,
	})

	// the request may be cancelled right after the step completes; the audit trail must still land
	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range l.sinks {
		l.publish(sinkCtx, sink, event)
	}

	return event
}

func (l *SecurityEventLog) publish(ctx context.Context, sink SecurityEventSink, event *models.SecurityEvent) {
	ctx, cancel := context.WithTimeout(ctx, l.sinkTimeout)
	defer cancel()

	if err := sink.Publish(ctx, event); err != nil {
		l.logger.ErrorContext(ctx, "failed to publish security event",
			slog.String("sink", sink.Name()),
			slog.String("kind", string(event.Kind)),
			slog.String("event_id", event.ID.String()),
			slog.Any("error", err),
		)
	}
}
