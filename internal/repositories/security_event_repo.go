package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityEventRepository persists the audit stream to postgres
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

// Name identifies the sink in logs
func (r *SecurityEventRepository) Name() string { return "postgres" }

// Publish inserts one event
func (r *SecurityEventRepository) Publish(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (id, kind, occurred_at, ip_address, user_agent, device_fingerprint,
			admin_id, session_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID, string(event.Kind), event.Timestamp,
		event.IPAddress, event.UserAgent, event.DeviceFingerprint,
		event.AdminID, event.SessionID, event.Details,
	)
	return database.MapPostgresError(err)
}

// EventFilter narrows ListRecent. Zero values match everything.
type EventFilter struct {
	Kind    models.SecurityEventKind
	AdminID string
	Since   time.Time
	Limit   int
}

// ListRecent returns events newest first
func (r *SecurityEventRepository) ListRecent(ctx context.Context, f EventFilter) ([]*models.SecurityEvent, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}

	query := `
		SELECT id, kind, occurred_at, ip_address, user_agent, device_fingerprint, admin_id, session_id, details
		FROM security_events
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR admin_id = $2)
		  AND occurred_at >= $3
		ORDER BY occurred_at DESC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, string(f.Kind), f.AdminID, f.Since, f.Limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)
	for rows.Next() {
		var e models.SecurityEvent
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Timestamp, &e.IPAddress, &e.UserAgent,
			&e.DeviceFingerprint, &e.AdminID, &e.SessionID, &e.Details); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		e.Kind = models.SecurityEventKind(kind)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}

// DeleteOlderThan removes events recorded before cutoff and returns how many were removed
func (r *SecurityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM security_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
