package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// AdminRepository reads and writes the admin directory
type AdminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(db *database.DB) *AdminRepository {
	return &AdminRepository{pool: db.Pool}
}

const adminColumns = `id, username, password_hash, role, totp_secret_encrypted, totp_secret_nonce,
	hardware_key_public_key, allowed_ips, last_login_at, created_at, updated_at`

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAdmin(scanner rowScanner) (*models.Admin, error) {
	var admin models.Admin
	var allowed pq.StringArray

	err := scanner.Scan(
		&admin.ID, &admin.Username, &admin.PasswordHash, &admin.Role,
		&admin.TOTPSecretEncrypted, &admin.TOTPSecretNonce,
		&admin.HardwareKeyPublicKey, &allowed, &admin.LastLoginAt,
		&admin.CreatedAt, &admin.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	admin.AllowedIPs = []string(allowed)
	return &admin, nil
}

func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*models.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE username = $1`
	return scanAdmin(r.pool.QueryRow(ctx, query, username))
}

func (r *AdminRepository) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE id = $1`
	return scanAdmin(r.pool.QueryRow(ctx, query, id))
}

// List returns every admin ordered by username
func (r *AdminRepository) List(ctx context.Context) ([]*models.Admin, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY username`)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	admins := make([]*models.Admin, 0)
	for rows.Next() {
		admin, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, admin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return admins, nil
}

// Upsert creates the admin or replaces its credentials, keyed by username.
// The stored row (with generated id and timestamps) is written back into admin.
func (r *AdminRepository) Upsert(ctx context.Context, admin *models.Admin) error {
	query := `
		INSERT INTO admins (username, password_hash, role, totp_secret_encrypted, totp_secret_nonce,
			hardware_key_public_key, allowed_ips)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			totp_secret_encrypted = EXCLUDED.totp_secret_encrypted,
			totp_secret_nonce = EXCLUDED.totp_secret_nonce,
			hardware_key_public_key = EXCLUDED.hardware_key_public_key,
			allowed_ips = EXCLUDED.allowed_ips,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	allowed := admin.AllowedIPs
	if allowed == nil {
		allowed = []string{}
	}

	err := r.pool.QueryRow(ctx, query,
		admin.Username, admin.PasswordHash, admin.Role,
		admin.TOTPSecretEncrypted, admin.TOTPSecretNonce,
		admin.HardwareKeyPublicKey, pq.Array(allowed),
	).Scan(&admin.ID, &admin.CreatedAt, &admin.UpdatedAt)
	return database.MapPostgresError(err)
}

// UpdateLastLogin stamps a completed triple-factor login
func (r *AdminRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admins SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
