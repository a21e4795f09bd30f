package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mrmushfiq/inference-gateway/internal/shared/models"
)

// ErrNotFound indicates a directory lookup matched no row.
var ErrNotFound = errors.New("not found")

type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// UserByUsername retrieves a user row for login, including the password hash.
func (db *DB) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash
		FROM users
		WHERE username = $1
	`

	var user models.User
	err := db.conn.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &user, nil
}

// UserByID resolves a principal snapshot from a verified credential subject.
func (db *DB) UserByID(ctx context.Context, id string) (*models.Principal, error) {
	query := `
		SELECT id, username
		FROM users
		WHERE id = $1
	`

	var p models.Principal
	err := db.conn.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Username)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &p, nil
}

// ModelVersionByNameVersion retrieves a model version by its unique
// (model name, version) pair.
func (db *DB) ModelVersionByNameVersion(ctx context.Context, name, version string) (*models.ModelVersion, error) {
	query := `
		SELECT mv.id, m.name, mv.version, mv.provider, mv.upstream_model,
		       COALESCE(mv.internal_endpoint_url, '')
		FROM model_versions mv
		JOIN models m ON m.id = mv.model_id
		WHERE m.name = $1 AND mv.version = $2
	`

	var mv models.ModelVersion
	err := db.conn.QueryRowContext(ctx, query, name, version).Scan(
		&mv.ID,
		&mv.ModelName,
		&mv.Version,
		&mv.ProviderKind,
		&mv.UpstreamModel,
		&mv.InternalEndpointURL,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &mv, nil
}

// PermissionsFor returns every permission row for the model version that is
// reachable through the principal's group memberships. Conflict resolution
// between rows is the caller's concern; an empty slice means no permission.
func (db *DB) PermissionsFor(ctx context.Context, principalID, modelVersionID string) ([]models.Permission, error) {
	query := `
		SELECT p.allowed, rlp.window_seconds, rlp.max_requests
		FROM group_model_permissions p
		JOIN user_groups ug ON ug.group_id = p.group_id
		LEFT JOIN rate_limit_policies rlp ON rlp.id = p.policy_id
		WHERE ug.user_id = $1 AND p.model_version_id = $2
	`

	rows, err := db.conn.QueryContext(ctx, query, principalID, modelVersionID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var perms []models.Permission
	for rows.Next() {
		var perm models.Permission
		var window, max sql.NullInt64
		if err := rows.Scan(&perm.Allowed, &window, &max); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		if window.Valid && max.Valid {
			perm.Policy = &models.Policy{
				WindowSeconds: int(window.Int64),
				MaxRequests:   int(max.Int64),
			}
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return perms, nil
}

// InsertRequestLog records one request-outcome row.
func (db *DB) InsertRequestLog(ctx context.Context, log *models.RequestLog) error {
	query := `
		INSERT INTO request_logs (
			principal_id, model_name, version, outcome, status_code, latency_ms, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := db.conn.ExecContext(ctx,
		query,
		log.PrincipalID,
		log.ModelName,
		log.Version,
		log.Outcome,
		log.StatusCode,
		log.LatencyMs,
		log.Detail,
	)

	return err
}
