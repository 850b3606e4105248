package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores protections in PostgreSQL through a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
	url  string
}

// NewPostgres creates a new connection pool and pings the server.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database", "driver", "postgres")
	return &PostgresRepository{pool: pool, url: databaseURL}, nil
}

// Migrate applies the embedded postgres migrations.
func (r *PostgresRepository) Migrate(_ context.Context) error {
	src, err := migrationSource("postgres")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(r.url))
	if err != nil {
		return fmt.Errorf("failed to initialise migrations: %w", err)
	}
	defer m.Close()

	return up(m, "postgres")
}

// pgx5URL rewrites a postgres URL to the scheme the migrate driver registers.
func pgx5URL(databaseURL string) string {
	_, rest, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return databaseURL
	}
	return "pgx5://" + rest
}

// Create inserts a new protection record.
func (r *PostgresRepository) Create(ctx context.Context, p *Protection) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO protections (`+protectionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, insertArgs(p)...)
	if err != nil {
		return fmt.Errorf("failed to create protection: %w", err)
	}
	return nil
}

// GetByID retrieves a protection by its ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Protection, error) {
	p, err := scanProtection(r.pool.QueryRow(ctx,
		`SELECT `+protectionColumns+` FROM protections WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProtectionNotFound
		}
		return nil, fmt.Errorf("failed to get protection: %w", err)
	}
	return p, nil
}

// FindByLegalHash returns every protection of identical bytes, oldest first.
func (r *PostgresRepository) FindByLegalHash(ctx context.Context, legalHash string) ([]*Protection, error) {
	return r.list(ctx, `SELECT `+protectionColumns+` FROM protections
		WHERE legal_hash = $1 ORDER BY created_at, id`, legalHash)
}

// GetByTransaction returns the protections stamped by txHash.
func (r *PostgresRepository) GetByTransaction(ctx context.Context, txHash string) ([]*Protection, error) {
	return r.list(ctx, `SELECT `+protectionColumns+` FROM protections
		WHERE blockchain_tx = $1 ORDER BY created_at, id`, txHash)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Protection, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query protections: %w", err)
	}
	defer rows.Close()

	var out []*Protection
	for rows.Next() {
		p, err := scanProtection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan protection: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StoragePathExists reports whether any protection references path.
func (r *PostgresRepository) StoragePathExists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM protections WHERE storage_path = $1)", path,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check storage path: %w", err)
	}
	return exists, nil
}

// GetStats returns aggregate server statistics.
func (r *PostgresRepository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE blockchain_tx LIKE '0xSIM%'),
			COALESCE(SUM(file_size), 0)
		FROM protections
	`).Scan(
		&stats.TotalProtections,
		&stats.SimulatedTimestamps,
		&stats.TotalBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// HealthCheck verifies the database connection is alive.
func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}
