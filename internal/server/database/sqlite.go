package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteRepository stores protections in a local SQLite file. The CLI uses
// it when no server database is available.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path.
// path can be a file path or ":memory:".
func NewSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases and PRAGMAs consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	slog.Info("connected to database", "driver", "sqlite", "path", path)
	return &SQLiteRepository{db: db}, nil
}

// Migrate applies the embedded sqlite migrations.
func (r *SQLiteRepository) Migrate(_ context.Context) error {
	src, err := migrationSource("sqlite")
	if err != nil {
		return err
	}

	driver, err := sqlite3.WithInstance(r.db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// m is not closed: closing it would close r.db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return fmt.Errorf("failed to initialise migrations: %w", err)
	}

	return up(m, "sqlite")
}

// Create inserts a new protection record.
func (r *SQLiteRepository) Create(ctx context.Context, p *Protection) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO protections (`+protectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, insertArgs(p)...)
	if err != nil {
		return fmt.Errorf("failed to create protection: %w", err)
	}
	return nil
}

// GetByID retrieves a protection by its ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Protection, error) {
	p, err := scanProtection(r.db.QueryRowContext(ctx,
		`SELECT `+protectionColumns+` FROM protections WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProtectionNotFound
		}
		return nil, fmt.Errorf("failed to get protection: %w", err)
	}
	return p, nil
}

// FindByLegalHash returns every protection of identical bytes, oldest first.
func (r *SQLiteRepository) FindByLegalHash(ctx context.Context, legalHash string) ([]*Protection, error) {
	return r.list(ctx, `SELECT `+protectionColumns+` FROM protections
		WHERE legal_hash = ? ORDER BY created_at, id`, legalHash)
}

// GetByTransaction returns the protections stamped by txHash.
func (r *SQLiteRepository) GetByTransaction(ctx context.Context, txHash string) ([]*Protection, error) {
	return r.list(ctx, `SELECT `+protectionColumns+` FROM protections
		WHERE blockchain_tx = ? ORDER BY created_at, id`, txHash)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*Protection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
func (r *SQLiteRepository) StoragePathExists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM protections WHERE storage_path = ?)", path,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check storage path: %w", err)
	}
	return exists, nil
}

// GetStats returns aggregate statistics.
func (r *SQLiteRepository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN blockchain_tx LIKE '0xSIM%' THEN 1 ELSE 0 END), 0),
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

// HealthCheck verifies the database is reachable.
func (r *SQLiteRepository) HealthCheck(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *SQLiteRepository) Close() {
	r.db.Close()
}
