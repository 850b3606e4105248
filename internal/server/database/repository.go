package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProtectionNotFound = errors.New("protection not found")
)

// Repository persists protection records.
type Repository interface {
	Create(ctx context.Context, p *Protection) error
	GetByID(ctx context.Context, id string) (*Protection, error)
	FindByLegalHash(ctx context.Context, legalHash string) ([]*Protection, error)
	GetByTransaction(ctx context.Context, txHash string) ([]*Protection, error)
	StoragePathExists(ctx context.Context, path string) (bool, error)
	GetStats(ctx context.Context) (*Stats, error)
	HealthCheck(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close()
}

// Open connects to the database named by databaseURL. postgres:// and
// postgresql:// URLs use a pgx pool; sqlite://PATH opens a local file.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgres(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLite(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported database url %q", redact(databaseURL))
	}
}

const protectionColumns = `
	id, file_name, file_size, mime_type, storage_path,
	legal_hash, content_hash, floral_hash,
	blockchain_tx, blockchain_timestamp, chain, block_number, explorer_url,
	password_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProtection(row rowScanner) (*Protection, error) {
	p := &Protection{}
	err := row.Scan(
		&p.ID,
		&p.FileName,
		&p.FileSize,
		&p.MimeType,
		&p.StoragePath,
		&p.LegalHash,
		&p.ContentHash,
		&p.FloralHash,
		&p.BlockchainTx,
		&p.BlockchainTimestamp,
		&p.Chain,
		&p.BlockNumber,
		&p.ExplorerURL,
		&p.PasswordHash,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func insertArgs(p *Protection) []any {
	return []any{
		p.ID,
		p.FileName,
		p.FileSize,
		p.MimeType,
		p.StoragePath,
		p.LegalHash,
		p.ContentHash,
		p.FloralHash,
		p.BlockchainTx,
		p.BlockchainTimestamp.UTC(),
		p.Chain,
		p.BlockNumber,
		p.ExplorerURL,
		p.PasswordHash,
		p.CreatedAt.UTC(),
	}
}

// redact hides the password of a database URL in error messages.
func redact(databaseURL string) string {
	scheme, rest, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return databaseURL
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return databaseURL
	}
	if user, _, hasPass := strings.Cut(creds, ":"); hasPass {
		return scheme + "://" + user + ":xxxxx@" + host
	}
	return databaseURL
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*SQLiteRepository)(nil)
)
