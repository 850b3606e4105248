package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/bcrypt"

	"bloomshield/internal/server/database"
	"bloomshield/internal/server/storage"
	"bloomshield/internal/timestamp"
)

// ProtectionInfo is the public view of a protection record.
type ProtectionInfo struct {
	ID          string           `json:"id"`
	FileName    string           `json:"fileName"`
	FileSize    int64            `json:"fileSize"`
	MimeType    string           `json:"mimeType"`
	StoragePath string           `json:"storagePath"`
	LegalHash   string           `json:"legalHash"`
	ContentHash string           `json:"contentHash"`
	FloralHash  string           `json:"floralHash"`
	Blockchain  timestamp.Result `json:"blockchain"`
	Simulated   bool             `json:"simulated"`
	HasPassword bool             `json:"hasPassword"`
	CreatedAt   time.Time        `json:"createdAt"`
	DownloadURL string           `json:"downloadUrl"`
}

// TransactionVerification lists the records stamped by one transaction.
type TransactionVerification struct {
	TransactionHash string            `json:"transactionHash"`
	Simulated       bool              `json:"simulated"`
	Records         []*ProtectionInfo `json:"records"`
}

// ProtectionService answers lookups over recorded protections.
type ProtectionService struct {
	repo    database.Repository
	store   storage.Store
	cache   *expirable.LRU[string, *database.Protection]
	baseURL string
}

// NewProtectionService creates a ProtectionService. store may be nil when
// storage is not configured; downloads then fail with ErrNotConfigured.
func NewProtectionService(repo database.Repository, store storage.Store, baseURL string, cacheSize int, cacheTTL time.Duration) *ProtectionService {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &ProtectionService{
		repo:    repo,
		store:   store,
		cache:   expirable.NewLRU[string, *database.Protection](cacheSize, nil, cacheTTL),
		baseURL: baseURL,
	}
}

// Info converts a record into its public view.
func (s *ProtectionService) Info(p *database.Protection) *ProtectionInfo {
	return &ProtectionInfo{
		ID:          p.ID,
		FileName:    p.FileName,
		FileSize:    p.FileSize,
		MimeType:    p.MimeType,
		StoragePath: p.StoragePath,
		LegalHash:   p.LegalHash,
		ContentHash: p.ContentHash,
		FloralHash:  p.FloralHash,
		Blockchain: timestamp.Result{
			Chain:           p.Chain,
			TransactionHash: p.BlockchainTx,
			BlockNumber:     p.BlockNumber,
			Timestamp:       p.BlockchainTimestamp.UTC(),
			Explorer:        p.ExplorerURL,
		},
		Simulated:   timestamp.IsSimulated(p.BlockchainTx),
		HasPassword: p.PasswordHash != nil,
		CreatedAt:   p.CreatedAt.UTC(),
		DownloadURL: fmt.Sprintf("%s/api/protections/%s/file", s.baseURL, p.ID),
	}
}

// Get returns the record with the given id. Records are immutable, so hits
// are served from the cache until they expire.
func (s *ProtectionService) Get(ctx context.Context, id string) (*database.Protection, error) {
	if p, ok := s.cache.Get(id); ok {
		return p, nil
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrProtectionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.cache.Add(id, p)
	return p, nil
}

// GetInfo returns the public view of one record.
func (s *ProtectionService) GetInfo(ctx context.Context, id string) (*ProtectionInfo, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Info(p), nil
}

// FindByLegalHash returns every protection of the exact same bytes.
func (s *ProtectionService) FindByLegalHash(ctx context.Context, legalHash string) ([]*ProtectionInfo, error) {
	records, err := s.repo.FindByLegalHash(ctx, legalHash)
	if err != nil {
		return nil, err
	}
	return s.infos(records), nil
}

// VerifyTransaction returns the records that carry txHash.
func (s *ProtectionService) VerifyTransaction(ctx context.Context, txHash string) (*TransactionVerification, error) {
	records, err := s.repo.GetByTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &TransactionVerification{
		TransactionHash: txHash,
		Simulated:       timestamp.IsSimulated(txHash),
		Records:         s.infos(records),
	}, nil
}

// OpenFile validates the password (if required) and opens the stored original.
// The caller must close the returned reader.
func (s *ProtectionService) OpenFile(ctx context.Context, id, password string) (io.ReadCloser, *database.Protection, error) {
	if s.store == nil {
		return nil, nil, ErrNotConfigured
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if p.PasswordHash != nil {
		if password == "" {
			return nil, nil, ErrPasswordRequired
		}
		if err := bcrypt.CompareHashAndPassword([]byte(*p.PasswordHash), []byte(password)); err != nil {
			return nil, nil, ErrInvalidPassword
		}
	}

	rc, err := s.store.Open(ctx, p.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			slog.Error("stored object missing for record",
				"record_id", p.ID,
				"storage_path", p.StoragePath,
			)
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	return rc, p, nil
}

// Stats returns aggregate statistics.
func (s *ProtectionService) Stats(ctx context.Context) (*database.Stats, error) {
	return s.repo.GetStats(ctx)
}

// HealthCheck verifies the record store is reachable.
func (s *ProtectionService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

func (s *ProtectionService) infos(records []*database.Protection) []*ProtectionInfo {
	out := make([]*ProtectionInfo, 0, len(records))
	for _, p := range records {
		out = append(out, s.Info(p))
	}
	return out
}
