package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"bloomshield/internal/core"
	"bloomshield/internal/server/database"
	"bloomshield/internal/server/storage"
	"bloomshield/internal/timestamp"
)

// Storage key schemes.
const (
	KeySchemeTimestamped = "timestamped"
	KeySchemeContent     = "content"
)

// RecorderConfig controls how blobs are keyed and whether a key collision
// is fatal.
type RecorderConfig struct {
	KeyScheme     string
	AllowExisting bool
}

// RecordInput is everything the Recorder persists for one upload.
type RecordInput struct {
	FileName     string
	MimeType     string
	Data         []byte
	Hashes       core.Hashes
	Timestamp    timestamp.Result
	PasswordHash *string
}

// Recorder uploads the original bytes and then inserts one metadata row.
// The two steps are not transactional: a failed insert leaves the uploaded
// blob in place.
type Recorder struct {
	store storage.Store
	repo  database.Repository
	cfg   RecorderConfig
	clock Clock
	ids   IDGenerator
}

// NewRecorder creates a Recorder. store and repo must be non-nil.
func NewRecorder(store storage.Store, repo database.Repository, cfg RecorderConfig) *Recorder {
	if cfg.KeyScheme == "" {
		cfg.KeyScheme = KeySchemeTimestamped
	}
	return &Recorder{
		store: store,
		repo:  repo,
		cfg:   cfg,
		clock: RealClock{},
		ids:   UUIDGenerator{},
	}
}

// StorageKey returns the object key for in under the configured scheme.
func (r *Recorder) StorageKey(in RecordInput) string {
	name := sanitizeFilename(in.FileName)
	if r.cfg.KeyScheme == KeySchemeContent {
		return in.Hashes.Legal + strings.ToLower(filepath.Ext(name))
	}

	prefix := in.Hashes.Legal
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return fmt.Sprintf("%s/%d-%s", prefix, r.clock.Now().UnixMilli(), name)
}

// Upload stores the original bytes and returns the storage path.
func (r *Recorder) Upload(ctx context.Context, in RecordInput) (string, error) {
	key := r.StorageKey(in)

	path, err := r.store.Put(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), in.MimeType)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) && r.cfg.AllowExisting {
			slog.Info("object already exists, reusing it",
				"storage_path", key,
				"legal_hash", in.Hashes.Legal,
			)
			return key, nil
		}
		return "", fmt.Errorf("%w: %v", ErrStorageUpload, err)
	}
	return path, nil
}

// Insert writes the metadata row pointing at path.
func (r *Recorder) Insert(ctx context.Context, in RecordInput, path string) (*database.Protection, error) {
	p := &database.Protection{
		ID:                  r.ids.New(),
		FileName:            sanitizeFilename(in.FileName),
		FileSize:            int64(len(in.Data)),
		MimeType:            in.MimeType,
		StoragePath:         path,
		LegalHash:           in.Hashes.Legal,
		ContentHash:         in.Hashes.Content,
		FloralHash:          in.Hashes.Floral,
		BlockchainTx:        in.Timestamp.TransactionHash,
		BlockchainTimestamp: in.Timestamp.Timestamp.UTC(),
		Chain:               in.Timestamp.Chain,
		BlockNumber:         in.Timestamp.BlockNumber,
		ExplorerURL:         in.Timestamp.Explorer,
		PasswordHash:        in.PasswordHash,
		CreatedAt:           r.clock.Now().UTC(),
	}

	if err := r.repo.Create(ctx, p); err != nil {
		slog.Warn("record insert failed, stored object is orphaned",
			"storage_path", path,
			"legal_hash", in.Hashes.Legal,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrRecordInsert, err)
	}

	slog.Info("protection recorded",
		"record_id", p.ID,
		"file_name", p.FileName,
		"file_size", p.FileSize,
		"legal_hash", p.LegalHash,
		"tx_hash", p.BlockchainTx,
		"storage_path", p.StoragePath,
	)
	return p, nil
}

// Record runs Upload then Insert. An upload failure skips the insert.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (*database.Protection, error) {
	path, err := r.Upload(ctx, in)
	if err != nil {
		return nil, err
	}
	return r.Insert(ctx, in, path)
}

// HashPassword bcrypt-hashes an optional download password.
// An empty password yields nil.
func HashPassword(password string) (*string, error) {
	if password == "" {
		return nil, nil
	}
	if len(password) > 72 {
		return nil, ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	h := string(hash)
	return &h, nil
}

const (
	maxFilenameLen = 255
	maxExtLen      = 16
)

// sanitizeFilename strips directory components and limits length to
// maxFilenameLen bytes without splitting a UTF-8 sequence. Overlong
// extensions are truncated with the rest of the name.
func sanitizeFilename(name string) string {
	// Normalize Windows-style backslashes to forward slashes before
	// calling filepath.Base, which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")

	name = filepath.Base(name)

	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		if len(ext) > maxExtLen {
			ext = ""
		}
		cut := maxFilenameLen - len(ext)
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut] + ext
	}

	if name == "" || name == "." || name == "/" {
		name = "upload.bin"
	}

	return name
}
