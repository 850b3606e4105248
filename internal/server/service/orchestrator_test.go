package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloomshield/internal/core"
	"bloomshield/internal/server/storage"
	"bloomshield/internal/timestamp"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRecorder(store storage.Store, repo *memRepo, cfg RecorderConfig) *Recorder {
	r := NewRecorder(store, repo, cfg)
	r.clock = fixedClock{t: fixedNow}
	r.ids = &seqIDs{}
	return r
}

func localRequester() *timestamp.Requester {
	return timestamp.NewRequester(timestamp.NewSimulator(timestamp.SimulatorConfig{Delay: -1}))
}

func tenByteUpload() Upload {
	return Upload{
		FileName:     "rose.png",
		MimeType:     "image/png",
		LastModified: fixedNow.Add(-time.Hour),
		Data:         []byte("0123456789"),
	}
}

func stages(log []Status) []Stage {
	out := make([]Stage, 0, len(log))
	for _, s := range log {
		out = append(out, s.Stage)
	}
	return out
}

func TestOrchestrator_Protect(t *testing.T) {
	ctx := context.Background()

	t.Run("ten byte file end to end", func(t *testing.T) {
		dir := t.TempDir()
		repo := &memRepo{}
		o := NewOrchestrator(
			newTestRecorder(storage.NewFileSystemStore(dir), repo, RecorderConfig{}),
			localRequester(),
			OrchestratorConfig{MaxFileSize: 1024},
		)

		var seen []Status
		out, err := o.Protect(ctx, tenByteUpload(), func(s Status) { seen = append(seen, s) })
		require.NoError(t, err)

		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), out.Hashes.Legal)
		assert.True(t, strings.HasPrefix(out.Hashes.Content, "0x"))
		assert.Len(t, out.Hashes.Content, 18)
		assert.True(t, strings.HasPrefix(out.Hashes.Floral, core.FloralPrefix))

		assert.False(t, out.Simulated)
		assert.Equal(t, []Stage{StageHashing, StageTimestamping, StageUploading, StageRecording, StageDone}, stages(out.StatusLog))
		assert.Equal(t, out.StatusLog, seen)
		assert.Contains(t, out.Status.Message, "File protected!")

		require.NotNil(t, out.Record)
		assert.Equal(t, out.Timestamp.TransactionHash, out.Record.BlockchainTx)
		assert.Equal(t, out.Hashes.Legal, out.Record.LegalHash)
		require.Len(t, repo.records, 1)

		stored, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(out.Record.StoragePath)))
		require.NoError(t, err)
		assert.Equal(t, []byte("0123456789"), stored)
	})

	t.Run("empty configuration makes no calls", func(t *testing.T) {
		stamper := &countingStamper{}
		o := NewOrchestrator(nil, stamper, OrchestratorConfig{})

		out, err := o.Protect(ctx, tenByteUpload(), nil)
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.ErrorIs(t, err, storage.ErrNotConfigured)
		assert.Equal(t, 0, stamper.calls)
		assert.Equal(t, StageFailed, out.Status.Stage)
		assert.Contains(t, out.Status.Message, "Configuration error")
		assert.False(t, o.Configured())
	})

	t.Run("endpoint 500 falls back to a simulated id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Failed to create blockchain timestamp","details":"boom"}`))
		}))
		defer srv.Close()

		client, err := timestamp.NewClient(srv.URL, time.Second)
		require.NoError(t, err)

		repo := &memRepo{}
		o := NewOrchestrator(
			newTestRecorder(storage.NewFileSystemStore(t.TempDir()), repo, RecorderConfig{}),
			timestamp.NewRequester(client),
			OrchestratorConfig{},
		)

		out, err := o.Protect(ctx, tenByteUpload(), nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out.Timestamp.TransactionHash, "0xSIM"))
		assert.True(t, out.Simulated)
		assert.Equal(t, StageDone, out.Status.Stage)
		assert.NotContains(t, out.Status.Message, "File protected!")
		assert.Contains(t, out.Status.Message, "simulated")
		assert.True(t, strings.HasPrefix(repo.records[0].BlockchainTx, "0xSIM"))
	})

	t.Run("storage failure halts before insert", func(t *testing.T) {
		store := &failingStore{}
		repo := &memRepo{}
		o := NewOrchestrator(newTestRecorder(store, repo, RecorderConfig{}), localRequester(), OrchestratorConfig{})

		out, err := o.Protect(ctx, tenByteUpload(), nil)
		assert.ErrorIs(t, err, ErrStorageUpload)
		assert.Equal(t, 1, store.puts)
		assert.Equal(t, 0, repo.creates)
		assert.Equal(t, StageFailed, out.Status.Stage)
		assert.Contains(t, out.Status.Message, "Storage error")
		assert.Nil(t, out.Record)
	})

	t.Run("insert failure leaves the blob", func(t *testing.T) {
		dir := t.TempDir()
		repo := &memRepo{createErr: errors.New("duplicate key")}
		o := NewOrchestrator(
			newTestRecorder(storage.NewFileSystemStore(dir), repo, RecorderConfig{}),
			localRequester(),
			OrchestratorConfig{},
		)

		out, err := o.Protect(ctx, tenByteUpload(), nil)
		assert.ErrorIs(t, err, ErrRecordInsert)
		assert.Contains(t, out.Status.Message, "Database error")

		objects, err := storage.NewFileSystemStore(dir).List(ctx)
		require.NoError(t, err)
		assert.Len(t, objects, 1)
	})

	t.Run("rejects oversized files", func(t *testing.T) {
		stamper := &countingStamper{}
		o := NewOrchestrator(
			newTestRecorder(storage.NewFileSystemStore(t.TempDir()), &memRepo{}, RecorderConfig{}),
			stamper,
			OrchestratorConfig{MaxFileSize: 5},
		)

		_, err := o.Protect(ctx, tenByteUpload(), nil)
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.Equal(t, 0, stamper.calls)
	})

	t.Run("empty file is protected", func(t *testing.T) {
		repo := &memRepo{}
		o := NewOrchestrator(
			newTestRecorder(storage.NewFileSystemStore(t.TempDir()), repo, RecorderConfig{}),
			localRequester(),
			OrchestratorConfig{},
		)

		u := tenByteUpload()
		u.Data = []byte{}
		out, err := o.Protect(ctx, u, nil)
		require.NoError(t, err)
		assert.Equal(t, StageDone, out.Status.Stage)
		// sha256 of the empty input
		assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", out.Hashes.Legal)
		assert.Equal(t, int64(0), out.Record.FileSize)
		assert.Equal(t, 1, repo.creates)
	})

	t.Run("overlong file name", func(t *testing.T) {
		repo := &memRepo{}
		o := NewOrchestrator(
			newTestRecorder(storage.NewFileSystemStore(t.TempDir()), repo, RecorderConfig{}),
			localRequester(),
			OrchestratorConfig{},
		)

		u := tenByteUpload()
		u.FileName = "a." + strings.Repeat("x", 300)
		out, err := o.Protect(ctx, u, nil)
		require.NoError(t, err)
		assert.Equal(t, StageDone, out.Status.Stage)
		assert.Len(t, out.Record.FileName, 255)
	})

	t.Run("password is stored hashed", func(t *testing.T) {
		repo := &memRepo{}
		o := NewOrchestrator(
			newTestRecorder(storage.NewFileSystemStore(t.TempDir()), repo, RecorderConfig{}),
			localRequester(),
			OrchestratorConfig{},
		)

		u := tenByteUpload()
		u.Password = "hunter2"
		out, err := o.Protect(ctx, u, nil)
		require.NoError(t, err)
		require.NotNil(t, out.Record.PasswordHash)
		assert.NotEqual(t, "hunter2", *out.Record.PasswordHash)
	})
}

func TestOrchestrator_AlreadyExists(t *testing.T) {
	ctx := context.Background()

	t.Run("fatal by default", func(t *testing.T) {
		repo := &memRepo{}
		o := NewOrchestrator(
			newTestRecorder(storage.NewFileSystemStore(t.TempDir()), repo, RecorderConfig{KeyScheme: KeySchemeContent}),
			localRequester(),
			OrchestratorConfig{},
		)

		_, err := o.Protect(ctx, tenByteUpload(), nil)
		require.NoError(t, err)
		_, err = o.Protect(ctx, tenByteUpload(), nil)
		assert.ErrorIs(t, err, ErrStorageUpload)
		assert.Len(t, repo.records, 1)
	})

	t.Run("tolerated when configured", func(t *testing.T) {
		repo := &memRepo{}
		o := NewOrchestrator(
			newTestRecorder(storage.NewFileSystemStore(t.TempDir()), repo, RecorderConfig{KeyScheme: KeySchemeContent, AllowExisting: true}),
			localRequester(),
			OrchestratorConfig{},
		)

		first, err := o.Protect(ctx, tenByteUpload(), nil)
		require.NoError(t, err)
		second, err := o.Protect(ctx, tenByteUpload(), nil)
		require.NoError(t, err)

		assert.Len(t, repo.records, 2)
		assert.Equal(t, first.Record.StoragePath, second.Record.StoragePath)
		assert.NotEqual(t, first.Record.ID, second.Record.ID)
	})
}
