package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refSet map[string]bool

func (r refSet) StoragePathExists(_ context.Context, path string) (bool, error) {
	return r[path], nil
}

type failingRefs struct{}

func (failingRefs) StoragePathExists(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}

func TestOrphanSweeper_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes only old unreferenced blobs", func(t *testing.T) {
		api := newMemS3()
		store := &S3Store{client: api, bucket: "b"}
		for _, k := range []string{"kept", "orphan"} {
			_, err := store.Put(ctx, k, strings.NewReader(k), int64(len(k)), "")
			require.NoError(t, err)
		}

		s := NewOrphanSweeper(refSet{"kept": true}, store, time.Hour, time.Hour)
		s.now = func() time.Time { return api.modTime.Add(2 * time.Hour) }

		assert.Equal(t, 1, s.Sweep(ctx))
		assert.Contains(t, api.objects, "kept")
		assert.NotContains(t, api.objects, "orphan")
	})

	t.Run("young blobs survive the grace period", func(t *testing.T) {
		api := newMemS3()
		store := &S3Store{client: api, bucket: "b"}
		_, err := store.Put(ctx, "fresh", strings.NewReader("x"), 1, "")
		require.NoError(t, err)

		s := NewOrphanSweeper(refSet{}, store, time.Hour, time.Hour)
		s.now = func() time.Time { return api.modTime.Add(time.Minute) }

		assert.Equal(t, 0, s.Sweep(ctx))
		assert.Contains(t, api.objects, "fresh")
	})

	t.Run("lookup errors keep the blob", func(t *testing.T) {
		api := newMemS3()
		store := &S3Store{client: api, bucket: "b"}
		_, err := store.Put(ctx, "unknown", strings.NewReader("x"), 1, "")
		require.NoError(t, err)

		s := NewOrphanSweeper(failingRefs{}, store, time.Hour, 0)
		s.now = func() time.Time { return api.modTime.Add(time.Hour) }

		assert.Equal(t, 0, s.Sweep(ctx))
		assert.Contains(t, api.objects, "unknown")
	})
}

func TestOrphanSweeper_StartStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewOrphanSweeper(refSet{}, NewFileSystemStore(t.TempDir()), time.Hour, time.Hour)

	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
