package storage

import (
	"context"
	"log/slog"
	"time"
)

// ReferenceChecker reports whether any record points at a storage path.
type ReferenceChecker interface {
	StoragePathExists(ctx context.Context, path string) (bool, error)
}

// OrphanSweeper periodically deletes blobs that no record references.
// A blob is an orphan when its record insert failed after the upload
// succeeded. Blobs younger than the grace period are left alone so an
// upload whose insert is still in flight is never swept.
type OrphanSweeper struct {
	refs     ReferenceChecker
	store    Store
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	done     chan struct{}
}

// NewOrphanSweeper creates a new sweeper.
func NewOrphanSweeper(refs ReferenceChecker, store Store, interval, grace time.Duration) *OrphanSweeper {
	return &OrphanSweeper{
		refs:     refs,
		store:    store,
		interval: interval,
		grace:    grace,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *OrphanSweeper) Start(ctx context.Context) {
	slog.Info("orphan sweeper started", "interval", s.interval, "grace", s.grace)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Sweep(ctx)

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("orphan sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *OrphanSweeper) Wait() {
	<-s.done
}

// Sweep runs one cycle and returns the number of blobs deleted.
func (s *OrphanSweeper) Sweep(ctx context.Context) int {
	objects, err := s.store.List(ctx)
	if err != nil {
		slog.Error("failed to list stored objects", "error", err)
		return 0
	}

	cutoff := s.now().Add(-s.grace)
	var swept, failed int
	for _, obj := range objects {
		if obj.ModTime.After(cutoff) {
			continue
		}

		referenced, err := s.refs.StoragePathExists(ctx, obj.Key)
		if err != nil {
			slog.Error("failed to check storage path", "storage_path", obj.Key, "error", err)
			failed++
			continue
		}
		if referenced {
			continue
		}

		if err := s.store.Delete(ctx, obj.Key); err != nil {
			slog.Error("failed to delete orphaned object", "storage_path", obj.Key, "error", err)
			failed++
			continue
		}

		swept++
		slog.Info("deleted orphaned object",
			"storage_path", obj.Key,
			"size", obj.Size,
			"mod_time", obj.ModTime,
		)
	}

	slog.Info("orphan sweep complete",
		"swept", swept,
		"failed", failed,
		"total_objects", len(objects),
	)
	return swept
}
