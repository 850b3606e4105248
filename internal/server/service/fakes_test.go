package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"bloomshield/internal/server/database"
	"bloomshield/internal/server/storage"
	"bloomshield/internal/timestamp"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (g *seqIDs) New() string {
	g.n++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.n)
}

// memRepo is an in-memory database.Repository.
type memRepo struct {
	mu        sync.Mutex
	records   []*database.Protection
	createErr error
	creates   int
	gets      int
}

func (r *memRepo) Create(_ context.Context, p *database.Protection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return r.createErr
	}
	cp := *p
	r.records = append(r.records, &cp)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*database.Protection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	for _, p := range r.records {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, database.ErrProtectionNotFound
}

func (r *memRepo) filter(match func(*database.Protection) bool) []*database.Protection {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*database.Protection
	for _, p := range r.records {
		if match(p) {
			out = append(out, p)
		}
	}
	return out
}

func (r *memRepo) FindByLegalHash(_ context.Context, legalHash string) ([]*database.Protection, error) {
	return r.filter(func(p *database.Protection) bool { return p.LegalHash == legalHash }), nil
}

func (r *memRepo) GetByTransaction(_ context.Context, txHash string) ([]*database.Protection, error) {
	return r.filter(func(p *database.Protection) bool { return p.BlockchainTx == txHash }), nil
}

func (r *memRepo) StoragePathExists(_ context.Context, path string) (bool, error) {
	return len(r.filter(func(p *database.Protection) bool { return p.StoragePath == path })) > 0, nil
}

func (r *memRepo) GetStats(context.Context) (*database.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &database.Stats{TotalProtections: int64(len(r.records))}
	for _, p := range r.records {
		s.TotalBytes += p.FileSize
		if timestamp.IsSimulated(p.BlockchainTx) {
			s.SimulatedTimestamps++
		}
	}
	return s, nil
}

func (r *memRepo) HealthCheck(context.Context) error { return nil }
func (r *memRepo) Migrate(context.Context) error     { return nil }
func (r *memRepo) Close()                            {}

// failingStore rejects every Put and counts attempts.
type failingStore struct {
	puts int
}

func (s *failingStore) Put(context.Context, string, io.Reader, int64, string) (string, error) {
	s.puts++
	return "", errors.New("connection refused")
}

func (s *failingStore) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (s *failingStore) Delete(context.Context, string) error { return nil }

func (s *failingStore) List(context.Context) ([]storage.Object, error) { return nil, nil }

// countingStamper records how often it was asked for a timestamp.
type countingStamper struct {
	calls int
	next  timestamp.Result
}

func (s *countingStamper) Request(_ context.Context, req timestamp.Request) timestamp.Result {
	s.calls++
	return s.next
}
