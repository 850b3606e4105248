package timestamp

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Stamper produces a transaction record for a set of hashes.
// Both Simulator and Client implement it.
type Stamper interface {
	Stamp(ctx context.Context, req Request) (*Response, error)
}

// Requester asks a Stamper for a timestamp and never fails: when the
// Stamper errors it falls back to a locally fabricated result.
type Requester struct {
	stamper Stamper
	now     func() time.Time
}

// NewRequester wraps stamper with the fallback policy.
func NewRequester(stamper Stamper) *Requester {
	return &Requester{stamper: stamper, now: time.Now}
}

// Request stamps req. The returned Result is Simulated when the stamper
// failed or returned no transaction.
func (r *Requester) Request(ctx context.Context, req Request) Result {
	resp, err := r.stamper.Stamp(ctx, req)
	if err == nil && resp != nil && resp.Success && resp.Blockchain != nil {
		return ResultFrom(resp.Blockchain)
	}

	fallback := Fallback(r.now())
	slog.Warn("timestamp request failed, using simulated transaction",
		"legal_hash", req.LegalHash,
		"tx_hash", fallback.TransactionHash,
		"error", err,
	)
	return fallback
}

// Fallback fabricates a placeholder transaction stamped at now.
func Fallback(now time.Time) Result {
	suffix, err := randomHex(8)
	if err != nil {
		suffix = strconv.FormatInt(now.UnixMilli(), 16)
	}
	return Result{
		TransactionHash: SimulatedPrefix + suffix,
		Timestamp:       now.UTC(),
	}
}
