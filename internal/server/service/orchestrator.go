package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bloomshield/internal/core"
	"bloomshield/internal/server/database"
	"bloomshield/internal/timestamp"
)

var (
	protectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloomshield_protections_total",
		Help: "Protection attempts by outcome.",
	}, []string{"outcome"})

	timestampsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloomshield_timestamps_total",
		Help: "Timestamps obtained, by kind (ledger or simulated).",
	}, []string{"kind"})

	protectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bloomshield_protect_duration_seconds",
		Help:    "Duration of the full protect sequence.",
		Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30, 60},
	})
)

// Stage names a step of the protect sequence.
type Stage string

const (
	StageHashing      Stage = "hashing"
	StageTimestamping Stage = "timestamping"
	StageUploading    Stage = "uploading"
	StageRecording    Stage = "recording"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Status is the human-readable progress line published after each step.
type Status struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// StatusFunc receives every status update. It may be nil.
type StatusFunc func(Status)

// Upload is one file submitted for protection.
type Upload struct {
	FileName     string
	MimeType     string
	LastModified time.Time
	Data         []byte
	Password     string
}

// Outcome is the result of one protect attempt. It is returned on failure
// too, carrying the statuses published so far.
type Outcome struct {
	Record    *database.Protection
	Hashes    core.Hashes
	Timestamp timestamp.Result
	Simulated bool
	Status    Status
	StatusLog []Status
}

// TimestampRequester obtains a timestamp and never fails.
type TimestampRequester interface {
	Request(ctx context.Context, req timestamp.Request) timestamp.Result
}

// OrchestratorConfig holds the toggles of the protect sequence.
type OrchestratorConfig struct {
	ContentMode core.ContentMode
	MaxFileSize int64
}

// Orchestrator runs hash -> timestamp -> upload+record -> report, strictly in
// order, with no retries.
type Orchestrator struct {
	recorder *Recorder
	stamps   TimestampRequester
	cfg      OrchestratorConfig
}

// NewOrchestrator creates an Orchestrator. A nil recorder means storage is not
// configured: every Protect call then fails before doing any work.
func NewOrchestrator(recorder *Recorder, stamps TimestampRequester, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{recorder: recorder, stamps: stamps, cfg: cfg}
}

// Configured reports whether the orchestrator can record protections.
func (o *Orchestrator) Configured() bool {
	return o.recorder != nil
}

// Protect runs the protect sequence for u, calling onStatus after each step.
func (o *Orchestrator) Protect(ctx context.Context, u Upload, onStatus StatusFunc) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{}

	publish := func(stage Stage, msg string) {
		st := Status{Stage: stage, Message: msg}
		out.Status = st
		out.StatusLog = append(out.StatusLog, st)
		if onStatus != nil {
			onStatus(st)
		}
	}
	fail := func(outcome, msg string, err error) (*Outcome, error) {
		publish(StageFailed, msg)
		protectionsTotal.WithLabelValues(outcome).Inc()
		slog.Error("protect failed",
			"file_name", u.FileName,
			"stage", outcome,
			"error", err,
		)
		return out, err
	}

	if o.recorder == nil {
		return fail("not_configured", "Configuration error: storage is not configured", ErrNotConfigured)
	}
	if o.cfg.MaxFileSize > 0 && int64(len(u.Data)) > o.cfg.MaxFileSize {
		return fail("rejected", "Error: file exceeds maximum allowed size", ErrFileTooLarge)
	}

	passwordHash, err := HashPassword(u.Password)
	if err != nil {
		return fail("rejected", "Error: "+err.Error(), err)
	}

	// 1. Hashes
	publish(StageHashing, "Generating legal, content and floral hashes...")
	hashes, err := core.DeriveHashes(u.Data, core.FileMeta{
		Name:         u.FileName,
		Size:         int64(len(u.Data)),
		MimeType:     u.MimeType,
		LastModified: u.LastModified,
	}, o.cfg.ContentMode)
	if err != nil {
		return fail("hash_failed", "Error: hash generation failed", err)
	}
	out.Hashes = hashes

	// 2. Timestamp (never fails; falls back to a simulated id)
	publish(StageTimestamping, "Creating blockchain timestamp...")
	ts := o.stamps.Request(ctx, timestamp.Request{
		LegalHash:   hashes.Legal,
		ContentHash: hashes.Content,
		FloralHash:  hashes.Floral,
		FileName:    u.FileName,
		FileSize:    int64(len(u.Data)),
		MimeType:    u.MimeType,
	})
	out.Timestamp = ts
	out.Simulated = ts.Simulated()
	if out.Simulated {
		timestampsTotal.WithLabelValues("simulated").Inc()
	} else {
		timestampsTotal.WithLabelValues("ledger").Inc()
	}

	in := RecordInput{
		FileName:     u.FileName,
		MimeType:     u.MimeType,
		Data:         u.Data,
		Hashes:       hashes,
		Timestamp:    ts,
		PasswordHash: passwordHash,
	}

	// 3. Upload, then record
	publish(StageUploading, "Uploading to secure storage...")
	path, err := o.recorder.Upload(ctx, in)
	if err != nil {
		return fail("storage_failed", "Storage error: "+err.Error(), err)
	}

	publish(StageRecording, "Saving protection record...")
	record, err := o.recorder.Insert(ctx, in, path)
	if err != nil {
		return fail("insert_failed", "Database error: "+err.Error(), err)
	}
	out.Record = record

	// 4. Report
	if out.Simulated {
		publish(StageDone, fmt.Sprintf("File stored with a simulated timestamp (%s); no ledger confirmation", ts.TransactionHash))
		protectionsTotal.WithLabelValues("protected_simulated").Inc()
	} else {
		publish(StageDone, fmt.Sprintf("File protected! Transaction %s", ts.TransactionHash))
		protectionsTotal.WithLabelValues("protected").Inc()
	}
	protectDuration.Observe(time.Since(start).Seconds())

	return out, nil
}
