package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bloomshield/internal/core"
	"bloomshield/internal/server/config"
	"bloomshield/internal/server/database"
	"bloomshield/internal/server/storage"
	"bloomshield/internal/timestamp"
)

// Components is the service graph shared by the server and the CLI.
type Components struct {
	Store        storage.Store // nil when storage is not configured
	Ledger       *timestamp.Simulator
	Orchestrator *Orchestrator
	Protections  *ProtectionService
}

// NewStamper returns the in-process simulator for mode "local" and an HTTP
// client for mode "http".
func NewStamper(cfg config.TimestampConfig, sim *timestamp.Simulator) (timestamp.Stamper, error) {
	switch cfg.Mode {
	case "http":
		client, err := timestamp.NewClient(cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "local", "":
		return sim, nil
	default:
		return nil, fmt.Errorf("unknown timestamp mode %q", cfg.Mode)
	}
}

// Wire builds the storage client once from cfg and assembles the services
// around repo. Missing storage settings are not an error: the orchestrator is
// built without a recorder and reports the configuration error per request.
func Wire(ctx context.Context, cfg *config.Config, repo database.Repository) (*Components, error) {
	mode, err := core.ParseContentMode(cfg.ContentHashMode)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		slog.Warn("storage is not configured, protect requests will be rejected",
			"backend", cfg.Storage.Backend,
		)
		store = nil
	case err != nil:
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	default:
		slog.Info("storage initialized",
			"backend", cfg.Storage.Backend,
			"bucket", cfg.Storage.Bucket,
			"key_scheme", cfg.Storage.KeyScheme,
		)
	}

	sim := timestamp.NewSimulator(timestamp.SimulatorConfig{
		Chain:           cfg.Timestamp.Chain,
		ContractAddress: cfg.Timestamp.ContractAddress,
		ExplorerURL:     cfg.Timestamp.ExplorerURL,
		Delay:           cfg.Timestamp.Delay,
	})
	stamper, err := NewStamper(cfg.Timestamp, sim)
	if err != nil {
		return nil, err
	}

	var recorder *Recorder
	if store != nil {
		recorder = NewRecorder(store, repo, RecorderConfig{
			KeyScheme:     cfg.Storage.KeyScheme,
			AllowExisting: cfg.Storage.AllowExisting,
		})
	}

	return &Components{
		Store:  store,
		Ledger: sim,
		Orchestrator: NewOrchestrator(recorder, timestamp.NewRequester(stamper), OrchestratorConfig{
			ContentMode: mode,
			MaxFileSize: cfg.MaxFileSize,
		}),
		Protections: NewProtectionService(repo, store, cfg.BaseURL, cfg.CacheSize, cfg.CacheTTL),
	}, nil
}
