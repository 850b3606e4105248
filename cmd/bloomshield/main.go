package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bloomshield/internal/core"
	"bloomshield/internal/server/config"
	"bloomshield/internal/server/database"
	"bloomshield/internal/server/service"
	"bloomshield/internal/timestamp"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config (or CONFIG_FILE) with the environment applied on top.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:           "bloomshield",
	Short:         "Fingerprint files and record them with a ledger timestamp",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var hashMode string

var hashCmd = &cobra.Command{
	Use:   "hash FILE...",
	Short: "Print the legal, content and floral hashes of each file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := core.ParseContentMode(hashMode)
		if err != nil {
			return err
		}

		paths, err := core.ParseArgs(args)
		if err != nil {
			return err
		}

		for _, p := range paths {
			in, err := core.LoadFile(p.FullPath)
			if err != nil {
				return err
			}
			h, err := core.DeriveHashes(in.Data, in.Meta, mode)
			if err != nil {
				return fmt.Errorf("%s: %w", p.FullPath, err)
			}

			fmt.Printf("%s\n", p.FullPath)
			fmt.Printf("  legal:   %s\n", h.Legal)
			fmt.Printf("  content: %s\n", h.Content)
			fmt.Printf("  floral:  %s\n", h.Floral)
		}
		return nil
	},
}

var (
	protectPassword string
	protectMode     string
	protectDB       string
)

var protectCmd = &cobra.Command{
	Use:   "protect FILE...",
	Short: "Hash, timestamp, store and record each file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if protectMode != "" {
			cfg.Timestamp.Mode = protectMode
		}
		if protectDB != "" {
			cfg.DatabaseURL = protectDB
		}

		// Nothing leaves the machine until storage settings are present.
		if !cfg.Storage.Configured() {
			return errors.New("Configuration error: storage is not configured")
		}

		paths, err := core.ParseArgs(args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		repo, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.Migrate(ctx); err != nil {
			return err
		}

		app, err := service.Wire(ctx, cfg, repo)
		if err != nil {
			return err
		}

		var failed int
		for _, p := range paths {
			in, err := core.LoadFile(p.FullPath)
			if err != nil {
				return err
			}

			fmt.Printf("%s\n", p.FullPath)
			out, err := app.Orchestrator.Protect(ctx, service.Upload{
				FileName:     in.Meta.Name,
				MimeType:     in.Meta.MimeType,
				LastModified: in.Meta.LastModified,
				Data:         in.Data,
				Password:     protectPassword,
			}, func(s service.Status) {
				fmt.Printf("  [%s] %s\n", s.Stage, s.Message)
			})
			if err != nil {
				failed++
				continue
			}

			fmt.Printf("  id:     %s\n", out.Record.ID)
			fmt.Printf("  legal:  %s\n", out.Hashes.Legal)
			fmt.Printf("  tx:     %s\n", out.Timestamp.TransactionHash)
			if out.Timestamp.Explorer != "" {
				fmt.Printf("  explorer: %s\n", out.Timestamp.Explorer)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(paths))
		}
		return nil
	},
}

var verifyURL string

var verifyCmd = &cobra.Command{
	Use:   "verify TXHASH",
	Short: "Ask the timestamp endpoint about a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		endpoint := cfg.Timestamp.URL
		if verifyURL != "" {
			endpoint = verifyURL
		}

		client, err := timestamp.NewClient(endpoint, cfg.Timestamp.Timeout)
		if err != nil {
			return err
		}

		if timestamp.IsSimulated(args[0]) {
			fmt.Fprintln(os.Stderr, "note: this transaction id was generated locally and was never sent to a ledger")
		}

		resp, err := client.Verify(cmd.Context(), args[0], "")
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Verification)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	hashCmd.Flags().StringVar(&hashMode, "content-mode", "properties", "content hash mode (properties or checksum)")

	protectCmd.Flags().StringVarP(&protectPassword, "password", "p", "", "password required to download the stored copy")
	protectCmd.Flags().StringVar(&protectMode, "timestamp-mode", "", "override timestamp mode (local or http)")
	protectCmd.Flags().StringVar(&protectDB, "database", "", "override DATABASE_URL (postgres:// or sqlite://)")

	verifyCmd.Flags().StringVar(&verifyURL, "url", "", "timestamp endpoint (defaults to TIMESTAMP_URL)")

	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(protectCmd)
	rootCmd.AddCommand(verifyCmd)
}
