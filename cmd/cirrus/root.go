package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/veldt-io/cirrus/config"
	"github.com/veldt-io/cirrus/credentials"
	"github.com/veldt-io/cirrus/journal"
	"github.com/veldt-io/cirrus/storage"
	"github.com/veldt-io/cirrus/syncer"
	"github.com/veldt-io/cirrus/telemetry"
)

var (
	version    = "0.1.0"
	configPath string
	debugMode  bool

	rootCmd = &cobra.Command{
		Use:   "cirrus",
		Short: "Multi-cloud VM inventory mirror",
		Long: `Cirrus - Multi-cloud VM inventory mirror

Cirrus keeps a local canonical inventory of virtual machines across
OpenStack, AWS, Azure and GCP accounts. Sync runs enumerate each
provider, diff the snapshot against the store and commit creates,
updates and retirements. Instances that disappear from a provider are
retired, never deleted, so their history survives.`,
		Version: version,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "cirrus.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles everything a command needs after bootstrap.
type app struct {
	cfg     *config.Config
	store   *storage.BoltStore
	engine  *syncer.Engine
	journal *journal.Journal
	logger  zerolog.Logger
}

func (a *app) Close() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// newApp loads the config, opens storage and journal, seeds configured
// providers into the store and wires up the sync engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := telemetry.NewConsoleLogger(debugMode)

	store, err := storage.Open(cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	var jrnl *journal.Journal
	if cfg.JournalDir != "" {
		jrnl, err = journal.Open(cfg.JournalDir)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	if err := seedProviders(ctx, store, cfg); err != nil {
		_ = store.Close()
		return nil, err
	}

	credFile, err := credentials.LoadFile(cfg.CredentialsFile)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engine := syncer.NewEngine(store, credentials.NewResolver(store, credFile), jrnl, logger, syncer.Options{
		RunDeadline: cfg.Sync.RunDeadline,
		CallTimeout: cfg.Sync.CallTimeout,
		MaxRetries:  cfg.Sync.MaxRetries,
	})

	return &app{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		journal: jrnl,
		logger:  logger,
	}, nil
}

// seedProviders reconciles the configured provider list into the store.
// Existing providers keep their sync lineage; only the declarative fields
// follow the config.
func seedProviders(ctx context.Context, store storage.Store, cfg *config.Config) error {
	now := time.Now().UTC()
	for i := range cfg.Providers {
		pc := &cfg.Providers[i]

		existing, err := store.GetProvider(ctx, pc.ID)
		if errors.Is(err, storage.ErrNotFound) {
			p := pc.ToProvider(now)
			if err := store.PutProvider(ctx, &p); err != nil {
				return fmt.Errorf("seeding provider %s: %w", pc.ID, err)
			}
			continue
		}
		if err != nil {
			return err
		}

		existing.Name = pc.Name
		existing.Regions = pc.Regions
		existing.Enabled = pc.IsEnabled()
		existing.CredentialRef = pc.CredentialRef
		if err := store.PutProvider(ctx, existing); err != nil {
			return fmt.Errorf("updating provider %s: %w", pc.ID, err)
		}
	}
	return nil
}
