package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/slotpool/slotpool/pkg/api"
	"github.com/slotpool/slotpool/pkg/config"
	"github.com/slotpool/slotpool/pkg/engine"
	"github.com/slotpool/slotpool/pkg/events"
	"github.com/slotpool/slotpool/pkg/journal"
	"github.com/slotpool/slotpool/pkg/log"
	"github.com/slotpool/slotpool/pkg/pool"
	"github.com/slotpool/slotpool/pkg/process"
	"github.com/slotpool/slotpool/pkg/registry"
	"github.com/slotpool/slotpool/pkg/zfs"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "slotpool",
	Short: "slotpool - Slot pool state manager for microVMs",
	Long: `slotpool manages the ZFS-backed disk states behind a pool of
reusable microVM execution slots. Sessions borrow a slot (restoring
their previous disk state or starting blank) and return it (persisting
the disk state as a snapshot keyed by session id).

It serves the borrow/return webhook surface and provides direct state
management commands for operators.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"slotpool version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig loads configuration and initializes logging
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	return cfg, nil
}

// buildEngine wires the lifecycle engine from configuration
func buildEngine(cfg *config.Config, broker *events.Broker) (*engine.Engine, error) {
	backend, err := zfs.Detect(cfg.Pool, cfg.BaseDataset)
	if err != nil {
		return nil, fmt.Errorf("failed to select storage backend: %w", err)
	}

	reg := registry.New(cfg.AssignmentsFile, cfg.StatesDir, cfg.SlotsDir)
	blanks := pool.New(backend, cfg.StatesDir, cfg.Owner)
	proc := process.NewSystemdController(cfg.ServiceTemplate)

	return engine.New(&engine.Config{
		Backend:     backend,
		Registry:    reg,
		Pool:        blanks,
		Process:     proc,
		Broker:      broker,
		ZFSPool:     cfg.Pool,
		BaseDataset: cfg.BaseDataset,
		StatesDir:   cfg.StatesDir,
		Owner:       cfg.Owner,
	}), nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the borrow/return webhook endpoints",
	Long: `Start the slot pool webhook server.

The server receives borrow and return webhooks from the pool
allocator, drives the slot state lifecycle, and exposes health and
metrics endpoints. Listen address comes from the HOST and PORT
environment variables or the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		broker := events.NewBroker()
		broker.Start()

		jnl, err := journal.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		jnl.Consume(broker)

		eng, err := buildEngine(cfg, broker)
		if err != nil {
			return err
		}

		server := api.NewServer(eng)
		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(cfg.ListenAddr()); err != nil {
				errCh <- fmt.Errorf("webhook server error: %w", err)
			}
		}()

		log.Info("slot pool manager is running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down")
		case err := <-errCh:
			log.Errorf("server failed", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			log.Errorf("failed to stop server", err)
		}

		jnl.StopConsuming()
		broker.Stop()
		if err := jnl.Close(); err != nil {
			return fmt.Errorf("failed to close journal: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("host", "", "listen host (overrides HOST)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides PORT)")

	cobra.OnInitialize(func() {
		// Flag overrides are applied through the environment so
		// config.Load sees one precedence chain
		if host, _ := serveCmd.Flags().GetString("host"); host != "" {
			os.Setenv("HOST", host)
		}
		if port, _ := serveCmd.Flags().GetInt("port"); port != 0 {
			os.Setenv("PORT", fmt.Sprintf("%d", port))
		}
	})
}
