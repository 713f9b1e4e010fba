package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"feedprobe/internal/api"
	"feedprobe/internal/auth"
	"feedprobe/internal/config"
	"feedprobe/internal/db"
	"feedprobe/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "feedd",
		Short:        "Reference NuGet V2 feed server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load environment variables
			if err := config.LoadEnvFile(".env"); err != nil {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return nil
		},
	}

	root.AddCommand(newServeCmd(), newMigrateCmd(), newAPIKeyCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the feed over HTTP",
		Long: `Serve the feed at /api/v2 with /health and /metrics at the root.

Configuration comes from the environment: DATABASE_URL (empty for the
in-memory store), STORAGE_PATH, PORT, JWT_SECRET, BASE_URL,
PROPAGATION_DELAY, MAX_PACKAGE_SIZE, LOG_LEVEL and LOG_JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
			defer log.Sync() //nolint:errcheck

			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Health(ctx); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}

	// Create storage directory if it doesn't exist
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           api.NewServer(store, cfg, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("feed server starting",
			zap.String("addr", srv.Addr),
			zap.String("storage", cfg.StoragePath),
			zap.Bool("memory_store", cfg.UsesMemoryStore()),
			zap.Duration("propagation_delay", cfg.PropagationDelay))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (db.Store, error) {
	if cfg.UsesMemoryStore() {
		log.Warn("DATABASE_URL not set, packages are kept in memory")
		return db.NewMemoryStore(), nil
	}

	database, err := db.Connect(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.UsesMemoryStore() {
				return errors.New("DATABASE_URL is required to migrate")
			}

			database, err := db.Connect(cmd.Context(), cfg.DBURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()

			if err := database.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func newAPIKeyCmd() *cobra.Command {
	var (
		owner string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Issue an API key for push and delete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			key, err := auth.NewKeyManager(cfg.JWTSecret).GenerateKey(owner, ttl)
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}

			expires := "never"
			if ttl > 0 {
				expires = time.Now().Add(ttl).UTC().Format(time.RFC3339)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, key)
			fmt.Fprintf(out, "owner=%s fingerprint=%s expires=%s\n", owner, auth.Fingerprint(key), expires)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "feedprobe", "key owner recorded in the claims")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "key lifetime, 0 for no expiry")
	return cmd
}
