package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	migrations "folio/engine/db"
	"folio/engine/internal/app"
	"folio/engine/internal/config"
	"folio/engine/internal/filestore"
	"folio/engine/internal/gitrepo"
	"folio/engine/internal/logging"
	"folio/engine/internal/metrics"
	"folio/engine/internal/previewcache"
	"folio/engine/internal/signals"
	"folio/engine/internal/store"
)

var gracefulTimeout = 10 * time.Second

var (
	flagConfPath string
	flagLogLevel string
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [options]",
		Short: "Run the ops HTTP server and the workflow signal consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// loadConfig reads the configuration, applies the command-line overrides,
// validates it and sets the log level.
func loadConfig() (config.Config, error) {
	path := flagConfPath
	if path == "" {
		path = os.Getenv("FOLIO_CONFIG_FILE")
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return config.Config{}, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logging.SetLogLevel(cfg.LogLevel); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New("engine")

	m, err := metrics.NewMetrics()
	if err != nil {
		return err
	}

	dataStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := app.Options{
		Store:        dataStore,
		Previews:     previewcache.NewMemoryCache(cfg.PreviewTTL),
		Metrics:      m,
		Logger:       logging.New("coordinator"),
		MergeTimeout: cfg.MergeTimeout,
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
		opts.Previews = previewcache.NewRedisCacheWithClient(redisClient, cfg.PreviewTTL)
		logger.Infow("using redis for previews and workflow signals")
	} else {
		logger.Warnw("REDIS_URL is not set; previews are process-local and workflow signals are disabled")
	}

	if cfg.MirrorDir != "" {
		if err := os.MkdirAll(cfg.MirrorDir, 0o755); err != nil {
			return fmt.Errorf("create mirror dir: %w", err)
		}
		opts.Mirror = gitrepo.NewMirror(cfg.MirrorDir)
	}

	if cfg.Minio.Enabled() {
		checker, err := filestore.NewMinioChecker(filestore.Options{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return err
		}
		opts.Files = checker
	}

	service := app.NewService(opts)
	server := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           app.NewHTTPServer(service, m, logging.New("ops-http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("ops server listening", "addr", cfg.OpsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	if redisClient != nil {
		consumer := signals.NewConsumer(service, signals.Options{
			Client:       redisClient,
			Stream:       cfg.SignalStream,
			Group:        cfg.SignalGroup,
			Consumer:     cfg.SignalConsumer,
			ResultStream: cfg.ResultStream,
			Metrics:      m,
			Logger:       logging.New("signals"),
		})
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
		defer cancel()
		logger.Infow("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore connects to Postgres and applies migrations when DATABASE_URL
// is set, and falls back to the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config, logger logging.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warnw("DATABASE_URL is not set; revisions are kept in memory")
		memory, err := store.NewMemoryStore()
		if err != nil {
			return nil, nil, err
		}
		return memory, func() {}, nil
	}

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(db), func() { _ = db.Close() }, nil
}

func openDatabase(ctx context.Context, cfg config.Config, logger logging.Logger) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	applied, err := store.ApplyMigrations(ctx, db, migrationFiles(cfg))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	for _, name := range applied {
		logger.Infow("migration applied", "migration", name)
	}
	return db, nil
}

func migrationFiles(cfg config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.Migrations()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfPath, "config", "c", "", "Config file path (defaults to FOLIO_CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVarP(&flagLogLevel, "log-level", "l", "", "Log level: debug, info, warn, error, panic, fatal")
}
