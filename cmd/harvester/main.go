// cmd/harvester/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github-stats-harvester/internal/api"
	"github-stats-harvester/internal/config"
	"github-stats-harvester/internal/database"
	"github-stats-harvester/internal/discovery"
	"github-stats-harvester/internal/errutil"
	"github-stats-harvester/internal/github"
	"github-stats-harvester/internal/harvest"
	"github-stats-harvester/internal/logging"
	"github-stats-harvester/internal/ratelimit"
	"github-stats-harvester/internal/store"
	"github-stats-harvester/internal/syncer"
	"github-stats-harvester/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 1. Load configuration
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Initialize structured logger
	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}
	slog.SetDefault(logger)
	logger.Info("Configuration loaded successfully", "config", cfg)

	if err := errutil.InitSentry(cfg.SentryDSN, cfg.SentryEnv, logger); err != nil {
		return err
	}
	defer sentry.Flush(2 * time.Second)

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	poolCfg, err := pgxpool.ParseConfig(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("invalid database url: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns

	dbpool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	if err := dbpool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	logger.Info("Database connection established", "max_conns", cfg.DBMaxConns)

	if cfg.RunMigrations {
		if err := migrations.Up(cfg.DBURL); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		logger.Info("Database migrations applied successfully")
	}

	// 5. Initialize application components
	tracker := ratelimit.NewTracker(logger,
		ratelimit.WithFloor(cfg.RateLimitFloor),
		ratelimit.WithMargin(cfg.RateLimitMargin),
	)
	ghClient, err := github.NewClient(cfg.GithubToken, tracker, logger,
		github.WithEndpoint(cfg.GithubGraphQLURL),
		github.WithRESTBaseURL(cfg.GithubAPIURL),
	)
	if err != nil {
		return fmt.Errorf("failed to create github client: %w", err)
	}

	queries := database.New(dbpool)
	repoStore := store.NewWithPool(dbpool, logger)
	discoverer := discovery.NewDiscoverer(ghClient, logger, discovery.Options{
		Start:    cfg.DiscoveryStart,
		StepDays: cfg.PartitionStepDays,
		Pause:    cfg.WindowPause,
	})
	harvester := harvest.NewHarvester(ghClient, repoStore, logger, cfg.Concurrency, cfg.BatchSize)
	appSyncer := syncer.NewSyncer(discoverer, harvester, repoStore, ghClient, logger, syncer.Options{
		Target:          cfg.Target,
		Interval:        cfg.HarvestInterval,
		ResumeFromSeeds: cfg.ResumeFromSeeds,
	})

	// 6. Start the read API when an address is configured
	var srv *http.Server
	if cfg.ServeAddr != "" {
		srv = &http.Server{
			Addr:              cfg.ServeAddr,
			Handler:           api.NewRouter(queries, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Starting API server", "addr", cfg.ServeAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errutil.HandleError(ctx, logger, "API server failed", err)
				cancel()
			}
		}()
	}

	// 7. Run the syncer; a single pass returns when done, periodic mode on shutdown
	syncErr := appSyncer.Start(ctx)
	if syncErr != nil && !errors.Is(syncErr, context.Canceled) {
		errutil.HandleError(ctx, logger, "Harvest run failed", syncErr)
	}

	if srv != nil {
		if cfg.HarvestInterval == 0 && syncErr == nil {
			logger.Info("Harvest finished, API still serving. Waiting for shutdown signal...")
			<-ctx.Done()
		}
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown failed", "error", err)
		}
	}

	logger.Info("Shutdown complete")
	if errors.Is(syncErr, context.Canceled) {
		return nil
	}
	return syncErr
}
