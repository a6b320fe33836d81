package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"authgate/api/internal/cache"
	"authgate/api/internal/config"
	"authgate/api/internal/database"
	"authgate/api/internal/handlers"
	"authgate/api/internal/jobs"
	"authgate/api/internal/log"
	"authgate/api/internal/repository"
	"authgate/api/internal/retry"
	"authgate/api/internal/server"
	"authgate/api/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	handlerSet := handlers.NewHandlerSet(logger, dbPool, redisClient, cfg)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := newArchiveScheduler(ctx, cfg, dbPool, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func newArchiveScheduler(ctx context.Context, cfg *config.AppConfig, dbPool *pgxpool.Pool, logger zerolog.Logger) *jobs.Scheduler {
	var archive *storage.ArchiveStore
	if cfg.Archive.Enabled {
		store, err := storage.NewArchiveStore(cfg.Archive)
		if err != nil {
			logger.Error().Err(err).Msg("failed to init archive store, archival disabled")
		} else {
			if err := store.EnsureBucket(ctx); err != nil {
				logger.Warn().Err(err).Msg("ensure archive bucket failed")
			}
			archive = store
		}
	}

	history := repository.NewHistoryRepository(dbPool)
	return jobs.NewScheduler(history, archive, cfg.Archive, retry.Config(cfg.Retry), logger)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
