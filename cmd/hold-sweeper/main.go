package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-scheduling/internal/appointment"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-slot-scheduling/internal/redis"
	"github.com/hackgods/clinic-slot-scheduling/internal/schedule"
)

const sweepLock = "hold-sweeper"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, "hold-sweeper")
	logger.Info().Dur("interval", cfg.SweepInterval).Msg("hold-sweeper starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	engine := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		schedule.NewPgRepository(pgPool),
		cfg,
		logger,
	)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	// Run once at startup
	runOnce(rootCtx, engine, locker, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping hold-sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, engine, locker, logger)
		}
	}
}

// runOnce releases expired holds if no other sweeper instance holds the lock.
func runOnce(ctx context.Context, engine appointment.Scheduler, locker redisclient.Locker, logger zerolog.Logger) {
	start := time.Now()

	var released int64
	err := locker.WithLock(ctx, redisclient.LockKey(sweepLock), func(ctx context.Context) error {
		n, err := engine.ReleaseExpiredHolds(ctx)
		released = n
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		logger.Debug().Msg("another sweeper holds the lock, skipping run")
	case err != nil:
		logger.Error().Err(err).Msg("sweep run failed")
	default:
		logger.Info().Int64("released", released).Dur("took", time.Since(start)).Msg("sweep run complete")
	}
}
