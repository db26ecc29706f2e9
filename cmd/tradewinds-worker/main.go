package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tradewinds/internal/config"
	"tradewinds/internal/db"
	"tradewinds/internal/engine"
	"tradewinds/internal/game"
	"tradewinds/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	econ := engine.DefaultConfig()
	econ.TickInterval = cfg.TickEvery
	svc := game.NewService(st, logger, econ, cfg.LaunchDate)
	if err := svc.EnsureMarket(ctx, cfg.GenesisSeed); err != nil {
		logger.Error("market init failed", "err", err)
		os.Exit(1)
	}

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("TW_WORKER_RUN_ONCE")), "true")
	if runOnce {
		if _, err := svc.RunMarketTick(ctx, time.Now()); err != nil {
			logger.Error("tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.TickEvery)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.TickEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case now := <-ticker.C:
			out, err := svc.RunMarketTick(ctx, now)
			if err != nil {
				logger.Error("market tick failed", "err", err)
				continue
			}
			logger.Info("market tick complete", "day", out.Day, "tick", out.Tick, "rollover", out.Rollover)
		}
	}
}

func openStore(ctx context.Context, cfg config.WorkerConfig, logger *slog.Logger) (store.Store, error) {
	var primary store.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		primary, err = store.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("store: postgres")
	} else {
		var err error
		primary, err = store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("store: sqlite", "path", cfg.SQLitePath)
	}

	if cfg.RedisURL == "" {
		return primary, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		primary.Close()
		return nil, err
	}
	// Writes through the cache keep API nodes reading fresh prices
	// between ticks.
	return store.NewCachedStore(primary, redis.NewClient(opts), 10*time.Second), nil
}
