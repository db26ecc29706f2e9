package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tradewinds/internal/api"
	"tradewinds/internal/config"
	"tradewinds/internal/db"
	"tradewinds/internal/engine"
	"tradewinds/internal/game"
	"tradewinds/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
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
	gameSvc := game.NewService(st, logger, econ, cfg.LaunchDate)
	if err := gameSvc.EnsureMarket(ctx, cfg.GenesisSeed); err != nil {
		logger.Error("market init failed", "err", err)
		os.Exit(1)
	}

	server := api.New(cfg, logger, gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("tradewinds api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

// openStore picks Postgres when DATABASE_URL is set, SQLite otherwise,
// and layers the Redis market cache on top when REDIS_URL is set.
func openStore(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) (store.Store, error) {
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
		logger.Info("store: postgres", "max_conns", cfg.DBMaxConns)
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
	logger.Info("store: redis cache enabled", "ttl", cfg.MarketCacheTTL.String())
	return store.NewCachedStore(primary, redis.NewClient(opts), cfg.MarketCacheTTL), nil
}
