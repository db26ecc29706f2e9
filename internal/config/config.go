package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr           string
	DatabaseURL    string
	DBMaxConns     int32
	SQLitePath     string
	RedisURL       string
	MarketCacheTTL time.Duration
	TickEvery      time.Duration
	LaunchDate     time.Time
	GenesisSeed    int64
	TickSecret     string
}

type WorkerConfig struct {
	DatabaseURL string
	DBMaxConns  int32
	SQLitePath  string
	RedisURL    string
	TickEvery   time.Duration
	LaunchDate  time.Time
	GenesisSeed int64
}

type CLIConfig struct {
	APIBaseURL string
	PlayerID   string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("TW_API_ADDR", ":8080")
	}

	launch, err := envLaunchDate()
	if err != nil {
		return APIConfig{}, err
	}
	cfg := APIConfig{
		Addr:           addr,
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:     int32(envInt64Default("TW_DB_MAX_CONNS", 20)),
		SQLitePath:     envDefault("TW_SQLITE_PATH", "tradewinds.db"),
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		MarketCacheTTL: envDurationDefault("TW_MARKET_CACHE_TTL", 10*time.Second),
		TickEvery:      envDurationDefault("TW_TICK_EVERY", 15*time.Second),
		LaunchDate:     launch,
		GenesisSeed:    envInt64Default("TW_GENESIS_SEED", 1),
		TickSecret:     strings.TrimSpace(os.Getenv("TW_TICK_SECRET")),
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	launch, err := envLaunchDate()
	if err != nil {
		return WorkerConfig{}, err
	}
	return WorkerConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(envInt64Default("TW_DB_MAX_CONNS", 5)),
		SQLitePath:  envDefault("TW_SQLITE_PATH", "tradewinds.db"),
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		TickEvery:   envDurationDefault("TW_TICK_EVERY", 15*time.Second),
		LaunchDate:  launch,
		GenesisSeed: envInt64Default("TW_GENESIS_SEED", 1),
	}, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("TW_API_BASE_URL", "http://localhost:8080"), "/"),
		PlayerID:   strings.TrimSpace(os.Getenv("TW_PLAYER_ID")),
	}
}

// envLaunchDate reads TW_LAUNCH_DATE as a UTC calendar date. The launch
// date anchors the game clock, so every node must agree on it.
func envLaunchDate() (time.Time, error) {
	v := strings.TrimSpace(os.Getenv("TW_LAUNCH_DATE"))
	if v == "" {
		return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("TW_LAUNCH_DATE: %w", err)
	}
	return t, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
