// Package store defines the persistence contract for the game state.
// Implementations include PostgreSQL (source of truth for multi-node
// deploys), SQLite (single-node), Redis (read-through market cache),
// and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"tradewinds/internal/engine"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict is returned by compare-and-swap saves when the
	// stored version no longer matches the caller's snapshot.
	ErrVersionConflict = errors.New("store: version conflict")

	// ErrExists is returned when creating a record that already exists.
	ErrExists = errors.New("store: already exists")
)

// MarketID is the key of the single shared market snapshot.
const MarketID = "main"

// TradeRecord is one immutable entry of the trade log.
type TradeRecord struct {
	ID        string             `json:"id"`
	PlayerID  string             `json:"playerId"`
	Commodity string             `json:"commodity"`
	Action    engine.TradeAction `json:"action"`
	Quantity  int64              `json:"quantity"`
	Price     float64            `json:"price"`
	Fee       float64            `json:"fee"`
	Day       int                `json:"day"`
	CreatedAt time.Time          `json:"createdAt"`
}

// EventRecord is one fired market event, kept for the news feed.
type EventRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Desc      string    `json:"desc"`
	Targets   []string  `json:"targets"`
	Effect    float64   `json:"effect"`
	Scale     float64   `json:"scale"`
	Day       int       `json:"day"`
	Tick      int       `json:"tick"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistence interface. Market and player saves are
// compare-and-swap on the record's Version field: a successful save
// increments the version, a stale snapshot gets ErrVersionConflict.
type Store interface {
	// --- Players ---

	// CreatePlayer persists a new player record.
	CreatePlayer(ctx context.Context, p *engine.Player) error

	// LoadPlayer retrieves a player by id.
	LoadPlayer(ctx context.Context, id string) (*engine.Player, error)

	// SavePlayer stores a player snapshot if its version is current.
	SavePlayer(ctx context.Context, p *engine.Player) error

	// ListPlayers returns every player record.
	ListPlayers(ctx context.Context) ([]*engine.Player, error)

	// --- Market ---

	// CreateMarket persists the genesis market snapshot.
	CreateMarket(ctx context.Context, ms *engine.MarketState) error

	// LoadMarket retrieves the shared market snapshot.
	LoadMarket(ctx context.Context) (*engine.MarketState, error)

	// SaveMarket stores the market snapshot if its version is current.
	SaveMarket(ctx context.Context, ms *engine.MarketState) error

	// SaveMarketAndPlayer stores both snapshots in one atomic step. If
	// either version is stale, neither record is written and the call
	// returns ErrVersionConflict. Player-facing operations mutate the
	// market and the player together, so their saves must commit
	// together.
	SaveMarketAndPlayer(ctx context.Context, ms *engine.MarketState, p *engine.Player) error

	// --- Immutable logs ---

	// AppendTrade appends a trade-log record.
	AppendTrade(ctx context.Context, t *TradeRecord) error

	// ListTrades returns the most recent trades, newest first. An empty
	// playerID returns trades across all players.
	ListTrades(ctx context.Context, playerID string, limit int) ([]TradeRecord, error)

	// AppendEvent appends a fired-event record.
	AppendEvent(ctx context.Context, e *EventRecord) error

	// ListEvents returns the most recent events, newest first.
	ListEvents(ctx context.Context, limit int) ([]EventRecord, error)

	// Close releases the store's resources.
	Close() error
}
