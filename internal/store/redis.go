package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tradewinds/internal/engine"
)

// TickChannel is the pub/sub channel tick outcomes are announced on.
const TickChannel = "tradewinds:ticks"

const marketCacheKey = "tradewinds:market:" + MarketID

// CachedStore wraps a primary Store with a Redis read-through cache for
// the market snapshot, the hottest read in the system. Writes go to the
// primary and invalidate the cache; tick saves are also published so
// other nodes can drop their local copies.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

func (s *CachedStore) LoadMarket(ctx context.Context) (*engine.MarketState, error) {
	data, err := s.rdb.Get(ctx, marketCacheKey).Bytes()
	if err == nil {
		var ms engine.MarketState
		if json.Unmarshal(data, &ms) == nil {
			return &ms, nil
		}
	}

	ms, err := s.primary.LoadMarket(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheMarket(ctx, ms)
	return ms, nil
}

func (s *CachedStore) SaveMarket(ctx context.Context, ms *engine.MarketState) error {
	if err := s.primary.SaveMarket(ctx, ms); err != nil {
		return err
	}
	s.cacheMarket(ctx, ms)
	return nil
}

func (s *CachedStore) SaveMarketAndPlayer(ctx context.Context, ms *engine.MarketState, p *engine.Player) error {
	if err := s.primary.SaveMarketAndPlayer(ctx, ms, p); err != nil {
		return err
	}
	s.cacheMarket(ctx, ms)
	return nil
}

func (s *CachedStore) CreateMarket(ctx context.Context, ms *engine.MarketState) error {
	if err := s.primary.CreateMarket(ctx, ms); err != nil {
		return err
	}
	s.cacheMarket(ctx, ms)
	return nil
}

// PublishTick announces a tick outcome on the pub/sub channel. Best
// effort: a down Redis does not fail the tick.
func (s *CachedStore) PublishTick(ctx context.Context, payload any) {
	if data, err := json.Marshal(payload); err == nil {
		s.rdb.Publish(ctx, TickChannel, data)
	}
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreatePlayer(ctx context.Context, p *engine.Player) error {
	return s.primary.CreatePlayer(ctx, p)
}

func (s *CachedStore) LoadPlayer(ctx context.Context, id string) (*engine.Player, error) {
	return s.primary.LoadPlayer(ctx, id)
}

func (s *CachedStore) SavePlayer(ctx context.Context, p *engine.Player) error {
	return s.primary.SavePlayer(ctx, p)
}

func (s *CachedStore) ListPlayers(ctx context.Context) ([]*engine.Player, error) {
	return s.primary.ListPlayers(ctx)
}

func (s *CachedStore) AppendTrade(ctx context.Context, t *TradeRecord) error {
	return s.primary.AppendTrade(ctx, t)
}

func (s *CachedStore) ListTrades(ctx context.Context, playerID string, limit int) ([]TradeRecord, error) {
	return s.primary.ListTrades(ctx, playerID, limit)
}

func (s *CachedStore) AppendEvent(ctx context.Context, e *EventRecord) error {
	return s.primary.AppendEvent(ctx, e)
}

func (s *CachedStore) ListEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	return s.primary.ListEvents(ctx, limit)
}

func (s *CachedStore) Close() error {
	s.rdb.Close()
	return s.primary.Close()
}

func (s *CachedStore) cacheMarket(ctx context.Context, ms *engine.MarketState) {
	if data, err := json.Marshal(ms); err == nil {
		s.rdb.Set(ctx, marketCacheKey, data, s.ttl)
	}
}
