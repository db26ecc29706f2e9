package store

import (
	"context"
	"fmt"
	"sync"

	"tradewinds/internal/engine"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	players map[string]*engine.Player
	market  *engine.MarketState
	trades  []TradeRecord
	events  []EventRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players: make(map[string]*engine.Player),
	}
}

func (s *MemoryStore) CreatePlayer(_ context.Context, p *engine.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[p.ID]; ok {
		return fmt.Errorf("%w: player %s", ErrExists, p.ID)
	}
	s.players[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) LoadPlayer(_ context.Context, id string) (*engine.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) SavePlayer(_ context.Context, p *engine.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.players[p.ID]
	if !ok {
		return fmt.Errorf("%w: player %s", ErrNotFound, p.ID)
	}
	if cur.Version != p.Version {
		return fmt.Errorf("%w: player %s at v%d, caller at v%d",
			ErrVersionConflict, p.ID, cur.Version, p.Version)
	}
	p.Version++
	s.players[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) ListPlayers(_ context.Context) ([]*engine.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*engine.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (s *MemoryStore) CreateMarket(_ context.Context, ms *engine.MarketState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.market != nil {
		return fmt.Errorf("%w: market", ErrExists)
	}
	s.market = ms.Clone()
	return nil
}

func (s *MemoryStore) LoadMarket(_ context.Context) (*engine.MarketState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.market == nil {
		return nil, fmt.Errorf("%w: market", ErrNotFound)
	}
	return s.market.Clone(), nil
}

func (s *MemoryStore) SaveMarket(_ context.Context, ms *engine.MarketState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.market == nil {
		return fmt.Errorf("%w: market", ErrNotFound)
	}
	if s.market.Version != ms.Version {
		return fmt.Errorf("%w: market at v%d, caller at v%d",
			ErrVersionConflict, s.market.Version, ms.Version)
	}
	ms.Version++
	s.market = ms.Clone()
	return nil
}

func (s *MemoryStore) SaveMarketAndPlayer(_ context.Context, ms *engine.MarketState, p *engine.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.market == nil {
		return fmt.Errorf("%w: market", ErrNotFound)
	}
	cur, ok := s.players[p.ID]
	if !ok {
		return fmt.Errorf("%w: player %s", ErrNotFound, p.ID)
	}
	if s.market.Version != ms.Version {
		return fmt.Errorf("%w: market at v%d, caller at v%d",
			ErrVersionConflict, s.market.Version, ms.Version)
	}
	if cur.Version != p.Version {
		return fmt.Errorf("%w: player %s at v%d, caller at v%d",
			ErrVersionConflict, p.ID, cur.Version, p.Version)
	}
	ms.Version++
	p.Version++
	s.market = ms.Clone()
	s.players[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) AppendTrade(_ context.Context, t *TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) ListTrades(_ context.Context, playerID string, limit int) ([]TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TradeRecord
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		t := s.trades[i]
		if playerID != "" && t.PlayerID != playerID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, limit int) ([]EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []EventRecord
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
