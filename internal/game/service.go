// Package game is the orchestration layer between the pure engine and
// the outside world: it owns locking, lazy daily settlement, clock
// derivation, and persistence of engine results.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradewinds/internal/engine"
	"tradewinds/internal/metrics"
	"tradewinds/internal/store"
)

// saveAttempts bounds optimistic-concurrency retries before the
// operation surfaces ErrConflict to the caller.
const saveAttempts = 3

// Service coordinates engine operations against the store. All
// mutation is serialized through the market mutex plus a per-player
// mutex, locked in that order; cross-node races are caught by the
// store's version checks and retried.
type Service struct {
	cfg    engine.Config
	store  store.Store
	log    *slog.Logger
	launch time.Time

	marketMu sync.Mutex

	mu      sync.Mutex
	players map[string]*sync.Mutex
}

// tickPublisher is implemented by stores that can announce tick
// outcomes to other nodes.
type tickPublisher interface {
	PublishTick(ctx context.Context, payload any)
}

// NewService creates the game service. launch anchors the game clock:
// day N is the Nth UTC day since launch.
func NewService(st store.Store, logger *slog.Logger, cfg engine.Config, launch time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		store:   st,
		log:     logger,
		launch:  launch.UTC(),
		players: make(map[string]*sync.Mutex),
	}
}

// Config exposes the constants table for read-side consumers.
func (s *Service) Config() engine.Config { return s.cfg }

// Day returns the game day containing the given instant.
func (s *Service) Day(now time.Time) int {
	d := int(now.UTC().Sub(s.launch) / (24 * time.Hour))
	if d < 0 {
		d = 0
	}
	return d
}

// TickIndex returns the tick slot within the current game day.
func (s *Service) TickIndex(now time.Time) int {
	rem := now.UTC().Sub(s.launch) % (24 * time.Hour)
	if rem < 0 {
		return 0
	}
	return int(rem / s.cfg.TickInterval)
}

func (s *Service) playerLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.players[id]
	if !ok {
		l = &sync.Mutex{}
		s.players[id] = l
	}
	return l
}

// EnsureMarket creates the genesis market snapshot if none exists.
func (s *Service) EnsureMarket(ctx context.Context, genesisSeed int64) error {
	s.marketMu.Lock()
	defer s.marketMu.Unlock()

	_, err := s.store.LoadMarket(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	ms := s.cfg.InitMarket(genesisSeed)
	if err := s.store.CreateMarket(ctx, ms); err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil
		}
		return err
	}
	s.log.Info("market initialized", "genesis_seed", genesisSeed, "commodities", len(ms.Commodities))
	return nil
}

// EnsurePlayer loads a player, creating a fresh record on first sight.
func (s *Service) EnsurePlayer(ctx context.Context, id, name string) (*engine.Player, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty player id", engine.ErrInvalidInput)
	}
	p, err := s.store.LoadPlayer(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = "Trader " + id[:min(8, len(id))]
	}
	p = engine.NewPlayer(id, name)
	if err := s.store.CreatePlayer(ctx, p); err != nil {
		if errors.Is(err, store.ErrExists) {
			return s.store.LoadPlayer(ctx, id)
		}
		return nil, err
	}
	s.log.Info("player created", "player_id", id, "name", name)
	return p, nil
}

// withPlayer runs fn against consistent snapshots of the market and one
// player, with lazy settlement applied first, and persists both records
// in one atomic save. A version conflict on either record commits
// nothing; the loop reloads and re-runs the whole operation against
// fresh snapshots.
func (s *Service) withPlayer(ctx context.Context, playerID string, now time.Time, fn func(p *engine.Player, ms *engine.MarketState) error) error {
	s.marketMu.Lock()
	defer s.marketMu.Unlock()
	lock := s.playerLock(playerID)
	lock.Lock()
	defer lock.Unlock()

	today := s.Day(now)
	for attempt := 0; attempt < saveAttempts; attempt++ {
		ms, err := s.store.LoadMarket(ctx)
		if err != nil {
			return err
		}
		if err := ms.CheckInvariants(); err != nil {
			return err
		}
		p, err := s.store.LoadPlayer(ctx, playerID)
		if err != nil {
			return err
		}

		rcpt, err := s.cfg.RunDailySettlement(p, ms, today)
		if err != nil {
			return err
		}
		if rcpt != nil {
			metrics.Settlements.Inc()
		}

		if err := fn(p, ms); err != nil {
			return err
		}

		if err := s.store.SaveMarketAndPlayer(ctx, ms, p); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: player %s op gave up after %d attempts", engine.ErrConflict, playerID, saveAttempts)
}

// TradeInput describes one requested ledger operation.
type TradeInput struct {
	PlayerID  string
	Commodity string
	Action    engine.TradeAction
	Quantity  int64
}

// ExecuteTrade validates and executes a trade, persists the resulting
// state, and appends the immutable trade-log record.
func (s *Service) ExecuteTrade(ctx context.Context, now time.Time, in TradeInput) (*engine.TradeReceipt, error) {
	var receipt *engine.TradeReceipt

	err := s.withPlayer(ctx, in.PlayerID, now, func(p *engine.Player, ms *engine.MarketState) error {
		var err error
		switch in.Action {
		case engine.ActionBuy:
			receipt, err = s.cfg.Buy(p, ms, in.Commodity, in.Quantity)
		case engine.ActionSell:
			receipt, err = s.cfg.Sell(p, ms, in.Commodity, in.Quantity)
		case engine.ActionShort:
			receipt, err = s.cfg.ShortSell(p, ms, in.Commodity, in.Quantity)
		case engine.ActionCover:
			receipt, err = s.cfg.Cover(p, ms, in.Commodity, in.Quantity)
		default:
			return fmt.Errorf("%w: action %q", engine.ErrInvalidInput, in.Action)
		}
		return err
	})
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(string(receipt.Action)).Inc()
	rec := &store.TradeRecord{
		ID:        uuid.NewString(),
		PlayerID:  in.PlayerID,
		Commodity: receipt.Commodity,
		Action:    receipt.Action,
		Quantity:  receipt.Quantity,
		Price:     receipt.Price,
		Fee:       receipt.Fee,
		Day:       receipt.Day,
		CreatedAt: now.UTC(),
	}
	if err := s.store.AppendTrade(ctx, rec); err != nil {
		// The balances are already committed; a lost log line is not
		// worth failing the trade over.
		s.log.Error("append trade record", "player_id", in.PlayerID, "err", err)
	}
	s.log.Info("trade executed",
		"player_id", in.PlayerID,
		"action", receipt.Action,
		"commodity", receipt.Commodity,
		"qty", receipt.Quantity,
		"price", receipt.Price)
	return receipt, nil
}

// Settle runs the player's daily settlement explicitly. Returns a nil
// receipt when today is already settled.
func (s *Service) Settle(ctx context.Context, playerID string, now time.Time) (*engine.SettlementReceipt, error) {
	s.marketMu.Lock()
	defer s.marketMu.Unlock()
	lock := s.playerLock(playerID)
	lock.Lock()
	defer lock.Unlock()

	today := s.Day(now)
	for attempt := 0; attempt < saveAttempts; attempt++ {
		ms, err := s.store.LoadMarket(ctx)
		if err != nil {
			return nil, err
		}
		if err := ms.CheckInvariants(); err != nil {
			return nil, err
		}
		p, err := s.store.LoadPlayer(ctx, playerID)
		if err != nil {
			return nil, err
		}

		rcpt, err := s.cfg.RunDailySettlement(p, ms, today)
		if err != nil {
			return nil, err
		}
		if rcpt == nil {
			return nil, nil
		}

		if err := s.store.SaveMarketAndPlayer(ctx, ms, p); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return nil, err
		}
		metrics.Settlements.Inc()
		s.log.Info("daily settlement",
			"player_id", playerID, "day", today,
			"claim", rcpt.Claim, "streak", rcpt.Streak, "loan_called", rcpt.LoanCalled)
		return rcpt, nil
	}
	return nil, fmt.Errorf("%w: settlement for %s", engine.ErrConflict, playerID)
}

// Deposit moves wallet funds to savings.
func (s *Service) Deposit(ctx context.Context, playerID string, amount float64, now time.Time) error {
	return s.withPlayer(ctx, playerID, now, func(p *engine.Player, _ *engine.MarketState) error {
		return s.cfg.Deposit(p, amount)
	})
}

// Withdraw moves savings back to the wallet.
func (s *Service) Withdraw(ctx context.Context, playerID string, amount float64, now time.Time) error {
	return s.withPlayer(ctx, playerID, now, func(p *engine.Player, _ *engine.MarketState) error {
		return s.cfg.Withdraw(p, amount)
	})
}

// Borrow draws a loan against net worth.
func (s *Service) Borrow(ctx context.Context, playerID string, amount float64, now time.Time) error {
	return s.withPlayer(ctx, playerID, now, func(p *engine.Player, ms *engine.MarketState) error {
		return s.cfg.Borrow(p, ms, amount)
	})
}

// Repay pays down an outstanding loan.
func (s *Service) Repay(ctx context.Context, playerID string, amount float64, now time.Time) error {
	return s.withPlayer(ctx, playerID, now, func(p *engine.Player, ms *engine.MarketState) error {
		return s.cfg.Repay(p, ms, amount)
	})
}

// TickOutcome summarizes one market tick for logs and pub/sub.
type TickOutcome struct {
	Day          int                  `json:"day"`
	Tick         int                  `json:"tick"`
	Event        *engine.FiredEvent   `json:"event,omitempty"`
	Liquidations []engine.Liquidation `json:"liquidations,omitempty"`
	Rollover     bool                 `json:"rollover"`
}

// RunMarketTick advances the shared market one step: day rollover,
// price movement, events, and the margin sweep. Safe to call from
// multiple nodes; the version check elects one winner per slot.
func (s *Service) RunMarketTick(ctx context.Context, now time.Time) (*TickOutcome, error) {
	start := time.Now()
	s.marketMu.Lock()
	defer s.marketMu.Unlock()

	day := s.Day(now)
	tick := s.TickIndex(now)

	for attempt := 0; attempt < saveAttempts; attempt++ {
		ms, err := s.store.LoadMarket(ctx)
		if err != nil {
			return nil, err
		}
		if err := ms.CheckInvariants(); err != nil {
			return nil, err
		}

		players, err := s.store.ListPlayers(ctx)
		if err != nil {
			return nil, err
		}

		rollover := day > ms.CurrentDay
		out, fired := s.cfg.Tick(ms, len(players), engine.TickSeed(day, tick))
		if rollover {
			out.CurrentDay = day
			out.ResetDailyVolumes()
		}
		liqs := s.cfg.SweepMarginCalls(out, players)

		if err := s.store.SaveMarket(ctx, out); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return nil, err
		}

		// Persist only the players the sweep touched. A conflicting
		// save is skipped: the position is still open in that player's
		// winning copy and the next sweep will catch it again.
		touched := make(map[string]bool, len(liqs))
		for _, l := range liqs {
			touched[l.PlayerID] = true
		}
		for _, p := range players {
			if !touched[p.ID] {
				continue
			}
			if err := s.store.SavePlayer(ctx, p); err != nil {
				s.log.Warn("margin sweep save skipped", "player_id", p.ID, "err", err)
			}
		}
		if n := len(liqs); n > 0 {
			metrics.MarginLiquidations.Add(float64(n))
		}

		if fired != nil {
			metrics.EventsFired.WithLabelValues(fired.Name).Inc()
			rec := &store.EventRecord{
				ID:        uuid.NewString(),
				Name:      fired.Name,
				Desc:      fired.Desc,
				Targets:   fired.Targets,
				Effect:    fired.Effect,
				Scale:     fired.Scale,
				Day:       fired.Day,
				Tick:      fired.Tick,
				CreatedAt: now.UTC(),
			}
			if err := s.store.AppendEvent(ctx, rec); err != nil {
				s.log.Error("append event record", "event", fired.Name, "err", err)
			}
			s.log.Info("market event", "event", fired.Name, "scale", fired.Scale)
		}

		metrics.TicksTotal.Inc()
		metrics.TickDuration.Observe(time.Since(start).Seconds())
		metrics.MoneySupply.Set(out.MoneySupply)
		metrics.BankReserves.Set(out.BankReserves)
		for id, cs := range out.Commodities {
			metrics.CommodityPrice.WithLabelValues(id).Set(cs.Price)
		}

		outcome := &TickOutcome{Day: day, Tick: tick, Event: fired, Liquidations: liqs, Rollover: rollover}
		if pub, ok := s.store.(tickPublisher); ok {
			pub.PublishTick(ctx, outcome)
		}
		return outcome, nil
	}
	return nil, fmt.Errorf("%w: market tick lost the race", engine.ErrConflict)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, engine.ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, engine.ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, engine.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, engine.ErrNoPosition):
		return "no_position"
	case errors.Is(err, engine.ErrPrivilegeRequired):
		return "privilege_required"
	case errors.Is(err, engine.ErrUnknownCommodity):
		return "unknown_commodity"
	case errors.Is(err, engine.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, engine.ErrConflict):
		return "conflict"
	default:
		return "other"
	}
}
