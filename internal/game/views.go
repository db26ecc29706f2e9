package game

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tradewinds/internal/engine"
	"tradewinds/internal/store"
)

// CommodityView is one market row: current quote plus day statistics.
type CommodityView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Short       string  `json:"short"`
	Price       float64 `json:"price"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	DayChange   float64 `json:"dayChange"`
	VolumeToday int64   `json:"volumeToday"`
	BankHeld    int64   `json:"bankHeld"`
	TotalShares int64   `json:"totalShares"`
	Contraband  bool    `json:"contraband,omitempty"`
}

// HoldingView is a long position marked to the current price.
type HoldingView struct {
	Commodity string  `json:"commodity"`
	Quantity  int64   `json:"quantity"`
	CostBasis float64 `json:"costBasis"`
	Price     float64 `json:"price"`
	Value     float64 `json:"value"`
	PnL       float64 `json:"pnl"`
}

// ShortView is an open short marked to the current price.
type ShortView struct {
	Commodity  string  `json:"commodity"`
	Quantity   int64   `json:"quantity"`
	EntryPrice float64 `json:"entryPrice"`
	Price      float64 `json:"price"`
	Collateral float64 `json:"collateral"`
	PnL        float64 `json:"pnl"`
}

// DashboardView is the full per-player state the client renders.
type DashboardView struct {
	PlayerID     string                 `json:"playerId"`
	Name         string                 `json:"name"`
	Day          int                    `json:"day"`
	Wallet       float64                `json:"wallet"`
	Savings      float64                `json:"savings"`
	Loan         float64                `json:"loan"`
	NetWorth     float64                `json:"netWorth"`
	League       engine.League          `json:"league"`
	Streak       int                    `json:"streak"`
	BankUnlocked bool                   `json:"bankUnlocked"`
	Holdings     []HoldingView          `json:"holdings"`
	Shorts       []ShortView            `json:"shorts"`
	Commodities  []CommodityView        `json:"commodities"`
	History      []engine.NetWorthPoint `json:"netWorthHistory,omitempty"`
}

// LeaderboardRow is one ranked entry.
type LeaderboardRow struct {
	Rank     int           `json:"rank"`
	PlayerID string        `json:"playerId"`
	Name     string        `json:"name"`
	NetWorth float64       `json:"netWorth"`
	League   engine.League `json:"league"`
}

// Market returns every commodity row with a live quote.
func (s *Service) Market(ctx context.Context) ([]CommodityView, error) {
	ms, err := s.store.LoadMarket(ctx)
	if err != nil {
		return nil, err
	}
	return s.commodityViews(ms), nil
}

// Quote returns the two-sided quote for one commodity.
func (s *Service) Quote(ctx context.Context, id string) (*engine.Quote, error) {
	ms, err := s.store.LoadMarket(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := s.cfg.Commodity(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownCommodity, id)
	}
	cs, ok := ms.Commodities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownCommodity, id)
	}
	q := engine.Spread(cs.Price, g.Vol, cs.BankHeld, cs.TotalShares)
	return &q, nil
}

// History returns a commodity's price series, downsampled by stride to
// at most maxPoints while always keeping the newest sample.
func (s *Service) History(ctx context.Context, id string, maxPoints int) ([]engine.PricePoint, error) {
	ms, err := s.store.LoadMarket(ctx)
	if err != nil {
		return nil, err
	}
	cs, ok := ms.Commodities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownCommodity, id)
	}
	pts := cs.History
	if maxPoints <= 0 || len(pts) <= maxPoints {
		return pts, nil
	}

	stride := (len(pts) + maxPoints - 1) / maxPoints
	out := make([]engine.PricePoint, 0, maxPoints)
	for i := 0; i < len(pts); i += stride {
		out = append(out, pts[i])
	}
	if last := pts[len(pts)-1]; len(out) == 0 || out[len(out)-1] != last {
		out = append(out, last)
	}
	return out, nil
}

// Dashboard assembles the per-player view, settling the day lazily
// first so balances are always current.
func (s *Service) Dashboard(ctx context.Context, playerID string, now time.Time) (*DashboardView, error) {
	var view *DashboardView
	err := s.withPlayer(ctx, playerID, now, func(p *engine.Player, ms *engine.MarketState) error {
		nw := engine.NetWorth(p, ms)
		view = &DashboardView{
			PlayerID:     p.ID,
			Name:         p.Name,
			Day:          s.Day(now),
			Wallet:       p.Wallet,
			Savings:      p.Savings,
			Loan:         p.Loan,
			NetWorth:     nw,
			League:       s.cfg.LeagueFor(nw),
			Streak:       p.Streak,
			BankUnlocked: p.BankUnlocked,
			Holdings:     make([]HoldingView, 0, len(p.Holdings)),
			Shorts:       make([]ShortView, 0, len(p.Shorts)),
			Commodities:  s.commodityViews(ms),
			History:      p.NetWorthHistory,
		}
		for _, g := range s.cfg.Commodities {
			if h, ok := p.Holdings[g.ID]; ok {
				cs := ms.Commodities[g.ID]
				value := float64(h.Quantity) * cs.Price
				view.Holdings = append(view.Holdings, HoldingView{
					Commodity: g.ID,
					Quantity:  h.Quantity,
					CostBasis: h.CostBasis,
					Price:     cs.Price,
					Value:     engine.RoundMoney(value),
					PnL:       engine.RoundMoney(value - h.CostBasis*float64(h.Quantity)),
				})
			}
			if sp, ok := p.Shorts[g.ID]; ok {
				cs := ms.Commodities[g.ID]
				view.Shorts = append(view.Shorts, ShortView{
					Commodity:  g.ID,
					Quantity:   sp.Quantity,
					EntryPrice: sp.EntryPrice,
					Price:      cs.Price,
					Collateral: sp.Collateral,
					PnL:        engine.RoundMoney((sp.EntryPrice - cs.Price) * float64(sp.Quantity)),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Leaderboard ranks all players by net worth at current prices.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	ms, err := s.store.LoadMarket(ctx)
	if err != nil {
		return nil, err
	}
	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]LeaderboardRow, 0, len(players))
	for _, p := range players {
		nw := engine.NetWorth(p, ms)
		rows = append(rows, LeaderboardRow{
			PlayerID: p.ID,
			Name:     p.Name,
			NetWorth: nw,
			League:   s.cfg.LeagueFor(nw),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].NetWorth != rows[j].NetWorth {
			return rows[i].NetWorth > rows[j].NetWorth
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

// Trades returns recent trade-log records, optionally for one player.
func (s *Service) Trades(ctx context.Context, playerID string, limit int) ([]store.TradeRecord, error) {
	return s.store.ListTrades(ctx, playerID, limit)
}

// Events returns recent fired market events, newest first.
func (s *Service) Events(ctx context.Context, limit int) ([]store.EventRecord, error) {
	return s.store.ListEvents(ctx, limit)
}

func (s *Service) commodityViews(ms *engine.MarketState) []CommodityView {
	out := make([]CommodityView, 0, len(s.cfg.Commodities))
	for _, g := range s.cfg.Commodities {
		cs, ok := ms.Commodities[g.ID]
		if !ok {
			continue
		}
		q := engine.Spread(cs.Price, g.Vol, cs.BankHeld, cs.TotalShares)
		out = append(out, CommodityView{
			ID:          g.ID,
			Name:        g.Name,
			Short:       g.Short,
			Price:       cs.Price,
			Bid:         q.Bid,
			Ask:         q.Ask,
			DayChange:   dayChange(cs, ms.CurrentDay),
			VolumeToday: cs.VolumeToday,
			BankHeld:    cs.BankHeld,
			TotalShares: cs.TotalShares,
			Contraband:  g.Contraband,
		})
	}
	return out
}

// dayChange is the fractional move since the first sample of the
// current day, zero when the day has no samples yet.
func dayChange(cs *engine.CommodityState, day int) float64 {
	for _, pt := range cs.History {
		if pt.Day == day {
			if pt.Price <= 0 {
				return 0
			}
			return engine.RoundPrice((cs.Price - pt.Price) / pt.Price)
		}
	}
	return 0
}
