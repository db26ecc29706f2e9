package engine

import (
	"fmt"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// MarketSchemaVersion is bumped whenever the persisted market shape
// changes. MigrateMarket upgrades older records at load time.
const MarketSchemaVersion = 1

// historyCap bounds the per-commodity price history kept in state.
const historyCap = 2500

// warmupPoints is the length of the synthetic pre-launch history each
// commodity is born with, so charts are never empty on day zero.
const warmupPoints = 21

// PricePoint is one sample of a commodity's price history, stamped with
// the engine's own clock rather than wall time.
type PricePoint struct {
	Day   int     `json:"day"`
	Tick  int     `json:"tick"`
	Price float64 `json:"price"`
}

// CommodityState is the mutable per-commodity slice of the market.
// TotalShares = BankHeld + PlayerHeld at all times.
type CommodityState struct {
	Price       float64      `json:"price"`
	TotalShares int64        `json:"totalShares"`
	BankHeld    int64        `json:"bankHeld"`
	PlayerHeld  int64        `json:"playerHeld"`
	VolumeToday int64        `json:"volumeToday"`
	History     []PricePoint `json:"history"`
}

// OfferingRecord logs a secondary share issuance.
type OfferingRecord struct {
	Commodity string `json:"commodity"`
	Minted    int64  `json:"minted"`
	Day       int    `json:"day"`
	Tick      int    `json:"tick"`
}

// FiredEvent records a market event that actually fired during a tick.
type FiredEvent struct {
	Name    string   `json:"name"`
	Desc    string   `json:"desc"`
	Targets []string `json:"targets"`
	Effect  float64  `json:"effect"`
	Scale   float64  `json:"scale"`
	Day     int      `json:"day"`
	Tick    int      `json:"tick"`
}

// MarketState is the complete shared market snapshot. It is a value
// passed through pure transforms; the service layer owns locking and
// persistence.
type MarketState struct {
	SchemaVersion  int                        `json:"schemaVersion"`
	Version        int64                      `json:"version"`
	Commodities    map[string]*CommodityState `json:"commodities"`
	MoneySupply    float64                    `json:"moneySupply"`
	TotalClaims    int64                      `json:"totalClaims"`
	BankReserves   float64                    `json:"bankReserves"`
	CurrentDay     int                        `json:"currentDay"`
	TicksSinceEvnt int                        `json:"ticksSinceEvent"`
	Offerings      []OfferingRecord           `json:"offerings,omitempty"`
	GenesisShares  map[string]int64           `json:"genesisShares"`
}

// InitMarket builds the genesis market: every commodity at its base
// price, fully bank-held, with a deterministic synthetic warm-up history
// generated from smooth noise so launch-day charts have texture.
func (c Config) InitMarket(genesisSeed int64) *MarketState {
	noise := opensimplex.New(genesisSeed)

	ms := &MarketState{
		SchemaVersion: MarketSchemaVersion,
		Commodities:   make(map[string]*CommodityState, len(c.Commodities)),
		MoneySupply:   c.InitialSupply,
		BankReserves:  c.InitialSupply,
		GenesisShares: make(map[string]int64, len(c.Commodities)),
	}

	for ci, g := range c.Commodities {
		cs := &CommodityState{
			Price:       round6(g.Base),
			TotalShares: g.Shares,
			BankHeld:    g.Shares,
			History:     make([]PricePoint, 0, warmupPoints),
		}
		for i := 0; i < warmupPoints; i++ {
			n := noise.Eval2(float64(ci)*10.7, float64(i)*0.35)
			p := g.Base * (1 + n*g.Vol*0.5)
			if p < c.PriceFloor {
				p = c.PriceFloor
			}
			cs.History = append(cs.History, PricePoint{
				Day:   0,
				Tick:  i - warmupPoints,
				Price: round6(p),
			})
		}
		ms.Commodities[g.ID] = cs
		ms.GenesisShares[g.ID] = g.Shares
	}
	return ms
}

// Clone deep-copies the market state.
func (ms *MarketState) Clone() *MarketState {
	out := *ms
	out.Commodities = make(map[string]*CommodityState, len(ms.Commodities))
	for id, cs := range ms.Commodities {
		cp := *cs
		cp.History = append([]PricePoint(nil), cs.History...)
		out.Commodities[id] = &cp
	}
	out.Offerings = append([]OfferingRecord(nil), ms.Offerings...)
	out.GenesisShares = make(map[string]int64, len(ms.GenesisShares))
	for id, n := range ms.GenesisShares {
		out.GenesisShares[id] = n
	}
	return &out
}

// ResetDailyVolumes zeroes the per-day volume counters, called by the
// service on day rollover.
func (ms *MarketState) ResetDailyVolumes() {
	for _, cs := range ms.Commodities {
		cs.VolumeToday = 0
	}
}

// CheckInvariants verifies the conservation and sanity rules the engine
// promises. Any violation means the stored state was corrupted outside
// the engine and must not be traded against.
func (ms *MarketState) CheckInvariants() error {
	if ms.MoneySupply < 0 {
		return fmt.Errorf("%w: money supply %.4f negative", ErrCorruptState, ms.MoneySupply)
	}
	if ms.BankReserves < 0 {
		return fmt.Errorf("%w: bank reserves %.4f negative", ErrCorruptState, ms.BankReserves)
	}
	for id, cs := range ms.Commodities {
		if cs.BankHeld < 0 || cs.PlayerHeld < 0 {
			return fmt.Errorf("%w: %s share counts negative", ErrCorruptState, id)
		}
		if cs.BankHeld+cs.PlayerHeld != cs.TotalShares {
			return fmt.Errorf("%w: %s shares %d+%d != total %d",
				ErrCorruptState, id, cs.BankHeld, cs.PlayerHeld, cs.TotalShares)
		}
		if cs.Price <= 0 || math.IsNaN(cs.Price) || math.IsInf(cs.Price, 0) {
			return fmt.Errorf("%w: %s price %v", ErrCorruptState, id, cs.Price)
		}
	}
	return nil
}

// MigrateMarket upgrades a loaded market record to the current schema.
// Runs once at load; per-access defensive checks are deliberately absent.
func (c Config) MigrateMarket(ms *MarketState) *MarketState {
	if ms.Commodities == nil {
		ms.Commodities = make(map[string]*CommodityState)
	}
	// Commodities added to the catalog after genesis appear bank-held at
	// base price.
	for _, g := range c.Commodities {
		if _, ok := ms.Commodities[g.ID]; !ok {
			ms.Commodities[g.ID] = &CommodityState{
				Price:       round6(g.Base),
				TotalShares: g.Shares,
				BankHeld:    g.Shares,
			}
		}
	}
	if ms.GenesisShares == nil {
		ms.GenesisShares = make(map[string]int64, len(c.Commodities))
		for _, g := range c.Commodities {
			ms.GenesisShares[g.ID] = g.Shares
		}
	}
	for _, cs := range ms.Commodities {
		if len(cs.History) > historyCap {
			cs.History = cs.History[len(cs.History)-historyCap:]
		}
	}
	ms.SchemaVersion = MarketSchemaVersion
	return ms
}

func appendHistory(cs *CommodityState, day, tick int) {
	cs.History = append(cs.History, PricePoint{Day: day, Tick: tick, Price: cs.Price})
	if len(cs.History) > historyCap {
		cs.History = cs.History[len(cs.History)-historyCap:]
	}
}
