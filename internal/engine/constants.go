package engine

import (
	"math"
	"time"
)

// Commodity is an immutable catalog entry. Base is the genesis price,
// Vol the volatility coefficient in [0,1] driving spread, noise, and
// impact magnitude, Shares the genesis share count held by the bank.
type Commodity struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Short      string  `json:"short"`
	Base       float64 `json:"base"`
	Vol        float64 `json:"vol"`
	Shares     int64   `json:"shares"`
	Contraband bool    `json:"contraband,omitempty"`
}

// Event is a catalog entry for market-moving news. Effect is a signed
// fraction applied to every target commodity's price when the event fires.
type Event struct {
	Name    string   `json:"name"`
	Targets []string `json:"targets"`
	Effect  float64  `json:"effect"`
	Desc    string   `json:"desc"`
}

// League brackets players by net worth for leaderboard display.
type League struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Config is the constants table: every economic rate and catalog the engine
// consumes. Tests override individual fields; production uses DefaultConfig.
type Config struct {
	DailyClaim    float64
	StreakBonus   float64
	Streak7Bonus  float64
	StreakCap     int
	InitialSupply float64
	// ClaimBaseline is the fraction of DailyClaim by which each paid claim
	// grows the inflation baseline, so mass daily claims don't read as
	// runaway inflation.
	ClaimBaseline float64

	SaveRate           float64 // daily compounding on savings
	LoanRate           float64 // daily compounding on loans
	MaxLoanMult        float64 // borrow cap as multiple of net worth
	LoanDeadline       int     // logins from origination until forced repayment
	BankUnlockNetWorth float64

	TradeFee           float64
	ShortCollateral    float64 // collateral as multiple of short proceeds
	MarginCallFraction float64 // liquidate when loss exceeds this fraction of collateral
	ShortBorrowRate    float64 // daily carry cost on open shorts

	TickInterval       time.Duration
	EventChance        float64
	EventCooldownTicks int
	NoiseBase          float64
	MicroTrendChance   float64
	MicroTrendSize     float64
	GravityNormal      float64
	GravityExtreme     float64
	ExtremeBandHigh    float64 // price/fair-value ratio above which gravity switches to extreme
	ExtremeBandLow     float64

	OfferingThreshold float64 // bank inventory ratio that triggers a secondary offering
	OfferingAmount    float64 // fraction of total shares minted per offering
	OfferingDiscount  float64 // one-time price multiplier applied on offering
	IssuanceCapMult   float64 // total shares may grow to this multiple of genesis

	PriceFloor float64
	PriceCeil  float64

	Commodities []Commodity
	Events      []Event
	Leagues     []League
}

// DefaultConfig returns the canonical constants table.
func DefaultConfig() Config {
	return Config{
		DailyClaim:    100,
		StreakBonus:   10,
		Streak7Bonus:  50,
		StreakCap:     7,
		InitialSupply: 10_000,
		ClaimBaseline: 0.8,

		SaveRate:           0.015,
		LoanRate:           0.05,
		MaxLoanMult:        3,
		LoanDeadline:       5,
		BankUnlockNetWorth: 1_000,

		TradeFee:           0.003,
		ShortCollateral:    1.5,
		MarginCallFraction: 0.85,
		ShortBorrowRate:    0.008,

		TickInterval:       15 * time.Second,
		EventChance:        0.06,
		EventCooldownTicks: 6,
		NoiseBase:          0.001,
		MicroTrendChance:   0.03,
		MicroTrendSize:     0.005,
		GravityNormal:      0.0005,
		GravityExtreme:     0.003,
		ExtremeBandHigh:    3,
		ExtremeBandLow:     0.33,

		OfferingThreshold: 0.10,
		OfferingAmount:    0.20,
		OfferingDiscount:  0.92,
		IssuanceCapMult:   3,

		PriceFloor: 0.0001,
		PriceCeil:  999_999,

		Commodities: defaultCommodities(),
		Events:      defaultEvents(),
		Leagues:     defaultLeagues(),
	}
}

func defaultCommodities() []Commodity {
	return []Commodity{
		{ID: "spices", Name: "Exotic Spices", Short: "Spices", Base: 0.10, Vol: 0.12, Shares: 500_000},
		{ID: "silk", Name: "Fine Silk", Short: "Silk", Base: 0.10, Vol: 0.10, Shares: 200_000},
		{ID: "rum", Name: "Caribbean Rum", Short: "Rum", Base: 0.10, Vol: 0.15, Shares: 800_000},
		{ID: "gems", Name: "Gemstones", Short: "Gems", Base: 0.10, Vol: 0.08, Shares: 150_000},
		{ID: "parrots", Name: "Rare Parrots", Short: "Parrots", Base: 0.10, Vol: 0.20, Shares: 1_000_000},
		{ID: "cannons", Name: "Cannons & Arms", Short: "Cannons", Base: 0.10, Vol: 0.14, Shares: 300_000},
		{ID: "tulips", Name: "Tulip Bulbs", Short: "Tulips", Base: 0.10, Vol: 0.25, Shares: 2_000_000},
		{ID: "contraband", Name: "Smuggled Opium", Short: "Opium", Base: 0.10, Vol: 0.18, Shares: 100_000, Contraband: true},
	}
}

func defaultEvents() []Event {
	return []Event{
		{Name: "Typhoon Season", Targets: []string{"spices", "silk"}, Effect: 0.20, Desc: "Storms wreck trade routes - spice and silk supply drops"},
		{Name: "Royal Wedding", Targets: []string{"gems", "silk"}, Effect: 0.18, Desc: "The Crown demands finery - gems and silk soar"},
		{Name: "Rum Shortage", Targets: []string{"rum"}, Effect: 0.22, Desc: "Caribbean drought devastates sugarcane"},
		{Name: "Parrot Plague", Targets: []string{"parrots"}, Effect: -0.25, Desc: "Disease sweeps through aviaries"},
		{Name: "Arms Race", Targets: []string{"cannons"}, Effect: 0.20, Desc: "War looms between empires - cannon demand surges"},
		{Name: "Tulip Fever", Targets: []string{"tulips"}, Effect: 0.30, Desc: "Speculation mania - everyone wants tulips"},
		{Name: "Tulip Crash", Targets: []string{"tulips"}, Effect: -0.35, Desc: "The bubble bursts - tulip prices collapse"},
		{Name: "Pirate Raid", Targets: []string{"spices", "gems", "rum"}, Effect: -0.12, Desc: "Pirates intercept the merchant fleet - goods flood the market"},
		{Name: "Trade Treaty", Targets: []string{"spices", "silk", "gems"}, Effect: 0.10, Desc: "New treaty opens Eastern ports"},
		{Name: "Naval Blockade", Targets: []string{"rum", "cannons"}, Effect: 0.15, Desc: "Blockade restricts supply of military goods"},
		{Name: "Silk Worm Blight", Targets: []string{"silk"}, Effect: -0.20, Desc: "Disease kills silkworms across provinces"},
		{Name: "Gold Discovery", Targets: []string{"gems"}, Effect: 0.25, Desc: "New mine discovered - gemstone rush begins"},
		{Name: "Monsoon Harvest", Targets: []string{"spices"}, Effect: -0.15, Desc: "Bumper spice harvest floods the market"},
		{Name: "Cannon Surplus", Targets: []string{"cannons"}, Effect: -0.18, Desc: "War ends - military surplus tanks arms prices"},
		{Name: "Exotic Bird Craze", Targets: []string{"parrots"}, Effect: 0.28, Desc: "European courts go wild for exotic birds"},
		{Name: "Smuggler's Moon", Targets: []string{"contraband"}, Effect: 0.30, Desc: "Perfect conditions for smuggling"},
		{Name: "Port Inspection", Targets: []string{"contraband"}, Effect: -0.25, Desc: "Authorities crack down on contraband"},
		{Name: "Governor's Ban", Targets: []string{"rum", "contraband"}, Effect: -0.15, Desc: "New governor bans spirits and contraband"},
		{Name: "Harvest Festival", Targets: []string{"rum", "spices"}, Effect: 0.12, Desc: "Festival demand boosts rum and spice prices"},
		{Name: "Trade Wind Shift", Targets: []string{"silk", "parrots"}, Effect: -0.10, Desc: "Changed winds speed up delivery - prices ease"},
		{Name: "Museum Heist", Targets: []string{"gems", "tulips"}, Effect: -0.15, Desc: "Stolen goods flood the black market"},
		{Name: "Explorer's Return", Targets: []string{"parrots", "spices"}, Effect: 0.15, Desc: "Tales of rare finds drive demand"},
		{Name: "Treasury Bonds", Targets: []string{"gems"}, Effect: -0.10, Desc: "Crown sells gem reserves to fund the navy"},
		{Name: "Victory Celebration", Targets: []string{"rum", "cannons", "gems"}, Effect: 0.08, Desc: "Naval victory - the whole port celebrates"},
		{Name: "Merchant Guild Strike", Targets: []string{"spices", "silk", "rum"}, Effect: 0.14, Desc: "Merchants refuse to sell at current prices"},
	}
}

func defaultLeagues() []League {
	return []League{
		{ID: "driftwood", Name: "Driftwood", Min: 0, Max: 500},
		{ID: "bronze", Name: "Bronze", Min: 500, Max: 2_000},
		{ID: "silver", Name: "Silver", Min: 2_000, Max: 8_000},
		{ID: "gold", Name: "Gold", Min: 8_000, Max: 30_000},
		{ID: "diamond", Name: "Diamond", Min: 30_000, Max: 100_000},
		{ID: "legend", Name: "Legendary", Min: 100_000, Max: math.Inf(1)},
	}
}

// Commodity looks up a catalog entry by id.
func (c Config) Commodity(id string) (Commodity, bool) {
	for _, g := range c.Commodities {
		if g.ID == id {
			return g, true
		}
	}
	return Commodity{}, false
}

// InflationFactor is moneySupply over a baseline that grows with every paid
// claim, so the fair-value target tracks the real size of the economy.
func (c Config) InflationFactor(moneySupply float64, totalClaims int64) float64 {
	baseline := c.InitialSupply + float64(totalClaims)*c.DailyClaim*c.ClaimBaseline
	if baseline <= 0 {
		return 1
	}
	return moneySupply / baseline
}

// ClaimAmount returns the daily claim for a given streak: base plus a
// per-day bonus through day 6 and a milestone bonus at day 7.
func (c Config) ClaimAmount(streak int) float64 {
	amt := c.DailyClaim
	s := streak
	if s > c.StreakCap {
		s = c.StreakCap
	}
	switch {
	case s >= c.StreakCap:
		amt += float64(c.StreakCap-1)*c.StreakBonus + c.Streak7Bonus
	case s > 1:
		amt += float64(s-1) * c.StreakBonus
	}
	return amt
}

// LeagueFor returns the league bracket containing the given net worth.
func (c Config) LeagueFor(netWorth float64) League {
	for _, l := range c.Leagues {
		if netWorth >= l.Min && netWorth < l.Max {
			return l
		}
	}
	if len(c.Leagues) > 0 {
		return c.Leagues[0]
	}
	return League{}
}
