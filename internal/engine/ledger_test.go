package engine

import (
	"errors"
	"math"
	"testing"
)

func newFundedPlayer(wallet float64) *Player {
	p := NewPlayer("p1", "Ishmael")
	p.Wallet = wallet
	return p
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func checkConservation(t *testing.T, ms *MarketState) {
	t.Helper()
	if err := ms.CheckInvariants(); err != nil {
		t.Fatalf("invariants broken: %v", err)
	}
}

func TestBuyHappyPath(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(1000)

	r, err := cfg.Buy(p, ms, "spices", 100)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if r.Action != ActionBuy || r.Quantity != 100 {
		t.Fatalf("receipt = %+v", r)
	}
	h := p.Holdings["spices"]
	if h == nil || h.Quantity != 100 {
		t.Fatalf("holdings = %+v", h)
	}
	cs := ms.Commodities["spices"]
	if cs.PlayerHeld != 100 {
		t.Fatalf("playerHeld = %d", cs.PlayerHeld)
	}
	if cs.VolumeToday != 100 {
		t.Fatalf("volume = %d", cs.VolumeToday)
	}
	if !approx(p.Wallet, 1000+r.Net) {
		t.Fatalf("wallet %v vs 1000 net %v", p.Wallet, r.Net)
	}
	if !approx(ms.BankReserves, cfg.InitialSupply+r.Fee) {
		t.Fatalf("reserves %v did not capture fee %v", ms.BankReserves, r.Fee)
	}
	checkConservation(t, ms)
}

func TestBuyMovesPriceUp(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(10000)

	before := ms.Commodities["gems"].Price
	if _, err := cfg.Buy(p, ms, "gems", 5000); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if after := ms.Commodities["gems"].Price; after <= before {
		t.Fatalf("price %v -> %v, want increase", before, after)
	}
}

func TestBuyErrors(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name   string
		setup  func(p *Player, ms *MarketState)
		id     string
		qty    int64
		wallet float64
		want   error
	}{
		{name: "zero qty", id: "spices", qty: 0, wallet: 100, want: ErrInvalidInput},
		{name: "negative qty", id: "spices", qty: -5, wallet: 100, want: ErrInvalidInput},
		{name: "unknown commodity", id: "kelp", qty: 1, wallet: 100, want: ErrUnknownCommodity},
		{name: "broke", id: "spices", qty: 1000, wallet: 0.01, want: ErrInsufficientFunds},
		{
			name: "bank sold out",
			setup: func(_ *Player, ms *MarketState) {
				cs := ms.Commodities["spices"]
				cs.PlayerHeld = cs.TotalShares
				cs.BankHeld = 0
			},
			id: "spices", qty: 1, wallet: 100, want: ErrInsufficientInventory,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := cfg.InitMarket(1)
			p := newFundedPlayer(tt.wallet)
			if tt.setup != nil {
				tt.setup(p, ms)
			}
			before := p.Wallet
			_, err := cfg.Buy(p, ms, tt.id, tt.qty)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if p.Wallet != before {
				t.Fatalf("failed trade moved wallet %v -> %v", before, p.Wallet)
			}
		})
	}
}

func TestSellRequiresHoldings(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(100)

	if _, err := cfg.Sell(p, ms, "spices", 10); !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("err = %v, want ErrInsufficientHoldings", err)
	}
}

func TestSellLiquidityCheck(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(1000)

	if _, err := cfg.Buy(p, ms, "spices", 100); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	ms.BankReserves = 0
	if _, err := cfg.Sell(p, ms, "spices", 100); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("err = %v, want ErrInsufficientLiquidity", err)
	}
}

func TestBuyThenSellCostsOnlySpreadAndFees(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(1000)

	rb, err := cfg.Buy(p, ms, "silk", 50)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	rs, err := cfg.Sell(p, ms, "silk", 50)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if len(p.Holdings) != 0 {
		t.Fatalf("holdings not empty after flat close: %+v", p.Holdings)
	}
	if !approx(p.Wallet, 1000+rb.Net+rs.Net) {
		t.Fatalf("wallet %v, want %v", p.Wallet, 1000+rb.Net+rs.Net)
	}
	// The round trip can only lose money: spread plus two fees.
	if p.Wallet >= 1000 {
		t.Fatalf("round trip profited: %v", p.Wallet)
	}
	loss := 1000 - p.Wallet
	maxLoss := float64(50)*(rb.Price-rs.Price) + rb.Fee + rs.Fee + 1e-6
	if loss > maxLoss {
		t.Fatalf("loss %v exceeds spread+fees %v", loss, maxLoss)
	}
	checkConservation(t, ms)
}

func TestCostBasisBlendsPreFee(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(10000)

	r1, err := cfg.Buy(p, ms, "rum", 100)
	if err != nil {
		t.Fatalf("first Buy: %v", err)
	}
	r2, err := cfg.Buy(p, ms, "rum", 300)
	if err != nil {
		t.Fatalf("second Buy: %v", err)
	}

	cost1 := round4(r1.Price * 100)
	cost2 := round4(r2.Price * 300)
	want := round6((cost1 + cost2) / 400)
	h := p.Holdings["rum"]
	if h.Quantity != 400 {
		t.Fatalf("quantity = %d", h.Quantity)
	}
	if !approx(h.CostBasis, want) {
		t.Fatalf("cost basis = %v, want %v (fees excluded)", h.CostBasis, want)
	}
}

func TestShortRequiresPrivilege(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(10000)

	if _, err := cfg.ShortSell(p, ms, "tulips", 10); !errors.Is(err, ErrPrivilegeRequired) {
		t.Fatalf("err = %v, want ErrPrivilegeRequired", err)
	}
}

func TestShortThenCover(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(1000)
	p.BankUnlocked = true

	r1, err := cfg.ShortSell(p, ms, "tulips", 200)
	if err != nil {
		t.Fatalf("ShortSell: %v", err)
	}
	s := p.Shorts["tulips"]
	if s == nil || s.Quantity != 200 {
		t.Fatalf("short = %+v", s)
	}
	if !approx(s.Collateral, round4(round4(r1.Price*200)*cfg.ShortCollateral)) {
		t.Fatalf("collateral = %v", s.Collateral)
	}

	r2, err := cfg.Cover(p, ms, "tulips", 200)
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	if len(p.Shorts) != 0 {
		t.Fatalf("shorts not closed: %+v", p.Shorts)
	}
	if !approx(p.Wallet, 1000+r1.Net+r2.Net) {
		t.Fatalf("wallet %v, want %v", p.Wallet, 1000+r1.Net+r2.Net)
	}
	checkConservation(t, ms)

	cs := ms.Commodities["tulips"]
	if cs.PlayerHeld != 0 {
		t.Fatalf("playerHeld = %d after full cover", cs.PlayerHeld)
	}
}

func TestCoverRejectsOversize(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(1000)
	p.BankUnlocked = true

	if _, err := cfg.ShortSell(p, ms, "tulips", 100); err != nil {
		t.Fatalf("ShortSell: %v", err)
	}
	if _, err := cfg.Cover(p, ms, "tulips", 150); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("err = %v, want ErrNoPosition", err)
	}
	if p.Shorts["tulips"].Quantity != 100 {
		t.Fatal("rejected cover mutated the position")
	}
}

func TestPartialCoverProRata(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(1000)
	p.BankUnlocked = true

	if _, err := cfg.ShortSell(p, ms, "cannons", 100); err != nil {
		t.Fatalf("ShortSell: %v", err)
	}
	full := p.Shorts["cannons"].Collateral

	if _, err := cfg.Cover(p, ms, "cannons", 25); err != nil {
		t.Fatalf("Cover: %v", err)
	}
	s := p.Shorts["cannons"]
	if s.Quantity != 75 {
		t.Fatalf("quantity = %d, want 75", s.Quantity)
	}
	if !approx(s.Collateral, round4(full*0.75)) {
		t.Fatalf("collateral = %v, want %v", s.Collateral, round4(full*0.75))
	}
}

func TestWalletNeverNegative(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := newFundedPlayer(5)
	p.BankUnlocked = true

	ops := []func() error{
		func() error { _, err := cfg.Buy(p, ms, "spices", 1000); return err },
		func() error { _, err := cfg.ShortSell(p, ms, "spices", 1000); return err },
	}
	for i, op := range ops {
		if err := op(); err == nil {
			t.Fatalf("op %d should have failed", i)
		}
		if p.Wallet < 0 {
			t.Fatalf("op %d left wallet negative: %v", i, p.Wallet)
		}
	}
}
