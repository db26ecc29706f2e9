package engine

import (
	"errors"
	"testing"
)

func TestSettlementIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := NewPlayer("p1", "Ahab")

	r1, err := cfg.RunDailySettlement(p, ms, 5)
	if err != nil {
		t.Fatalf("first settlement: %v", err)
	}
	if r1 == nil {
		t.Fatal("first settlement returned no receipt")
	}
	wallet := p.Wallet
	claims := ms.TotalClaims

	r2, err := cfg.RunDailySettlement(p, ms, 5)
	if err != nil {
		t.Fatalf("repeat settlement: %v", err)
	}
	if r2 != nil {
		t.Fatalf("repeat settlement produced receipt %+v", r2)
	}
	if p.Wallet != wallet || ms.TotalClaims != claims {
		t.Fatal("repeat settlement mutated state")
	}
}

func TestSettlementStreaks(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := NewPlayer("p1", "Ahab")

	// Seven consecutive days ramp the claim to the milestone bracket.
	wantClaims := []float64{100, 110, 120, 130, 140, 150, 210}
	for day, want := range wantClaims {
		r, err := cfg.RunDailySettlement(p, ms, day)
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
		if r.Streak != min(day+1, cfg.StreakCap) {
			t.Fatalf("day %d: streak = %d", day, r.Streak)
		}
		if r.Claim != want {
			t.Fatalf("day %d: claim = %v, want %v", day, r.Claim, want)
		}
	}

	// Day 8 holds at the cap.
	r, err := cfg.RunDailySettlement(p, ms, 7)
	if err != nil {
		t.Fatalf("day 7: %v", err)
	}
	if r.Streak != cfg.StreakCap || r.Claim != 210 {
		t.Fatalf("capped day: streak %d claim %v", r.Streak, r.Claim)
	}

	// A missed day resets to 1.
	r, err = cfg.RunDailySettlement(p, ms, 10)
	if err != nil {
		t.Fatalf("day 10: %v", err)
	}
	if r.Streak != 1 || r.Claim != 100 {
		t.Fatalf("after gap: streak %d claim %v", r.Streak, r.Claim)
	}
}

func TestSettlementMintsIntoSupply(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := NewPlayer("p1", "Ahab")

	before := ms.MoneySupply
	r, err := cfg.RunDailySettlement(p, ms, 0)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if ms.MoneySupply != round4(before+r.Claim) {
		t.Fatalf("supply %v, want %v", ms.MoneySupply, before+r.Claim)
	}
	if ms.TotalClaims != 1 {
		t.Fatalf("totalClaims = %d", ms.TotalClaims)
	}
}

func TestSettlementInterest(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := NewPlayer("p1", "Ahab")
	p.Savings = 1000
	p.Loan = 100
	p.LoanOriginLogin = 0
	p.LoginCount = 1 // inside the deadline

	r, err := cfg.RunDailySettlement(p, ms, 0)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if r.SavingsInterest != 15 {
		t.Fatalf("savings interest = %v, want 15", r.SavingsInterest)
	}
	if p.Savings != 1015 {
		t.Fatalf("savings = %v", p.Savings)
	}
	if r.LoanInterest != 5 {
		t.Fatalf("loan interest = %v, want 5", r.LoanInterest)
	}
	if p.Loan != 105 {
		t.Fatalf("loan = %v", p.Loan)
	}
}

func TestSettlementShortBorrowFee(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	ms.Commodities["rum"].Price = 2.0
	p := NewPlayer("p1", "Ahab")
	p.Shorts["rum"] = &ShortPosition{Quantity: 100, EntryPrice: 2.0, Collateral: 300}

	r, err := cfg.RunDailySettlement(p, ms, 0)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	// 0.008 * 100 * 2.0 = 1.6
	if r.BorrowFees != 1.6 {
		t.Fatalf("borrow fees = %v, want 1.6", r.BorrowFees)
	}
	if p.Wallet != round4(r.Claim-1.6) {
		t.Fatalf("wallet = %v", p.Wallet)
	}
}

func TestSettlementBorrowFeeCappedAtWallet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyClaim = 0
	cfg.StreakBonus = 0
	ms := cfg.InitMarket(1)
	ms.Commodities["rum"].Price = 1000
	p := NewPlayer("p1", "Ahab")
	p.Shorts["rum"] = &ShortPosition{Quantity: 100, EntryPrice: 1000, Collateral: 1}

	if _, err := cfg.RunDailySettlement(p, ms, 0); err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if p.Wallet != 0 {
		t.Fatalf("wallet = %v, want 0 (fee capped)", p.Wallet)
	}
	if p.Wallet < 0 {
		t.Fatal("wallet went negative")
	}
}

func TestBankUnlockLatch(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := NewPlayer("p1", "Ahab")
	p.Wallet = 950 // claim pushes past 1000

	r, err := cfg.RunDailySettlement(p, ms, 0)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if !r.BankUnlocked || !p.BankUnlocked {
		t.Fatal("bank privilege not latched")
	}

	// The latch is one-way: losing the net worth keeps the privilege.
	p.Wallet = 0
	if _, err := cfg.RunDailySettlement(p, ms, 1); err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if !p.BankUnlocked {
		t.Fatal("privilege revoked on drawdown")
	}
}

func TestCallLoanWaterfall(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	ms.Commodities["spices"].Price = 1.0
	cs := ms.Commodities["spices"]
	cs.PlayerHeld = 100
	cs.BankHeld -= 100

	p := NewPlayer("p1", "Ahab")
	p.Wallet = 50
	p.Savings = 20
	p.Loan = 500
	p.Holdings["spices"] = &Holding{Quantity: 100, CostBasis: 1.0}

	c := cfg
	c.callLoan(p, ms)

	if p.Wallet != 0 || p.Savings != 0 {
		t.Fatalf("wallet/savings = %v/%v, want 0/0", p.Wallet, p.Savings)
	}
	if len(p.Holdings) != 0 {
		t.Fatalf("holdings survived the call: %+v", p.Holdings)
	}
	// 50 + 20 + 100 covers only 170 of 500; the rest is written off.
	if p.Loan != 0 {
		t.Fatalf("loan = %v, want 0 after write-off", p.Loan)
	}
	if p.LoanOriginLogin != 0 {
		t.Fatalf("origin marker not cleared: %d", p.LoanOriginLogin)
	}
	if cs.PlayerHeld != 0 || cs.BankHeld != cs.TotalShares {
		t.Fatalf("shares not returned to bank: player %d bank %d", cs.PlayerHeld, cs.BankHeld)
	}
}

func TestCallLoanReturnsOvershoot(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	cs := ms.Commodities["spices"]
	cs.Price = 3.0
	cs.PlayerHeld = 100
	cs.BankHeld -= 100

	p := NewPlayer("p1", "Ahab")
	p.Loan = 10 // needs 4 shares at 3.0 = 12, overshoot 2
	p.Holdings["spices"] = &Holding{Quantity: 100, CostBasis: 1.0}

	cfg.callLoan(p, ms)

	if p.Loan != 0 {
		t.Fatalf("loan = %v", p.Loan)
	}
	if p.Wallet != 2 {
		t.Fatalf("wallet = %v, want overshoot 2", p.Wallet)
	}
	if h := p.Holdings["spices"]; h == nil || h.Quantity != 96 {
		t.Fatalf("holdings = %+v, want 96 left", h)
	}
}

func TestCallLoanShortCollateralSurplus(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	cs := ms.Commodities["rum"]
	cs.PlayerHeld = 50
	cs.BankHeld -= 50

	p := NewPlayer("p1", "Ahab")
	p.Loan = 100
	p.Shorts["rum"] = &ShortPosition{Quantity: 50, EntryPrice: 2.0, Collateral: 150}

	cfg.callLoan(p, ms)

	if p.Loan != 0 {
		t.Fatalf("loan = %v", p.Loan)
	}
	if p.Wallet != 50 {
		t.Fatalf("wallet = %v, want surplus collateral 50", p.Wallet)
	}
	if len(p.Shorts) != 0 {
		t.Fatalf("short survived: %+v", p.Shorts)
	}
	if cs.PlayerHeld != 0 {
		t.Fatalf("borrowed shares not returned: %d", cs.PlayerHeld)
	}
}

func TestSettlementTriggersLoanDeadline(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := NewPlayer("p1", "Ahab")
	p.Wallet = 10000
	p.Loan = 100
	p.LoanOriginLogin = 1
	p.LoginCount = cfg.LoanDeadline // next login crosses the deadline

	r, err := cfg.RunDailySettlement(p, ms, 0)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if !r.LoanCalled {
		t.Fatal("loan deadline not enforced")
	}
	if p.Loan != 0 {
		t.Fatalf("loan = %v", p.Loan)
	}
}

func TestSweepMarginCalls(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	cs := ms.Commodities["tulips"]
	cs.Price = 2.50
	cs.PlayerHeld = 100
	cs.BankHeld -= 100

	p := NewPlayer("p1", "Ahab")
	p.Shorts["tulips"] = &ShortPosition{Quantity: 100, EntryPrice: 1.00, Collateral: 150}

	liqs := cfg.SweepMarginCalls(ms, []*Player{p})
	if len(liqs) != 1 {
		t.Fatalf("liquidations = %d, want 1", len(liqs))
	}
	l := liqs[0]
	// Loss 150 against collateral 150 at fraction 0.85: forced close,
	// nothing left to refund.
	if l.Loss != 150 || l.Refund != 0 {
		t.Fatalf("loss/refund = %v/%v, want 150/0", l.Loss, l.Refund)
	}
	if len(p.Shorts) != 0 {
		t.Fatal("short survived the sweep")
	}
	if p.Wallet != 0 {
		t.Fatalf("wallet = %v", p.Wallet)
	}
	if cs.PlayerHeld != 0 || cs.BankHeld != cs.TotalShares {
		t.Fatal("shares not returned to bank")
	}
}

func TestSweepLeavesHealthyShorts(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	cs := ms.Commodities["tulips"]
	cs.Price = 1.10
	cs.PlayerHeld = 100
	cs.BankHeld -= 100

	p := NewPlayer("p1", "Ahab")
	p.Shorts["tulips"] = &ShortPosition{Quantity: 100, EntryPrice: 1.00, Collateral: 150}

	if liqs := cfg.SweepMarginCalls(ms, []*Player{p}); len(liqs) != 0 {
		t.Fatalf("healthy short liquidated: %+v", liqs)
	}
	if p.Shorts["tulips"] == nil {
		t.Fatal("position removed")
	}
}

func TestSweepRefundsResidualCollateral(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	cs := ms.Commodities["tulips"]
	cs.Price = 2.35
	cs.PlayerHeld = 100
	cs.BankHeld -= 100

	p := NewPlayer("p1", "Ahab")
	p.Shorts["tulips"] = &ShortPosition{Quantity: 100, EntryPrice: 1.00, Collateral: 150}

	liqs := cfg.SweepMarginCalls(ms, []*Player{p})
	if len(liqs) != 1 {
		t.Fatalf("liquidations = %d, want 1", len(liqs))
	}
	// Loss 135 > 127.5 trigger; refund 150-135 = 15.
	if liqs[0].Refund != 15 {
		t.Fatalf("refund = %v, want 15", liqs[0].Refund)
	}
	if p.Wallet != 15 {
		t.Fatalf("wallet = %v, want 15", p.Wallet)
	}
}

func TestBankOps(t *testing.T) {
	cfg := DefaultConfig()
	_ = cfg.InitMarket(1)
	p := NewPlayer("p1", "Ahab")
	p.Wallet = 500
	p.BankUnlocked = true

	if err := cfg.Deposit(p, 200); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if p.Wallet != 300 || p.Savings != 200 {
		t.Fatalf("wallet/savings = %v/%v", p.Wallet, p.Savings)
	}
	if err := cfg.Withdraw(p, 50); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if p.Wallet != 350 || p.Savings != 150 {
		t.Fatalf("wallet/savings = %v/%v", p.Wallet, p.Savings)
	}
	if err := cfg.Withdraw(p, 1000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraw err = %v", err)
	}
}

func TestBankOpsRequirePrivilege(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := NewPlayer("p1", "Ahab")
	p.Wallet = 500

	if err := cfg.Deposit(p, 100); !errors.Is(err, ErrPrivilegeRequired) {
		t.Fatalf("Deposit err = %v", err)
	}
	if err := cfg.Borrow(p, ms, 100); !errors.Is(err, ErrPrivilegeRequired) {
		t.Fatalf("Borrow err = %v", err)
	}
}

func TestBorrowCapAndReserves(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	p := NewPlayer("p1", "Ahab")
	p.Wallet = 100
	p.BankUnlocked = true
	p.LoginCount = 3

	// Net worth 100, cap 300.
	if err := cfg.Borrow(p, ms, 301); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("over-cap err = %v", err)
	}
	if err := cfg.Borrow(p, ms, 200); err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if p.Loan != 200 || p.Wallet != 300 {
		t.Fatalf("loan/wallet = %v/%v", p.Loan, p.Wallet)
	}
	if p.LoanOriginLogin != 3 {
		t.Fatalf("origin login = %d, want 3", p.LoanOriginLogin)
	}
	if ms.BankReserves != round4(cfg.InitialSupply-200) {
		t.Fatalf("reserves = %v", ms.BankReserves)
	}
	if ms.MoneySupply != round4(cfg.InitialSupply+200) {
		t.Fatalf("supply = %v", ms.MoneySupply)
	}

	if err := cfg.Repay(p, ms, 150); err != nil {
		t.Fatalf("Repay: %v", err)
	}
	if p.Loan != 50 || p.Wallet != 150 {
		t.Fatalf("after repay loan/wallet = %v/%v", p.Loan, p.Wallet)
	}
	if err := cfg.Repay(p, ms, 9999); err != nil {
		t.Fatalf("capped Repay: %v", err)
	}
	if p.Loan != 0 || p.LoanOriginLogin != 0 {
		t.Fatalf("loan not cleared: %v origin %d", p.Loan, p.LoanOriginLogin)
	}
}

func TestBorrowReservesLiquidity(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	ms.BankReserves = 10
	p := NewPlayer("p1", "Ahab")
	p.Wallet = 1000
	p.BankUnlocked = true

	if err := cfg.Borrow(p, ms, 100); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("err = %v, want ErrInsufficientLiquidity", err)
	}
}

func TestNetWorth(t *testing.T) {
	cfg := DefaultConfig()
	ms := cfg.InitMarket(1)
	ms.Commodities["spices"].Price = 2.0
	ms.Commodities["rum"].Price = 1.0

	p := NewPlayer("p1", "Ahab")
	p.Wallet = 100
	p.Savings = 50
	p.Loan = 30
	p.Holdings["spices"] = &Holding{Quantity: 10, CostBasis: 1.5}
	p.Shorts["rum"] = &ShortPosition{Quantity: 20, EntryPrice: 1.5, Collateral: 45}

	// 100 + 50 - 30 + 10*2.0 + (45 + (1.5-1.0)*20) = 195
	if got := NetWorth(p, ms); got != 195 {
		t.Fatalf("net worth = %v, want 195", got)
	}
}
