package game

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"tradewinds/internal/engine"
	"tradewinds/internal/store"
)

var testLaunch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := NewService(st, slog.New(slog.DiscardHandler), engine.DefaultConfig(), testLaunch)
	if err := svc.EnsureMarket(context.Background(), 42); err != nil {
		t.Fatalf("EnsureMarket: %v", err)
	}
	return svc, st
}

func TestEnsureMarketIdempotent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	before, err := st.LoadMarket(ctx)
	if err != nil {
		t.Fatalf("LoadMarket: %v", err)
	}
	if err := svc.EnsureMarket(ctx, 99); err != nil {
		t.Fatalf("second EnsureMarket: %v", err)
	}
	after, _ := st.LoadMarket(ctx)
	if after.Version != before.Version {
		t.Fatalf("EnsureMarket rewrote an existing market: %d -> %d", before.Version, after.Version)
	}
}

func TestGameClock(t *testing.T) {
	svc, _ := newTestService(t)

	if d := svc.Day(testLaunch.Add(time.Hour)); d != 0 {
		t.Fatalf("day at launch+1h = %d", d)
	}
	if d := svc.Day(testLaunch.Add(49 * time.Hour)); d != 2 {
		t.Fatalf("day at launch+49h = %d", d)
	}
	if ti := svc.TickIndex(testLaunch.Add(45 * time.Second)); ti != 3 {
		t.Fatalf("tick at +45s = %d", ti)
	}
	if d := svc.Day(testLaunch.Add(-time.Hour)); d != 0 {
		t.Fatalf("pre-launch day = %d", d)
	}
}

func TestLazySettlementOnFirstTouch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := testLaunch.Add(time.Hour)

	if _, err := svc.EnsurePlayer(ctx, "p1", "Ishmael"); err != nil {
		t.Fatalf("EnsurePlayer: %v", err)
	}
	view, err := svc.Dashboard(ctx, "p1", now)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if view.Wallet != 100 {
		t.Fatalf("wallet after first settlement = %v, want 100", view.Wallet)
	}
	if view.Streak != 1 {
		t.Fatalf("streak = %d, want 1", view.Streak)
	}

	// A second touch on the same day must not pay again.
	view, err = svc.Dashboard(ctx, "p1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if view.Wallet != 100 {
		t.Fatalf("wallet after repeat touch = %v, want 100", view.Wallet)
	}
}

func TestSettleExplicit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := testLaunch.Add(time.Hour)

	if _, err := svc.EnsurePlayer(ctx, "p1", ""); err != nil {
		t.Fatalf("EnsurePlayer: %v", err)
	}
	rcpt, err := svc.Settle(ctx, "p1", now)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if rcpt == nil || rcpt.Claim != 100 {
		t.Fatalf("receipt = %+v, want claim 100", rcpt)
	}

	rcpt, err = svc.Settle(ctx, "p1", now)
	if err != nil {
		t.Fatalf("repeat Settle: %v", err)
	}
	if rcpt != nil {
		t.Fatalf("repeat settle receipt = %+v, want nil", rcpt)
	}
}

func TestExecuteTradeBuyPersists(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	now := testLaunch.Add(time.Hour)

	if _, err := svc.EnsurePlayer(ctx, "p1", ""); err != nil {
		t.Fatalf("EnsurePlayer: %v", err)
	}
	rcpt, err := svc.ExecuteTrade(ctx, now, TradeInput{
		PlayerID: "p1", Commodity: "rum", Action: engine.ActionBuy, Quantity: 50,
	})
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if rcpt.Quantity != 50 || rcpt.Fee <= 0 {
		t.Fatalf("receipt = %+v", rcpt)
	}

	p, err := st.LoadPlayer(ctx, "p1")
	if err != nil {
		t.Fatalf("LoadPlayer: %v", err)
	}
	h, ok := p.Holdings["rum"]
	if !ok || h.Quantity != 50 {
		t.Fatalf("persisted holding = %+v", p.Holdings)
	}
	if p.Wallet != rcpt.WalletAfter {
		t.Fatalf("wallet = %v, receipt says %v", p.Wallet, rcpt.WalletAfter)
	}

	trades, err := st.ListTrades(ctx, "p1", 10)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 1 || trades[0].Action != engine.ActionBuy {
		t.Fatalf("trade log = %+v", trades)
	}
}

// conflictOnceStore rejects the first n combined saves with a version
// conflict without committing anything, as a concurrent writer would.
type conflictOnceStore struct {
	*store.MemoryStore
	conflicts int
}

func (s *conflictOnceStore) SaveMarketAndPlayer(ctx context.Context, ms *engine.MarketState, p *engine.Player) error {
	if s.conflicts > 0 {
		s.conflicts--
		return store.ErrVersionConflict
	}
	return s.MemoryStore.SaveMarketAndPlayer(ctx, ms, p)
}

func TestTradeRetryAppliesEffectsOnce(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &conflictOnceStore{MemoryStore: mem, conflicts: 1}
	svc := NewService(st, slog.New(slog.DiscardHandler), engine.DefaultConfig(), testLaunch)
	ctx := context.Background()
	now := testLaunch.Add(time.Hour)

	if err := svc.EnsureMarket(ctx, 42); err != nil {
		t.Fatalf("EnsureMarket: %v", err)
	}
	if _, err := svc.EnsurePlayer(ctx, "p1", ""); err != nil {
		t.Fatalf("EnsurePlayer: %v", err)
	}

	rcpt, err := svc.ExecuteTrade(ctx, now, TradeInput{
		PlayerID: "p1", Commodity: "rum", Action: engine.ActionBuy, Quantity: 50,
	})
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	ms, err := mem.LoadMarket(ctx)
	if err != nil {
		t.Fatalf("LoadMarket: %v", err)
	}
	cs := ms.Commodities["rum"]
	if cs.PlayerHeld != 50 {
		t.Fatalf("playerHeld = %d, want 50: market effects applied more than once", cs.PlayerHeld)
	}
	if cs.VolumeToday != 50 {
		t.Fatalf("volumeToday = %d, want 50", cs.VolumeToday)
	}
	if ms.TotalClaims != 1 {
		t.Fatalf("totalClaims = %d, want the one lazy settlement", ms.TotalClaims)
	}

	p, err := mem.LoadPlayer(ctx, "p1")
	if err != nil {
		t.Fatalf("LoadPlayer: %v", err)
	}
	h := p.Holdings["rum"]
	if h == nil || h.Quantity != 50 {
		t.Fatalf("holding = %+v", p.Holdings)
	}
	if p.Wallet != rcpt.WalletAfter {
		t.Fatalf("wallet = %v, receipt says %v", p.Wallet, rcpt.WalletAfter)
	}
}

func TestSettleRetryPaysOnce(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &conflictOnceStore{MemoryStore: mem, conflicts: 1}
	svc := NewService(st, slog.New(slog.DiscardHandler), engine.DefaultConfig(), testLaunch)
	ctx := context.Background()
	now := testLaunch.Add(time.Hour)

	if err := svc.EnsureMarket(ctx, 42); err != nil {
		t.Fatalf("EnsureMarket: %v", err)
	}
	if _, err := svc.EnsurePlayer(ctx, "p1", ""); err != nil {
		t.Fatalf("EnsurePlayer: %v", err)
	}
	before, _ := mem.LoadMarket(ctx)

	rcpt, err := svc.Settle(ctx, "p1", now)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if rcpt == nil || rcpt.Claim != 100 {
		t.Fatalf("receipt = %+v", rcpt)
	}

	after, _ := mem.LoadMarket(ctx)
	if after.TotalClaims != before.TotalClaims+1 {
		t.Fatalf("totalClaims = %d, want %d", after.TotalClaims, before.TotalClaims+1)
	}
	if got, want := after.MoneySupply, before.MoneySupply+100; got != want {
		t.Fatalf("moneySupply = %v, want %v: claim minted more than once", got, want)
	}
}

func TestExecuteTradeRejectsUnknownCommodity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := testLaunch.Add(time.Hour)

	if _, err := svc.EnsurePlayer(ctx, "p1", ""); err != nil {
		t.Fatalf("EnsurePlayer: %v", err)
	}
	_, err := svc.ExecuteTrade(ctx, now, TradeInput{
		PlayerID: "p1", Commodity: "kelp", Action: engine.ActionBuy, Quantity: 1,
	})
	if !errors.Is(err, engine.ErrUnknownCommodity) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunMarketTickRollover(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	out, err := svc.RunMarketTick(ctx, testLaunch.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("RunMarketTick: %v", err)
	}
	if !out.Rollover || out.Day != 1 {
		t.Fatalf("outcome = %+v, want rollover to day 1", out)
	}

	ms, err := st.LoadMarket(ctx)
	if err != nil {
		t.Fatalf("LoadMarket: %v", err)
	}
	if ms.CurrentDay != 1 {
		t.Fatalf("market day = %d, want 1", ms.CurrentDay)
	}
	for id, cs := range ms.Commodities {
		if cs.VolumeToday != 0 {
			t.Fatalf("%s volume not reset: %d", id, cs.VolumeToday)
		}
	}
}

func TestLeaderboardRanksByNetWorth(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	for id, wallet := range map[string]float64{"poor": 10, "rich": 5000, "mid": 700} {
		if _, err := svc.EnsurePlayer(ctx, id, id); err != nil {
			t.Fatalf("EnsurePlayer: %v", err)
		}
		p, _ := st.LoadPlayer(ctx, id)
		p.Wallet = wallet
		if err := st.SavePlayer(ctx, p); err != nil {
			t.Fatalf("SavePlayer: %v", err)
		}
	}

	rows, err := svc.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].PlayerID != "rich" || rows[0].Rank != 1 {
		t.Fatalf("top row = %+v", rows[0])
	}
	if rows[1].PlayerID != "mid" {
		t.Fatalf("second row = %+v", rows[1])
	}
	if rows[0].League.ID != "silver" {
		t.Fatalf("rich league = %+v", rows[0].League)
	}
}

func TestHistoryDownsample(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	full, err := svc.History(ctx, "rum", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(full) == 0 {
		t.Fatal("no warm-up history")
	}

	sampled, err := svc.History(ctx, "rum", 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(sampled) > 6 {
		t.Fatalf("sampled = %d points, want <= 6", len(sampled))
	}
	if sampled[len(sampled)-1] != full[len(full)-1] {
		t.Fatal("newest sample dropped by downsampling")
	}

	if _, err := svc.History(ctx, "kelp", 5); !errors.Is(err, engine.ErrUnknownCommodity) {
		t.Fatalf("unknown commodity err = %v", err)
	}
}

func TestBankOpsRequireUnlock(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	now := testLaunch.Add(time.Hour)

	if _, err := svc.EnsurePlayer(ctx, "p1", ""); err != nil {
		t.Fatalf("EnsurePlayer: %v", err)
	}
	if err := svc.Deposit(ctx, "p1", 50, now); !errors.Is(err, engine.ErrPrivilegeRequired) {
		t.Fatalf("locked deposit err = %v", err)
	}

	p, _ := st.LoadPlayer(ctx, "p1")
	p.Wallet = 2000
	p.BankUnlocked = true
	if err := st.SavePlayer(ctx, p); err != nil {
		t.Fatalf("SavePlayer: %v", err)
	}

	if err := svc.Deposit(ctx, "p1", 50, now); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	p, _ = st.LoadPlayer(ctx, "p1")
	if p.Savings != 50 {
		t.Fatalf("savings = %v, want 50", p.Savings)
	}
	if err := svc.Withdraw(ctx, "p1", 20, now); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	p, _ = st.LoadPlayer(ctx, "p1")
	if p.Savings != 30 {
		t.Fatalf("savings = %v, want 30", p.Savings)
	}
}
