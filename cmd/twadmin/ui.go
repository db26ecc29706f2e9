package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

type commodityRow struct {
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
}

type marketPayload struct {
	Commodities []commodityRow `json:"commodities"`
}

type quotePayload struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
	Mid float64 `json:"mid"`
}

type historyPayload struct {
	Points []struct {
		Day   int     `json:"day"`
		Tick  int     `json:"tick"`
		Price float64 `json:"price"`
	} `json:"points"`
}

type eventsPayload struct {
	Events []struct {
		Name      string    `json:"name"`
		Desc      string    `json:"desc"`
		Day       int       `json:"day"`
		Tick      int       `json:"tick"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"events"`
}

type leaderboardPayload struct {
	Rows []struct {
		Rank     int     `json:"rank"`
		PlayerID string  `json:"playerId"`
		Name     string  `json:"name"`
		NetWorth float64 `json:"netWorth"`
		League   struct {
			Name string `json:"name"`
		} `json:"league"`
	} `json:"rows"`
}

type dashboardPayload struct {
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Day      int     `json:"day"`
	Wallet   float64 `json:"wallet"`
	Savings  float64 `json:"savings"`
	Loan     float64 `json:"loan"`
	NetWorth float64 `json:"netWorth"`
	League   struct {
		Name string `json:"name"`
	} `json:"league"`
	Streak       int  `json:"streak"`
	BankUnlocked bool `json:"bankUnlocked"`
	Holdings     []struct {
		Commodity string  `json:"commodity"`
		Quantity  int64   `json:"quantity"`
		CostBasis float64 `json:"costBasis"`
		Price     float64 `json:"price"`
		Value     float64 `json:"value"`
		PnL       float64 `json:"pnl"`
	} `json:"holdings"`
	Shorts []struct {
		Commodity  string  `json:"commodity"`
		Quantity   int64   `json:"quantity"`
		EntryPrice float64 `json:"entryPrice"`
		Price      float64 `json:"price"`
		Collateral float64 `json:"collateral"`
		PnL        float64 `json:"pnl"`
	} `json:"shorts"`
}

type claimPayload struct {
	Claimed bool `json:"claimed"`
	Receipt struct {
		Day        int     `json:"day"`
		Claim      float64 `json:"claim"`
		Streak     int     `json:"streak"`
		LoanCalled bool    `json:"loanCalled"`
		NetWorth   float64 `json:"netWorth"`
	} `json:"receipt"`
}

type tradePayload struct {
	Commodity   string  `json:"commodity"`
	Action      string  `json:"action"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
	Fee         float64 `json:"fee"`
	Net         float64 `json:"net"`
	WalletAfter float64 `json:"walletAfter"`
}

type tradesPayload struct {
	Trades []struct {
		Commodity string    `json:"commodity"`
		Action    string    `json:"action"`
		Quantity  int64     `json:"quantity"`
		Price     float64   `json:"price"`
		Fee       float64   `json:"fee"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"trades"`
}

type tickPayload struct {
	Applied bool `json:"applied"`
	Outcome struct {
		Day      int  `json:"day"`
		Tick     int  `json:"tick"`
		Rollover bool `json:"rollover"`
		Event    *struct {
			Name string `json:"name"`
			Desc string `json:"desc"`
		} `json:"event"`
	} `json:"outcome"`
}

func printSuccess(msg string) { success.Println(msg) }
func printWarn(msg string)    { warn.Println(msg) }
func printInfo(msg string)    { neutral.Println(msg) }

func renderMarket(raw map[string]any) error {
	out, err := decodeInto[marketPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== COMMODITY BOARD ==")
	if len(out.Commodities) == 0 {
		printInfo("No commodities found.")
		return nil
	}
	fmt.Printf("%-12s %-18s %12s %12s %12s %9s %12s\n", "ID", "NAME", "BID", "ASK", "PRICE", "DAY", "VOLUME")
	for _, c := range out.Commodities {
		fmt.Printf("%-12s %-18s %12s %12s %12s %9s %12d\n",
			c.ID,
			truncate(c.Name, 18),
			formatPrice(c.Bid),
			formatPrice(c.Ask),
			formatPrice(c.Price),
			colorizePercent(c.DayChange*100),
			c.VolumeToday,
		)
	}
	fmt.Println()
	return nil
}

func renderQuote(raw map[string]any, commodity string) error {
	q, err := decodeInto[quotePayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s ==\n", strings.ToUpper(commodity))
	fmt.Printf("Bid: %s\n", formatPrice(q.Bid))
	fmt.Printf("Ask: %s\n", formatPrice(q.Ask))
	fmt.Printf("Mid: %s\n", formatPrice(q.Mid))
	fmt.Println()
	return nil
}

func renderHistory(raw map[string]any, commodity string) error {
	out, err := decodeInto[historyPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s HISTORY ==\n", strings.ToUpper(commodity))
	if len(out.Points) == 0 {
		printInfo("No history yet.")
		return nil
	}
	fmt.Printf("%-8s %-8s %12s\n", "DAY", "TICK", "PRICE")
	for _, p := range out.Points {
		fmt.Printf("%-8d %-8d %12s\n", p.Day, p.Tick, formatPrice(p.Price))
	}
	fmt.Println()
	return nil
}

func renderEvents(raw map[string]any) error {
	out, err := decodeInto[eventsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== MARKET EVENTS ==")
	if len(out.Events) == 0 {
		printInfo("No events fired yet.")
		return nil
	}
	for _, e := range out.Events {
		fmt.Printf("day %d/%d  %s\n", e.Day, e.Tick, warn.Sprint(e.Name))
		if e.Desc != "" {
			fmt.Printf("          %s\n", e.Desc)
		}
	}
	fmt.Println()
	return nil
}

func renderLeaderboard(raw map[string]any) error {
	out, err := decodeInto[leaderboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== LEADERBOARD ==")
	if len(out.Rows) == 0 {
		printInfo("No players yet.")
		return nil
	}
	fmt.Printf("%-6s %-20s %-12s %14s\n", "RANK", "PLAYER", "LEAGUE", "NET WORTH")
	for _, row := range out.Rows {
		fmt.Printf("%-6d %-20s %-12s %14s\n",
			row.Rank,
			truncate(row.Name, 20),
			row.League.Name,
			formatMoney(row.NetWorth),
		)
	}
	fmt.Println()
	return nil
}

func renderDashboard(raw map[string]any) error {
	d, err := decodeInto[dashboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s (day %d) ==\n", d.Name, d.Day)
	fmt.Printf("Wallet:    %s\n", formatMoney(d.Wallet))
	fmt.Printf("Savings:   %s\n", formatMoney(d.Savings))
	fmt.Printf("Loan:      %s\n", formatMoney(d.Loan))
	fmt.Printf("Net Worth: %s\n", formatMoney(d.NetWorth))
	fmt.Printf("League:    %s\n", d.League.Name)
	fmt.Printf("Streak:    %d\n", d.Streak)
	fmt.Printf("Bank:      %s\n", lockedLabel(d.BankUnlocked))

	fmt.Println()
	accent.Println("Holdings")
	if len(d.Holdings) == 0 {
		printInfo("No open positions.")
	} else {
		fmt.Printf("%-12s %10s %12s %12s %14s %14s\n", "COMMODITY", "QTY", "BASIS", "NOW", "VALUE", "P/L")
		for _, h := range d.Holdings {
			fmt.Printf("%-12s %10d %12s %12s %14s %14s\n",
				h.Commodity, h.Quantity,
				formatPrice(h.CostBasis), formatPrice(h.Price),
				formatMoney(h.Value), colorizeMoney(h.PnL))
		}
	}
	if len(d.Shorts) > 0 {
		fmt.Println()
		accent.Println("Shorts")
		fmt.Printf("%-12s %10s %12s %12s %14s %14s\n", "COMMODITY", "QTY", "ENTRY", "NOW", "COLLATERAL", "P/L")
		for _, sp := range d.Shorts {
			fmt.Printf("%-12s %10d %12s %12s %14s %14s\n",
				sp.Commodity, sp.Quantity,
				formatPrice(sp.EntryPrice), formatPrice(sp.Price),
				formatMoney(sp.Collateral), colorizeMoney(sp.PnL))
		}
	}
	fmt.Println()
	return nil
}

func renderClaim(raw map[string]any) error {
	out, err := decodeInto[claimPayload](raw)
	if err != nil {
		return err
	}
	if !out.Claimed {
		printInfo("Already settled today.")
		return nil
	}
	printSuccess(fmt.Sprintf("Claimed %s (streak %d).", formatMoney(out.Receipt.Claim), out.Receipt.Streak))
	if out.Receipt.LoanCalled {
		printWarn("Your loan was called and collected.")
	}
	fmt.Printf("Net worth: %s\n", formatMoney(out.Receipt.NetWorth))
	return nil
}

func renderTrade(raw map[string]any) error {
	out, err := decodeInto[tradePayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s %s ==\n", strings.ToUpper(out.Action), strings.ToUpper(out.Commodity))
	fmt.Printf("Quantity: %d\n", out.Quantity)
	fmt.Printf("Price:    %s\n", formatPrice(out.Price))
	fmt.Printf("Fee:      %s\n", formatMoney(out.Fee))
	fmt.Printf("Net:      %s\n", colorizeMoney(out.Net))
	fmt.Printf("Wallet:   %s\n", formatMoney(out.WalletAfter))
	fmt.Println()
	return nil
}

func renderTrades(raw map[string]any) error {
	out, err := decodeInto[tradesPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== RECENT TRADES ==")
	if len(out.Trades) == 0 {
		printInfo("No trades yet.")
		return nil
	}
	fmt.Printf("%-18s %-8s %-12s %10s %12s %10s\n", "TIME", "ACTION", "COMMODITY", "QTY", "PRICE", "FEE")
	for _, t := range out.Trades {
		fmt.Printf("%-18s %-8s %-12s %10d %12s %10s\n",
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
			t.Action, t.Commodity, t.Quantity,
			formatPrice(t.Price), formatMoney(t.Fee))
	}
	fmt.Println()
	return nil
}

func renderTick(raw map[string]any) error {
	out, err := decodeInto[tickPayload](raw)
	if err != nil {
		return err
	}
	if !out.Applied {
		printInfo("Another node won this tick slot.")
		return nil
	}
	printSuccess(fmt.Sprintf("Tick applied: day %d, tick %d.", out.Outcome.Day, out.Outcome.Tick))
	if out.Outcome.Rollover {
		printInfo("Day rolled over.")
	}
	if out.Outcome.Event != nil {
		printWarn("Event: " + out.Outcome.Event.Name + " - " + out.Outcome.Event.Desc)
	}
	return nil
}

func lockedLabel(unlocked bool) string {
	if unlocked {
		return success.Sprint("unlocked")
	}
	return neutral.Sprint("locked")
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeMoney(v float64) string {
	text := fmt.Sprintf("%+.4f", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatMoney(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func formatPrice(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
