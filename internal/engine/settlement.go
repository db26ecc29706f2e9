package engine

import (
	"fmt"
	"math"
)

// SettlementReceipt reports what one daily settlement did to a player.
type SettlementReceipt struct {
	Day             int     `json:"day"`
	Claim           float64 `json:"claim"`
	Streak          int     `json:"streak"`
	SavingsInterest float64 `json:"savingsInterest"`
	LoanInterest    float64 `json:"loanInterest"`
	BorrowFees      float64 `json:"borrowFees"`
	LoanCalled      bool    `json:"loanCalled"`
	BankUnlocked    bool    `json:"bankUnlocked"`
	NetWorth        float64 `json:"netWorth"`
}

// Liquidation records one forced short close from a margin sweep.
type Liquidation struct {
	PlayerID  string  `json:"playerId"`
	Commodity string  `json:"commodity"`
	Quantity  int64   `json:"quantity"`
	Loss      float64 `json:"loss"`
	Refund    float64 `json:"refund"`
}

// RunDailySettlement performs a player's once-per-day cycle: claim with
// streak bonus, interest compounding, short carry fees, the bank
// privilege latch, and the loan deadline call. Settling an already
// settled day is a nil no-op, so concurrent callers race harmlessly.
func (c Config) RunDailySettlement(p *Player, ms *MarketState, today int) (*SettlementReceipt, error) {
	if today < 0 {
		return nil, fmt.Errorf("%w: day %d", ErrInvalidInput, today)
	}
	if p.LastClaimDay >= today {
		return nil, nil
	}

	// The guard is the first mutation so a retried settlement can never
	// double-pay.
	if p.LastClaimDay == today-1 {
		p.Streak++
		if p.Streak > c.StreakCap {
			p.Streak = c.StreakCap
		}
	} else {
		p.Streak = 1
	}
	p.LastClaimDay = today
	p.LoginCount++

	r := &SettlementReceipt{Day: today, Streak: p.Streak}

	r.Claim = round4(c.ClaimAmount(p.Streak))
	p.Wallet = round4(p.Wallet + r.Claim)
	p.TotalClaimed = round4(p.TotalClaimed + r.Claim)
	ms.MoneySupply = round4(ms.MoneySupply + r.Claim)
	ms.TotalClaims++

	if p.Savings > 0 {
		r.SavingsInterest = round4(p.Savings * c.SaveRate)
		p.Savings = round4(p.Savings + r.SavingsInterest)
		ms.MoneySupply = round4(ms.MoneySupply + r.SavingsInterest)
	}
	if p.Loan > 0 {
		r.LoanInterest = round4(p.Loan * c.LoanRate)
		p.Loan = round4(p.Loan + r.LoanInterest)
	}

	// Carry cost on open shorts, capped at the wallet so the balance
	// never goes negative.
	for _, g := range c.Commodities {
		s, ok := p.Shorts[g.ID]
		if !ok {
			continue
		}
		cs, ok := ms.Commodities[g.ID]
		if !ok {
			continue
		}
		fee := round4(c.ShortBorrowRate * float64(s.Quantity) * cs.Price)
		if fee > p.Wallet {
			fee = p.Wallet
		}
		p.Wallet = round4(p.Wallet - fee)
		r.BorrowFees = round4(r.BorrowFees + fee)
	}

	if !p.BankUnlocked && NetWorth(p, ms) >= c.BankUnlockNetWorth {
		p.BankUnlocked = true
		r.BankUnlocked = true
	}

	if p.Loan > 0 && p.LoginCount-p.LoanOriginLogin >= c.LoanDeadline {
		c.callLoan(p, ms)
		r.LoanCalled = true
	}

	r.NetWorth = NetWorth(p, ms)
	p.appendNetWorth(today, r.NetWorth)
	return r, nil
}

// callLoan force-collects an overdue loan: wallet, then savings, then
// holdings sold to the bank at mid, then short collateral. Whatever the
// assets cannot cover is written off; the loan is cleared either way.
func (c Config) callLoan(p *Player, ms *MarketState) {
	pay := math.Min(p.Wallet, p.Loan)
	p.Wallet = round4(p.Wallet - pay)
	p.Loan = round4(p.Loan - pay)

	if p.Loan > 0 {
		pay = math.Min(p.Savings, p.Loan)
		p.Savings = round4(p.Savings - pay)
		p.Loan = round4(p.Loan - pay)
	}

	for _, g := range c.Commodities {
		if p.Loan <= 0 {
			break
		}
		h, ok := p.Holdings[g.ID]
		if !ok {
			continue
		}
		cs, ok := ms.Commodities[g.ID]
		if !ok || cs.Price <= 0 {
			continue
		}
		// Smallest share count whose value covers the remainder; any
		// overshoot from whole-share granularity lands in the wallet.
		sq := int64(math.Ceil(p.Loan / cs.Price))
		if sq > h.Quantity {
			sq = h.Quantity
		}
		value := round4(float64(sq) * cs.Price)
		if value > p.Loan {
			p.Wallet = round4(p.Wallet + value - p.Loan)
			p.Loan = 0
		} else {
			p.Loan = round4(p.Loan - value)
		}
		h.Quantity -= sq
		if h.Quantity == 0 {
			delete(p.Holdings, g.ID)
		}
		cs.PlayerHeld -= sq
		cs.BankHeld += sq
	}

	for _, g := range c.Commodities {
		if p.Loan <= 0 {
			break
		}
		s, ok := p.Shorts[g.ID]
		if !ok {
			continue
		}
		cs := ms.Commodities[g.ID]
		if s.Collateral > p.Loan {
			p.Wallet = round4(p.Wallet + s.Collateral - p.Loan)
			p.Loan = 0
		} else {
			p.Loan = round4(p.Loan - s.Collateral)
		}
		delete(p.Shorts, g.ID)
		if cs != nil {
			cs.PlayerHeld -= s.Quantity
			cs.BankHeld += s.Quantity
		}
	}

	p.Loan = 0
	p.LoanOriginLogin = 0
}

// SweepMarginCalls force-closes every short whose mark-to-market loss
// has eaten past the margin fraction of its collateral. Runs every tick
// over all players with open shorts.
func (c Config) SweepMarginCalls(ms *MarketState, players []*Player) []Liquidation {
	var out []Liquidation
	for _, p := range players {
		for _, g := range c.Commodities {
			s, ok := p.Shorts[g.ID]
			if !ok {
				continue
			}
			cs, ok := ms.Commodities[g.ID]
			if !ok {
				continue
			}
			loss := (cs.Price - s.EntryPrice) * float64(s.Quantity)
			if loss <= s.Collateral*c.MarginCallFraction {
				continue
			}
			refund := round4(math.Max(0, s.Collateral-loss))
			p.Wallet = round4(p.Wallet + refund)
			delete(p.Shorts, g.ID)
			cs.PlayerHeld -= s.Quantity
			cs.BankHeld += s.Quantity

			out = append(out, Liquidation{
				PlayerID:  p.ID,
				Commodity: g.ID,
				Quantity:  s.Quantity,
				Loss:      round4(loss),
				Refund:    refund,
			})
		}
	}
	return out
}

// Deposit moves wallet funds into interest-bearing savings.
func (c Config) Deposit(p *Player, amount float64) error {
	if !p.BankUnlocked {
		return ErrPrivilegeRequired
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount %.4f", ErrInvalidInput, amount)
	}
	if p.Wallet < amount {
		return fmt.Errorf("%w: wallet %.4f", ErrInsufficientFunds, p.Wallet)
	}
	p.Wallet = round4(p.Wallet - amount)
	p.Savings = round4(p.Savings + amount)
	return nil
}

// Withdraw moves savings back to the wallet.
func (c Config) Withdraw(p *Player, amount float64) error {
	if !p.BankUnlocked {
		return ErrPrivilegeRequired
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount %.4f", ErrInvalidInput, amount)
	}
	if p.Savings < amount {
		return fmt.Errorf("%w: savings %.4f", ErrInsufficientFunds, p.Savings)
	}
	p.Savings = round4(p.Savings - amount)
	p.Wallet = round4(p.Wallet + amount)
	return nil
}

// Borrow draws a loan out of bank reserves, capped at a multiple of
// current net worth. New money enters the supply here.
func (c Config) Borrow(p *Player, ms *MarketState, amount float64) error {
	if !p.BankUnlocked {
		return ErrPrivilegeRequired
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount %.4f", ErrInvalidInput, amount)
	}
	if p.Loan+amount > c.MaxLoanMult*NetWorth(p, ms) {
		return fmt.Errorf("%w: loan cap is %.0fx net worth", ErrInsufficientFunds, c.MaxLoanMult)
	}
	if amount > ms.BankReserves {
		return fmt.Errorf("%w: reserves %.4f", ErrInsufficientLiquidity, ms.BankReserves)
	}
	if p.Loan == 0 {
		p.LoanOriginLogin = p.LoginCount
	}
	p.Loan = round4(p.Loan + amount)
	p.Wallet = round4(p.Wallet + amount)
	ms.BankReserves = round4(ms.BankReserves - amount)
	ms.MoneySupply = round4(ms.MoneySupply + amount)
	return nil
}

// Repay pays a loan down from the wallet, capped at both the wallet and
// the outstanding balance. Repaid principal returns to reserves.
func (c Config) Repay(p *Player, ms *MarketState, amount float64) error {
	if !p.BankUnlocked {
		return ErrPrivilegeRequired
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount %.4f", ErrInvalidInput, amount)
	}
	if p.Loan <= 0 {
		return fmt.Errorf("%w: no loan outstanding", ErrNoPosition)
	}
	pay := math.Min(amount, math.Min(p.Wallet, p.Loan))
	if pay <= 0 {
		return fmt.Errorf("%w: wallet %.4f", ErrInsufficientFunds, p.Wallet)
	}
	p.Wallet = round4(p.Wallet - pay)
	p.Loan = round4(p.Loan - pay)
	ms.BankReserves = round4(ms.BankReserves + pay)
	if p.Loan == 0 {
		p.LoanOriginLogin = 0
	}
	return nil
}
