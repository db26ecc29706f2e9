package engine

import "fmt"

// TradeAction identifies the four ledger operations.
type TradeAction string

const (
	ActionBuy   TradeAction = "buy"
	ActionSell  TradeAction = "sell"
	ActionShort TradeAction = "short"
	ActionCover TradeAction = "cover"
)

// TradeReceipt summarizes one executed trade. Net is the signed wallet
// delta the trade applied.
type TradeReceipt struct {
	Commodity   string      `json:"commodity"`
	Action      TradeAction `json:"action"`
	Quantity    int64       `json:"quantity"`
	Price       float64     `json:"price"`
	Fee         float64     `json:"fee"`
	Net         float64     `json:"net"`
	WalletAfter float64     `json:"walletAfter"`
	Day         int         `json:"day"`
}

// Every ledger op follows the same shape: validate everything against
// the current state, then apply the whole delta. A failed trade never
// leaves a partial mutation behind.

// Buy fills qty shares at the ask out of the bank's inventory.
func (c Config) Buy(p *Player, ms *MarketState, id string, qty int64) (*TradeReceipt, error) {
	g, cs, err := c.resolve(ms, id, qty)
	if err != nil {
		return nil, err
	}

	q := Spread(cs.Price, g.Vol, cs.BankHeld, cs.TotalShares)
	cost := round4(q.Ask * float64(qty))
	fee := round4(cost * c.TradeFee)

	if qty > cs.BankHeld {
		return nil, fmt.Errorf("%w: bank holds %d %s", ErrInsufficientInventory, cs.BankHeld, id)
	}
	if p.Wallet < cost+fee {
		return nil, fmt.Errorf("%w: need %.4f, have %.4f", ErrInsufficientFunds, cost+fee, p.Wallet)
	}

	bankBefore := cs.BankHeld
	p.Wallet = round4(p.Wallet - cost - fee)

	h := p.Holdings[id]
	if h == nil {
		h = &Holding{}
		p.Holdings[id] = h
	}
	// Basis blends on pre-fee cost so a flat-price round trip loses
	// exactly the two fees.
	totalCost := h.CostBasis*float64(h.Quantity) + cost
	h.Quantity += qty
	h.CostBasis = round6(totalCost / float64(h.Quantity))

	cs.BankHeld -= qty
	cs.PlayerHeld += qty
	cs.VolumeToday += qty
	c.applyImpact(cs, qty, bankBefore, true)
	ms.BankReserves = round4(ms.BankReserves + fee)

	return &TradeReceipt{
		Commodity: id, Action: ActionBuy, Quantity: qty,
		Price: q.Ask, Fee: fee, Net: -(cost + fee),
		WalletAfter: p.Wallet, Day: ms.CurrentDay,
	}, nil
}

// Sell fills qty shares at the bid back into the bank's inventory. The
// payout comes out of bank reserves, so a drained bank refuses the
// trade rather than going negative.
func (c Config) Sell(p *Player, ms *MarketState, id string, qty int64) (*TradeReceipt, error) {
	g, cs, err := c.resolve(ms, id, qty)
	if err != nil {
		return nil, err
	}

	h := p.Holdings[id]
	if h == nil || h.Quantity < qty {
		held := int64(0)
		if h != nil {
			held = h.Quantity
		}
		return nil, fmt.Errorf("%w: hold %d %s", ErrInsufficientHoldings, held, id)
	}

	q := Spread(cs.Price, g.Vol, cs.BankHeld, cs.TotalShares)
	revenue := round4(q.Bid * float64(qty))
	fee := round4(revenue * c.TradeFee)

	if revenue > ms.BankReserves {
		return nil, fmt.Errorf("%w: reserves %.4f short of %.4f", ErrInsufficientLiquidity, ms.BankReserves, revenue)
	}

	bankBefore := cs.BankHeld
	p.Wallet = round4(p.Wallet + revenue - fee)
	h.Quantity -= qty
	if h.Quantity == 0 {
		delete(p.Holdings, id)
	}

	cs.PlayerHeld -= qty
	cs.BankHeld += qty
	cs.VolumeToday += qty
	c.applyImpact(cs, qty, bankBefore, false)
	ms.BankReserves = round4(ms.BankReserves - (revenue - fee))

	return &TradeReceipt{
		Commodity: id, Action: ActionSell, Quantity: qty,
		Price: q.Bid, Fee: fee, Net: revenue - fee,
		WalletAfter: p.Wallet, Day: ms.CurrentDay,
	}, nil
}

// ShortSell borrows qty shares from the bank and sells them at the bid,
// escrowing collateral out of the wallet. Requires bank privilege.
func (c Config) ShortSell(p *Player, ms *MarketState, id string, qty int64) (*TradeReceipt, error) {
	g, cs, err := c.resolve(ms, id, qty)
	if err != nil {
		return nil, err
	}
	if !p.BankUnlocked {
		return nil, ErrPrivilegeRequired
	}
	if qty > cs.BankHeld {
		return nil, fmt.Errorf("%w: bank holds %d %s", ErrInsufficientInventory, cs.BankHeld, id)
	}

	q := Spread(cs.Price, g.Vol, cs.BankHeld, cs.TotalShares)
	proceeds := round4(q.Bid * float64(qty))
	fee := round4(proceeds * c.TradeFee)
	collateral := round4(proceeds * c.ShortCollateral)

	if p.Wallet < collateral {
		return nil, fmt.Errorf("%w: collateral %.4f exceeds wallet %.4f", ErrInsufficientFunds, collateral, p.Wallet)
	}

	bankBefore := cs.BankHeld
	p.Wallet = round4(p.Wallet - collateral + proceeds - fee)

	s := p.Shorts[id]
	if s == nil {
		s = &ShortPosition{}
		p.Shorts[id] = s
	}
	totalEntry := s.EntryPrice*float64(s.Quantity) + q.Bid*float64(qty)
	s.Quantity += qty
	s.EntryPrice = round6(totalEntry / float64(s.Quantity))
	s.Collateral = round4(s.Collateral + collateral)

	cs.BankHeld -= qty
	cs.PlayerHeld += qty
	cs.VolumeToday += qty
	c.applyImpact(cs, qty, bankBefore, false)
	ms.BankReserves = round4(ms.BankReserves + fee)

	return &TradeReceipt{
		Commodity: id, Action: ActionShort, Quantity: qty,
		Price: q.Bid, Fee: fee, Net: proceeds - fee - collateral,
		WalletAfter: p.Wallet, Day: ms.CurrentDay,
	}, nil
}

// Cover buys back qty shares of an open short at the ask and returns
// the pro-rata slice of escrowed collateral. Covering more than the
// open position is rejected, not clamped.
func (c Config) Cover(p *Player, ms *MarketState, id string, qty int64) (*TradeReceipt, error) {
	g, cs, err := c.resolve(ms, id, qty)
	if err != nil {
		return nil, err
	}

	s := p.Shorts[id]
	if s == nil || s.Quantity < qty {
		return nil, fmt.Errorf("%w: no open short of %d %s", ErrNoPosition, qty, id)
	}

	q := Spread(cs.Price, g.Vol, cs.BankHeld, cs.TotalShares)
	cost := round4(q.Ask * float64(qty))
	fee := round4(cost * c.TradeFee)
	collateralReturn := round4(s.Collateral * float64(qty) / float64(s.Quantity))
	net := round4(collateralReturn - cost - fee)

	if p.Wallet+net < 0 {
		return nil, fmt.Errorf("%w: covering needs %.4f beyond wallet", ErrInsufficientFunds, -(p.Wallet + net))
	}

	bankBefore := cs.BankHeld
	p.Wallet = round4(p.Wallet + net)

	s.Quantity -= qty
	s.Collateral = round4(s.Collateral - collateralReturn)
	if s.Quantity == 0 {
		delete(p.Shorts, id)
	}

	cs.PlayerHeld -= qty
	cs.BankHeld += qty
	cs.VolumeToday += qty
	c.applyImpact(cs, qty, bankBefore, true)
	ms.BankReserves = round4(ms.BankReserves + fee)

	return &TradeReceipt{
		Commodity: id, Action: ActionCover, Quantity: qty,
		Price: q.Ask, Fee: fee, Net: net,
		WalletAfter: p.Wallet, Day: ms.CurrentDay,
	}, nil
}

func (c Config) resolve(ms *MarketState, id string, qty int64) (Commodity, *CommodityState, error) {
	if qty <= 0 {
		return Commodity{}, nil, fmt.Errorf("%w: quantity %d", ErrInvalidInput, qty)
	}
	g, ok := c.Commodity(id)
	if !ok {
		return Commodity{}, nil, fmt.Errorf("%w: %q", ErrUnknownCommodity, id)
	}
	cs, ok := ms.Commodities[id]
	if !ok {
		return Commodity{}, nil, fmt.Errorf("%w: %q", ErrUnknownCommodity, id)
	}
	return g, cs, nil
}
