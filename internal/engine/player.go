package engine

// PlayerSchemaVersion is bumped with the persisted player shape.
const PlayerSchemaVersion = 1

// netWorthHistoryCap bounds the per-player net worth series.
const netWorthHistoryCap = 200

// Holding is a long position. CostBasis is the volume-weighted average
// acquisition price, fees excluded.
type Holding struct {
	Quantity  int64   `json:"quantity"`
	CostBasis float64 `json:"costBasis"`
}

// ShortPosition is an open short. EntryPrice is blended across adds;
// Collateral is escrowed out of the wallet at open.
type ShortPosition struct {
	Quantity   int64   `json:"quantity"`
	EntryPrice float64 `json:"entryPrice"`
	Collateral float64 `json:"collateral"`
}

// NetWorthPoint is one settlement-day sample of a player's net worth.
type NetWorthPoint struct {
	Day   int     `json:"day"`
	Value float64 `json:"value"`
}

// Player is the full per-player economy record.
type Player struct {
	SchemaVersion int    `json:"schemaVersion"`
	Version       int64  `json:"version"`
	ID            string `json:"id"`
	Name          string `json:"name"`

	Wallet  float64 `json:"wallet"`
	Savings float64 `json:"savings"`
	Loan    float64 `json:"loan"`
	// LoanOriginLogin is the LoginCount at which the outstanding loan was
	// first drawn; zero when no loan is outstanding.
	LoanOriginLogin int `json:"loanOriginLogin,omitempty"`

	Holdings map[string]*Holding       `json:"holdings"`
	Shorts   map[string]*ShortPosition `json:"shorts"`

	Streak       int  `json:"streak"`
	LastClaimDay int  `json:"lastClaimDay"`
	LoginCount   int  `json:"loginCount"`
	BankUnlocked bool `json:"bankUnlocked"`

	TotalClaimed    float64         `json:"totalClaimed"`
	NetWorthHistory []NetWorthPoint `json:"netWorthHistory,omitempty"`
}

// NewPlayer returns a fresh zero-balance player record.
func NewPlayer(id, name string) *Player {
	return &Player{
		SchemaVersion: PlayerSchemaVersion,
		ID:            id,
		Name:          name,
		Holdings:      make(map[string]*Holding),
		Shorts:        make(map[string]*ShortPosition),
		LastClaimDay:  -1,
	}
}

// Clone deep-copies the player record.
func (p *Player) Clone() *Player {
	out := *p
	out.Holdings = make(map[string]*Holding, len(p.Holdings))
	for id, h := range p.Holdings {
		cp := *h
		out.Holdings[id] = &cp
	}
	out.Shorts = make(map[string]*ShortPosition, len(p.Shorts))
	for id, s := range p.Shorts {
		cp := *s
		out.Shorts[id] = &cp
	}
	out.NetWorthHistory = append([]NetWorthPoint(nil), p.NetWorthHistory...)
	return &out
}

// MigratePlayer normalizes a loaded record to the current schema: nil
// maps become empty, quantity-zero positions are dropped, and the
// history is re-bounded. Runs once at load.
func MigratePlayer(p *Player) *Player {
	if p.Holdings == nil {
		p.Holdings = make(map[string]*Holding)
	}
	if p.Shorts == nil {
		p.Shorts = make(map[string]*ShortPosition)
	}
	for id, h := range p.Holdings {
		if h == nil || h.Quantity <= 0 {
			delete(p.Holdings, id)
		}
	}
	for id, s := range p.Shorts {
		if s == nil || s.Quantity <= 0 {
			delete(p.Shorts, id)
		}
	}
	if len(p.NetWorthHistory) > netWorthHistoryCap {
		p.NetWorthHistory = p.NetWorthHistory[len(p.NetWorthHistory)-netWorthHistoryCap:]
	}
	if p.SchemaVersion < PlayerSchemaVersion && p.LastClaimDay == 0 && p.LoginCount == 0 {
		p.LastClaimDay = -1
	}
	p.SchemaVersion = PlayerSchemaVersion
	return p
}

// NetWorth marks every position to the current market price:
// wallet + savings - loan + longs at price + shorts at
// collateral + (entry-price)*qty.
func NetWorth(p *Player, ms *MarketState) float64 {
	nw := p.Wallet + p.Savings - p.Loan
	for id, h := range p.Holdings {
		cs, ok := ms.Commodities[id]
		if !ok {
			continue
		}
		nw += float64(h.Quantity) * cs.Price
	}
	for id, s := range p.Shorts {
		cs, ok := ms.Commodities[id]
		if !ok {
			continue
		}
		nw += s.Collateral + (s.EntryPrice-cs.Price)*float64(s.Quantity)
	}
	return round4(nw)
}

func (p *Player) appendNetWorth(day int, value float64) {
	p.NetWorthHistory = append(p.NetWorthHistory, NetWorthPoint{Day: day, Value: value})
	if len(p.NetWorthHistory) > netWorthHistoryCap {
		p.NetWorthHistory = p.NetWorthHistory[len(p.NetWorthHistory)-netWorthHistoryCap:]
	}
}
