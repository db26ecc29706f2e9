package engine

import "math"

// Quote is the two-sided price for a commodity. Bid < mid < Ask always.
type Quote struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
	Mid float64 `json:"mid"`
}

// Spread derives the bid/ask around a mid price. The half-spread widens
// with volatility and with how little inventory the bank holds: a
// drained bank quotes up to 2x the spread of a full one.
func Spread(price, vol float64, bankHeld, totalShares int64) Quote {
	ratio := 0.0
	if totalShares > 0 {
		ratio = float64(bankHeld) / float64(totalShares)
	}
	factor := 0.5 + (1-ratio)*1.5
	half := price * (0.01 + vol*0.04) * factor

	bid := round6(price - half)
	ask := round6(price + half)
	if bid <= 0 {
		bid = round6(price * 0.5)
	}
	if bid <= 0 {
		bid = price / 2
	}
	if ask <= price {
		ask = round6(price + price*0.0001)
	}
	return Quote{Bid: bid, Ask: ask, Mid: price}
}

// Impact returns the signed price move caused by a fill of qty shares.
// Buys push against the bank's remaining inventory, so the thinner the
// bank's book the harder a buy moves the price; sells push against the
// whole float. Scarcity doubles buy impact as the bank empties.
func Impact(qty, bankHeldBefore, totalShares int64, price float64, isBuy bool) float64 {
	if qty <= 0 || totalShares <= 0 {
		return 0
	}
	var pool float64
	if isBuy {
		pool = float64(bankHeldBefore)
		if pool < 1 {
			pool = 1
		}
	} else {
		pool = float64(totalShares)
	}
	proportion := float64(qty) / pool

	scarcity := 1.0
	if isBuy {
		s := 2 - 2*float64(bankHeldBefore)/float64(totalShares)
		if s > scarcity {
			scarcity = s
		}
	}

	delta := proportion * scarcity * price * 1.5
	if !isBuy {
		delta = -delta
	}
	return delta
}

// applyImpact moves a commodity's price by the impact of a fill,
// clamping and rounding to stored precision.
func (c Config) applyImpact(cs *CommodityState, qty, bankHeldBefore int64, isBuy bool) {
	cs.Price = c.clampPrice(cs.Price + Impact(qty, bankHeldBefore, cs.TotalShares, cs.Price, isBuy))
}

func (c Config) clampPrice(p float64) float64 {
	if math.IsNaN(p) || p < c.PriceFloor {
		p = c.PriceFloor
	}
	if p > c.PriceCeil {
		p = c.PriceCeil
	}
	return round6(p)
}

// noiseMultiplier scales random walk amplitude down as the population
// grows: a handful of players gets lively charts, a crowded market gets
// its volatility from the players themselves.
func noiseMultiplier(playerCount int) float64 {
	if playerCount < 1 {
		playerCount = 1
	}
	m := 8 - math.Log10(float64(playerCount))*3.5
	if m < 1 {
		m = 1
	}
	return m
}

// eventScale damps event effects in small economies so one headline
// cannot wipe out a three-player market.
func eventScale(playerCount int) float64 {
	if playerCount < 1 {
		playerCount = 1
	}
	s := 0.4 + math.Log10(float64(playerCount))/3.5
	if s > 1 {
		s = 1
	}
	return s
}

// Tick advances the market by one simulation step. It is a pure
// transform: the input state is cloned, all randomness comes from the
// seed, and running the same (state, playerCount, seed) twice yields
// bit-identical output. Returns the new state and the event that fired,
// if any.
func (c Config) Tick(ms *MarketState, playerCount int, seed int64) (*MarketState, *FiredEvent) {
	out := ms.Clone()
	rng := NewRand(seed)
	day, tick := SplitSeed(seed)

	noiseMult := noiseMultiplier(playerCount)
	inflation := c.InflationFactor(out.MoneySupply, out.TotalClaims)

	for _, g := range c.Commodities {
		cs, ok := out.Commodities[g.ID]
		if !ok {
			continue
		}

		fairValue := g.Base * inflation
		gravity := c.GravityNormal
		if fairValue > 0 {
			ratio := cs.Price / fairValue
			if ratio > c.ExtremeBandHigh || ratio < c.ExtremeBandLow {
				gravity = c.GravityExtreme
			}
		}
		delta := (fairValue - cs.Price) * gravity

		delta += (rng.Float64() - 0.5) * cs.Price * c.NoiseBase * noiseMult * (1 + g.Vol)

		if rng.Float64() < c.MicroTrendChance {
			dir := 1.0
			if rng.Float64() < 0.5 {
				dir = -1
			}
			delta += dir * cs.Price * c.MicroTrendSize
		}

		cs.Price = c.clampPrice(cs.Price + delta)
		appendHistory(cs, day, tick)

		c.maybeOffer(out, g.ID, cs, day, tick)
	}

	var fired *FiredEvent
	out.TicksSinceEvnt++
	if len(c.Events) > 0 && out.TicksSinceEvnt >= c.EventCooldownTicks {
		if rng.Float64() < c.EventChance {
			ev := c.Events[int(rng.Float64()*float64(len(c.Events)))]
			scale := eventScale(playerCount)
			for _, id := range ev.Targets {
				if cs, ok := out.Commodities[id]; ok {
					cs.Price = c.clampPrice(cs.Price * (1 + ev.Effect*scale))
				}
			}
			fired = &FiredEvent{
				Name:    ev.Name,
				Desc:    ev.Desc,
				Targets: ev.Targets,
				Effect:  ev.Effect,
				Scale:   scale,
				Day:     day,
				Tick:    tick,
			}
			out.TicksSinceEvnt = 0
		}
	}

	return out, fired
}

// maybeOffer mints a secondary share offering when the bank's inventory
// has been nearly bought out, keeping the market tradable. Issuance is
// capped at a multiple of the genesis float and each offering knocks the
// price down to make the new supply clear.
func (c Config) maybeOffer(ms *MarketState, id string, cs *CommodityState, day, tick int) {
	if cs.TotalShares <= 0 {
		return
	}
	if float64(cs.BankHeld) >= float64(cs.TotalShares)*c.OfferingThreshold {
		return
	}
	genesis := ms.GenesisShares[id]
	if genesis > 0 && float64(cs.TotalShares) >= float64(genesis)*c.IssuanceCapMult {
		return
	}

	minted := int64(float64(cs.TotalShares) * c.OfferingAmount)
	if minted <= 0 {
		return
	}
	cs.BankHeld += minted
	cs.TotalShares += minted
	cs.Price = c.clampPrice(cs.Price * c.OfferingDiscount)

	ms.Offerings = append(ms.Offerings, OfferingRecord{
		Commodity: id, Minted: minted, Day: day, Tick: tick,
	})
	if len(ms.Offerings) > 100 {
		ms.Offerings = ms.Offerings[len(ms.Offerings)-100:]
	}
}
