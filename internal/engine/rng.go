package engine

// Rand is a 32-bit linear congruential generator. Every source of
// randomness in the engine draws from one of these, so a tick replayed
// with the same seed produces bit-identical output on any platform.
type Rand struct {
	s uint32
}

// NewRand returns a generator seeded with the low 32 bits of seed.
func NewRand(seed int64) *Rand {
	return &Rand{s: uint32(seed)}
}

// Float64 advances the generator and returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	r.s = r.s*1664525 + 1013904223
	return float64(r.s) / (1 << 32)
}

// TickSeed derives the deterministic seed for a given day and tick index.
// Two processes computing the same (day, tick) pair agree on the seed
// without coordination.
func TickSeed(day, tick int) int64 {
	return int64(day)*100000 + int64(tick)
}

// SplitSeed recovers (day, tick) from a seed produced by TickSeed.
func SplitSeed(seed int64) (day, tick int) {
	return int(seed / 100000), int(seed % 100000)
}
