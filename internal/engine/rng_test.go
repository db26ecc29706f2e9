package engine

import "testing"

func TestRandDeterminism(t *testing.T) {
	a := NewRand(42)
	b := NewRand(42)
	for i := 0; i < 1000; i++ {
		va, vb := a.Float64(), b.Float64()
		if va != vb {
			t.Fatalf("draw %d: %v != %v", i, va, vb)
		}
	}
}

func TestRandRange(t *testing.T) {
	for _, seed := range []int64{0, 1, 42, 1 << 31, -7} {
		r := NewRand(seed)
		for i := 0; i < 10000; i++ {
			v := r.Float64()
			if v < 0 || v >= 1 {
				t.Fatalf("seed %d draw %d: %v out of [0,1)", seed, i, v)
			}
		}
	}
}

func TestRandSeedsDiverge(t *testing.T) {
	a := NewRand(1)
	b := NewRand(2)
	same := 0
	for i := 0; i < 100; i++ {
		if a.Float64() == b.Float64() {
			same++
		}
	}
	if same == 100 {
		t.Fatal("different seeds produced identical sequences")
	}
}

func TestTickSeedRoundTrip(t *testing.T) {
	tests := []struct {
		day, tick int
	}{
		{0, 0},
		{0, 5759},
		{1, 0},
		{365, 1234},
		{10000, 99999},
	}
	for _, tt := range tests {
		seed := TickSeed(tt.day, tt.tick)
		day, tick := SplitSeed(seed)
		if day != tt.day || tick != tt.tick {
			t.Fatalf("TickSeed(%d,%d)=%d split to (%d,%d)", tt.day, tt.tick, seed, day, tick)
		}
	}
}

func TestTickSeedsUnique(t *testing.T) {
	seen := make(map[int64]bool)
	for day := 0; day < 10; day++ {
		for tick := 0; tick < 100; tick++ {
			s := TickSeed(day, tick)
			if seen[s] {
				t.Fatalf("duplicate seed %d at day=%d tick=%d", s, day, tick)
			}
			seen[s] = true
		}
	}
}
