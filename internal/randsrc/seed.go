package randsrc

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
)

// SeedSource is a deterministic-from-seed draw source backed by
// math/rand/v2. Identifier minting consults an atomic counter owned by
// this source, so names stay unique within a run even when two scopes
// draw identifiers concurrently.
type SeedSource struct {
	seed    uint64
	rng     *rand.Rand
	counter *atomic.Uint64
}

// NewSeedSource returns a SeedSource deterministic from seed.
func NewSeedSource(seed uint64) *SeedSource {
	return &SeedSource{
		seed:    seed,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		counter: &atomic.Uint64{},
	}
}

// Seed returns the seed this source was constructed from, so a run can be
// logged and replayed.
func (s *SeedSource) Seed() uint64 { return s.seed }

func (s *SeedSource) D6() int   { return s.Dx(6) }
func (s *SeedSource) D9() int   { return s.Dx(9) }
func (s *SeedSource) D12() int  { return s.Dx(12) }
func (s *SeedSource) D20() int  { return s.Dx(20) }
func (s *SeedSource) D42() int  { return s.Dx(42) }
func (s *SeedSource) D100() int { return s.Dx(100) }

// Dx returns a value in [1, n], inclusive.
func (s *SeedSource) Dx(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.rng.IntN(n)) + 1
}

// Pick returns the index of a weighted choice among weights, drawn from a
// single roll over the cumulative weight.
func (s *SeedSource) Pick(weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	roll := s.rng.IntN(total)
	acc := 0
	for i, w := range weights {
		acc += w
		if roll < acc {
			return i
		}
	}
	return len(weights) - 1
}

// Ident returns an identifier unique within this source, e.g.
// Ident("ref") -> "ref_7".
func (s *SeedSource) Ident(prefix string) string {
	n := s.counter.Add(1)
	return fmt.Sprintf("%s_%d", prefix, n)
}
