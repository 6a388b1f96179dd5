package channel

import (
	"math/rand"

	"github.com/observe-l/polarsim/fec"
)

// Bernoulli implements a simple u<p drop decision.
type Bernoulli struct {
	p   float64
	rng *rand.Rand
}

func NewBernoulli(p float64, rng *rand.Rand) *Bernoulli { return &Bernoulli{p: p, rng: rng} }

func (b *Bernoulli) Drop() bool {
	if b.p <= 0 {
		return false
	}
	if b.p >= 1 {
		return true
	}
	return b.rng.Float64() < b.p
}

// Erasure is the binary erasure channel on demodulated soft values: an erased
// position carries +0, a delivered one the sign of the symbol at ClearLLR.
type Erasure[T fec.LLR] struct {
	drop *Bernoulli
}

// ClearLLR is the magnitude of an unerased position.
const ClearLLR = 1e3

func NewErasure[T fec.LLR](eps float64, rng *rand.Rand) *Erasure[T] {
	return &Erasure[T]{drop: NewBernoulli(eps, rng)}
}

// Transmit maps the BPSK symbols in y to erasure-channel LLRs in place and
// returns the number of erased positions.
func (e *Erasure[T]) Transmit(y []T) int {
	erased := 0
	for i, s := range y {
		if e.drop.Drop() {
			y[i] = 0
			erased++
			continue
		}
		if s < 0 {
			y[i] = -ClearLLR
		} else {
			y[i] = ClearLLR
		}
	}
	return erased
}
