// Package channel holds the modem and channel models of the BFER chain.
package channel

import (
	"math"
	"math/rand"

	"github.com/observe-l/polarsim/fec"
)

// Modulate maps bits to BPSK symbols: 0 -> +1, 1 -> -1.
func Modulate[T fec.LLR](x []uint8, out []T) {
	for i, b := range x {
		out[i] = T(1 - 2*int(b&1))
	}
}

// AWGN adds zero-mean Gaussian noise of deviation sigma.
type AWGN[T fec.LLR] struct {
	sigma float64
	rng   *rand.Rand
}

func NewAWGN[T fec.LLR](sigma float64, rng *rand.Rand) *AWGN[T] {
	return &AWGN[T]{sigma: sigma, rng: rng}
}

func (a *AWGN[T]) Sigma() float64 { return a.sigma }

func (a *AWGN[T]) Add(y []T) {
	for i := range y {
		y[i] += T(a.sigma * a.rng.NormFloat64())
	}
}

// Demodulate turns received BPSK samples into channel LLRs, 2y/sigma^2.
func Demodulate[T fec.LLR](y []T, sigma float64) {
	scale := T(2 / (sigma * sigma))
	for i := range y {
		y[i] *= scale
	}
}

// SigmaFromEbN0 returns the noise deviation of unit-energy BPSK at the given
// Eb/N0 in dB for a code of rate r.
func SigmaFromEbN0(ebn0 float64, r float64) float64 {
	esn0 := ebn0 + 10*math.Log10(r)
	return math.Sqrt(1 / (2 * math.Pow(10, esn0/10)))
}

// EbN0FromSigma inverts SigmaFromEbN0.
func EbN0FromSigma(sigma float64, r float64) float64 {
	esn0 := 10 * math.Log10(1/(2*sigma*sigma))
	return esn0 - 10*math.Log10(r)
}
