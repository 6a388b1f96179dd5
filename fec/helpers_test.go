package fec_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/observe-l/polarsim/fec"
)

func pwCode(t testing.TB, n, k int) *fec.Code {
	t.Helper()
	g, err := fec.NewGenerator("PW", n, k)
	require.NoError(t, err)
	frozen, err := g.Generate()
	require.NoError(t, err)
	code, err := fec.NewCode(frozen, g.Order())
	require.NoError(t, err)
	return code
}

func maskFromFrozen(n int, frozen ...int) []bool {
	m := make([]bool, n)
	for _, i := range frozen {
		m[i] = true
	}
	return m
}

func randomBits(rng *rand.Rand, n int) []uint8 {
	b := make([]uint8, n)
	for i := range b {
		b[i] = uint8(rng.Intn(2))
	}
	return b
}

// randomMask freezes each position with probability 1/2 but keeps at least
// one information bit.
func randomMask(rng *rand.Rand, n int) []bool {
	m := make([]bool, n)
	info := 0
	for i := range m {
		m[i] = rng.Intn(2) == 0
		if !m[i] {
			info++
		}
	}
	if info == 0 {
		m[rng.Intn(n)] = false
	}
	return m
}

// noiseless maps bit 0 to +a and bit 1 to -a.
func noiseless[T fec.LLR](x []uint8, a T) []T {
	y := make([]T, len(x))
	for i, b := range x {
		if b == 1 {
			y[i] = -a
		} else {
			y[i] = a
		}
	}
	return y
}

// randomLLRs mixes signed zeros, repeated magnitudes and Gaussian values so
// that every tie-breaking path gets exercised.
func randomLLRs[T fec.LLR](rng *rand.Rand, n int) []T {
	y := make([]T, n)
	for i := range y {
		switch r := rng.Float64(); {
		case r < 0.1:
			y[i] = 0
		case r < 0.15:
			y[i] = T(math.Copysign(0, -1))
		case r < 0.4:
			y[i] = T([]float64{-2, -1, 1, 2}[rng.Intn(4)])
		default:
			y[i] = T(rng.NormFloat64() * 2)
		}
	}
	return y
}

// awgnLLRs transmits x over BPSK with noise sigma and returns channel LLRs.
func awgnLLRs[T fec.LLR](rng *rand.Rand, x []uint8, sigma float64) []T {
	y := make([]T, len(x))
	for i, b := range x {
		s := 1.0
		if b == 1 {
			s = -1
		}
		y[i] = T(2 * (s + sigma*rng.NormFloat64()) / (sigma * sigma))
	}
	return y
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
