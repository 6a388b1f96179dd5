package channel_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observe-l/polarsim/internal/channel"
)

func TestBernoulli(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.False(t, channel.NewBernoulli(0, rng).Drop())
	assert.True(t, channel.NewBernoulli(1, rng).Drop())

	b := channel.NewBernoulli(0.25, rng)
	drops := 0
	for i := 0; i < 20000; i++ {
		if b.Drop() {
			drops++
		}
	}
	assert.InDelta(t, 0.25, float64(drops)/20000, 0.02)
}

func TestModulateDemodulate(t *testing.T) {
	x := []uint8{0, 1, 1, 0}
	y := make([]float64, 4)
	channel.Modulate(x, y)
	assert.Equal(t, []float64{1, -1, -1, 1}, y)
	channel.Demodulate(y, 0.5)
	assert.Equal(t, []float64{8, -8, -8, 8}, y)
}

func TestAWGNStatistics(t *testing.T) {
	a := channel.NewAWGN[float64](0.7, rand.New(rand.NewSource(2)))
	y := make([]float64, 50000)
	a.Add(y)
	var sum, sq float64
	for _, v := range y {
		sum += v
		sq += v * v
	}
	mean := sum / float64(len(y))
	assert.InDelta(t, 0, mean, 0.02)
	assert.InDelta(t, 0.7, math.Sqrt(sq/float64(len(y))-mean*mean), 0.02)
}

func TestSigmaEbN0RoundTrip(t *testing.T) {
	// Rate 1/2 at 0 dB is Es/N0 = -3.01 dB, sigma = 1.
	assert.InDelta(t, 1.0, channel.SigmaFromEbN0(0, 0.5), 1e-3)
	for _, ebn0 := range []float64{-1, 0, 2.5, 6} {
		s := channel.SigmaFromEbN0(ebn0, 0.75)
		assert.InDelta(t, ebn0, channel.EbN0FromSigma(s, 0.75), 1e-9)
	}
}

func TestErasure(t *testing.T) {
	e := channel.NewErasure[float32](0.5, rand.New(rand.NewSource(3)))
	y := make([]float32, 1000)
	channel.Modulate(make([]uint8, 1000), y)
	erased := e.Transmit(y)
	require.Greater(t, erased, 400)
	require.Less(t, erased, 600)
	zeros := 0
	for _, v := range y {
		switch v {
		case 0:
			zeros++
		case channel.ClearLLR:
		default:
			t.Fatalf("unexpected soft value %v", v)
		}
	}
	assert.Equal(t, erased, zeros)
}
