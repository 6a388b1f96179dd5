package fec_test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observe-l/polarsim/fec"
)

func countFrozen(mask []bool) int {
	c := 0
	for _, f := range mask {
		if f {
			c++
		}
	}
	return c
}

func TestGeneratorFrozenCount(t *testing.T) {
	noise := map[string]float64{"GA": 0.8, "BHATTACHARYYA": 0.8, "BEC": 0.4, "PW": 0}
	for method, sigma := range noise {
		for _, n := range []int{1, 2, 8, 64, 1024} {
			for _, k := range []int{1, n / 4, n / 2, n - 1, n} {
				if k <= 0 {
					continue
				}
				g, err := fec.NewGenerator(method, n, k, fec.WithNoise(sigma))
				require.NoError(t, err, "%s N=%d K=%d", method, n, k)
				mask, err := g.Generate()
				require.NoError(t, err)
				require.Len(t, mask, n)
				assert.Equal(t, n-k, countFrozen(mask), "%s N=%d K=%d", method, n, k)
				if k < n {
					assert.True(t, mask[0], "%s N=%d K=%d: channel 0 must be frozen", method, n, k)
				}
				require.Len(t, g.Order(), n)
			}
		}
	}
}

func TestGeneratorIdempotent(t *testing.T) {
	for _, method := range []string{"GA", "BHATTACHARYYA", "PW"} {
		g, err := fec.NewGenerator(method, 256, 128, fec.WithNoise(0.9))
		require.NoError(t, err)
		a, err := g.Generate()
		require.NoError(t, err)
		b, err := g.Generate()
		require.NoError(t, err)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("%s: masks differ (-first +second):\n%s", method, diff)
		}
	}
}

func TestGeneratorFollowsNoise(t *testing.T) {
	g, err := fec.NewGenerator("GA", 1024, 512)
	require.NoError(t, err)
	_, err = g.Generate()
	require.ErrorIs(t, err, fec.ErrConfiguration)

	g.SetNoise(0.5)
	low, err := g.Generate()
	require.NoError(t, err)
	g.SetNoise(1.5)
	high, err := g.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, low, high)

	g.SetNoise(0.5)
	again, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, low, again)
}

func TestGeneratorPolarizationWeightN8(t *testing.T) {
	g, err := fec.NewGenerator("pw", 8, 4)
	require.NoError(t, err)
	mask, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, maskFromFrozen(8, 0, 1, 2, 4), mask)
	assert.Equal(t, []int{7, 6, 5, 3, 4, 2, 1, 0}, g.Order())
}

func TestGeneratorBECMatchesKnownOrder(t *testing.T) {
	// eps = 0.5, N = 8: Z = [.996 .879 .809 .316 .684 .191 .121 .004]
	g, err := fec.NewGenerator("BEC", 8, 4, fec.WithNoise(0.5))
	require.NoError(t, err)
	mask, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, maskFromFrozen(8, 0, 1, 2, 4), mask)
}

func TestGeneratorErrors(t *testing.T) {
	_, err := fec.NewGenerator("GA", 12, 4)
	assert.ErrorIs(t, err, fec.ErrConfiguration)
	_, err = fec.NewGenerator("GA", 16, 0)
	assert.ErrorIs(t, err, fec.ErrConfiguration)
	_, err = fec.NewGenerator("GA", 16, 17)
	assert.ErrorIs(t, err, fec.ErrConfiguration)
	_, err = fec.NewGenerator("5G-ish", 16, 8)
	assert.ErrorIs(t, err, fec.ErrAllocation)
	_, err = fec.NewGenerator("FILE", 16, 8)
	assert.ErrorIs(t, err, fec.ErrConfiguration)

	g, err := fec.NewGenerator("BEC", 16, 8, fec.WithNoise(1.5))
	require.NoError(t, err)
	_, err = g.Generate()
	assert.ErrorIs(t, err, fec.ErrConfiguration)
}

func TestParseMethod(t *testing.T) {
	m, err := fec.ParseMethod(" ga ")
	require.NoError(t, err)
	assert.Equal(t, fec.MethodGA, m)
	assert.True(t, m.ChannelDependent())
	assert.False(t, fec.MethodPW.ChannelDependent())
	assert.False(t, fec.MethodFile.ChannelDependent())
}

func TestReliability(t *testing.T) {
	rel, err := fec.Reliability(fec.MethodPW, 8, 0)
	require.NoError(t, err)
	assert.Zero(t, rel[0])
	assert.InDelta(t, 1+math.Pow(2, 0.25)+math.Sqrt2, rel[7], 1e-12)

	rel, err = fec.Reliability(fec.MethodBEC, 8, 0.5)
	require.NoError(t, err)
	// ln((1-Z)/Z), Z as in TestGeneratorBECMatchesKnownOrder.
	assert.InDelta(t, math.Log(0.684/0.316), rel[3], 1e-2)
	assert.InDelta(t, -rel[3], rel[4], 1e-12)
	assert.Greater(t, rel[7], rel[6])
	assert.Greater(t, rel[3], rel[4])

	_, err = fec.Reliability(fec.MethodGA, 8, 0)
	assert.ErrorIs(t, err, fec.ErrConfiguration)
	_, err = fec.Reliability(fec.MethodFile, 8, 0)
	assert.ErrorIs(t, err, fec.ErrAllocation)
	_, err = fec.Reliability(fec.MethodPW, 6, 0)
	assert.ErrorIs(t, err, fec.ErrConfiguration)
}

// A channel whose index has more bits set is an upgrade of the one with fewer,
// including far into the saturated region where Z rounds to 1.
func TestReliabilityRespectsBitOrder(t *testing.T) {
	const n = 1024
	for _, tc := range []struct {
		method fec.Method
		noise  float64
	}{
		{fec.MethodGA, 0.5}, {fec.MethodGA, 0.8}, {fec.MethodGA, 1.5},
		{fec.MethodBhattacharyya, 0.5}, {fec.MethodBhattacharyya, 0.8}, {fec.MethodBhattacharyya, 1.5},
		{fec.MethodBEC, 0.2}, {fec.MethodBEC, 0.5}, {fec.MethodBEC, 0.8},
	} {
		rel, err := fec.Reliability(tc.method, n, tc.noise)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			require.False(t, math.IsNaN(rel[i]) || math.IsInf(rel[i], 0), "%s %g: channel %d scored %g", tc.method, tc.noise, i, rel[i])
			for b := 1; b < n; b <<= 1 {
				j := i | b
				if j == i {
					continue
				}
				tol := 1e-9 * math.Max(1, math.Abs(rel[i]))
				require.GreaterOrEqual(t, rel[j], rel[i]-tol, "%s %g: channel %d below %d", tc.method, tc.noise, j, i)
			}
		}

		g, err := fec.NewGenerator(string(tc.method), n, n-1, fec.WithNoise(tc.noise))
		require.NoError(t, err)
		mask, err := g.Generate()
		require.NoError(t, err)
		assert.Equal(t, maskFromFrozen(n, 0), mask, "%s %g", tc.method, tc.noise)
		assert.Equal(t, 0, g.Order()[n-1])
	}
}
