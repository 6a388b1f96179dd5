package fec_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observe-l/polarsim/fec"
)

func TestSCDecodeN8K4(t *testing.T) {
	code, err := fec.NewCode(maskFromFrozen(8, 0, 1, 2, 4), nil)
	require.NoError(t, err)
	enc, err := fec.NewEncoder(code, false)
	require.NoError(t, err)
	x, err := enc.Encode([]uint8{1, 0, 1, 1})
	require.NoError(t, err)

	dec, err := fec.NewSCDecoder[float32](code, fec.MinSum)
	require.NoError(t, err)
	out, err := dec.Decode(noiseless[float32](x, 4))
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 0, 1, 1}, out.Message)
	assert.Equal(t, x, out.Codeword)
}

func TestSCDecodeNoiselessAllMessages(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8} {
		for k := 1; k <= n; k++ {
			code := pwCode(t, n, k)
			enc, err := fec.NewEncoder(code, false)
			require.NoError(t, err)
			for _, op := range []fec.Operator{fec.MinSum, fec.Exact} {
				dec, err := fec.NewSCDecoder[float64](code, op)
				require.NoError(t, err)
				for v := 0; v < 1<<k; v++ {
					msg := make([]uint8, k)
					for j := range msg {
						msg[j] = uint8(v>>j) & 1
					}
					x, err := enc.Encode(msg)
					require.NoError(t, err)
					out, err := dec.Decode(noiseless[float64](x, 20))
					require.NoError(t, err)
					require.Equal(t, msg, out.Message, "N=%d K=%d %s", n, k, op)
				}
			}
		}
	}
}

func TestSCDecodeNoiselessRandomMessages(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, n := range []int{64, 256, 1024} {
		for _, k := range []int{1, n / 3, n / 2, n - 1, n} {
			code := pwCode(t, n, k)
			for _, systematic := range []bool{false, true} {
				enc, err := fec.NewEncoder(code, systematic)
				require.NoError(t, err)
				dec, err := fec.NewSCDecoder[float32](code, fec.MinSum, fec.WithSystematic(systematic))
				require.NoError(t, err)
				for trial := 0; trial < 4; trial++ {
					msg := randomBits(rng, k)
					x, err := enc.Encode(msg)
					require.NoError(t, err)
					out, err := dec.Decode(noiseless[float32](x, 20))
					require.NoError(t, err)
					require.Equal(t, msg, out.Message)
				}
			}
		}
	}
}

func checkSpecializedMatchesGeneric[T fec.LLR](t *testing.T, op fec.Operator, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for trial := 0; trial < 400; trial++ {
		n := 1 << rng.Intn(8)
		var code *fec.Code
		var err error
		if trial%2 == 0 {
			code, err = fec.NewCode(randomMask(rng, n), nil)
			require.NoError(t, err)
		} else {
			code = pwCode(t, n, 1+rng.Intn(n))
		}
		fast, err := fec.NewSCDecoder[T](code, op)
		require.NoError(t, err)
		slow, err := fec.NewSCDecoder[T](code, op, fec.WithGeneric())
		require.NoError(t, err)
		for f := 0; f < 8; f++ {
			llr := randomLLRs[T](rng, n)
			a, err := fast.Decode(llr)
			require.NoError(t, err)
			b, err := slow.Decode(llr)
			require.NoError(t, err)
			if diff := cmp.Diff(b.Codeword, a.Codeword); diff != "" {
				t.Fatalf("trial %d N=%d frozen=%v llr=%v (-generic +specialized):\n%s", trial, n, code.Frozen(), llr, diff)
			}
		}
	}
}

func TestSCSpecializedMatchesGeneric(t *testing.T) {
	t.Run("minsum/float32", func(t *testing.T) { checkSpecializedMatchesGeneric[float32](t, fec.MinSum, 1) })
	t.Run("minsum/float64", func(t *testing.T) { checkSpecializedMatchesGeneric[float64](t, fec.MinSum, 2) })
	t.Run("exact/float32", func(t *testing.T) { checkSpecializedMatchesGeneric[float32](t, fec.Exact, 3) })
	t.Run("exact/float64", func(t *testing.T) { checkSpecializedMatchesGeneric[float64](t, fec.Exact, 4) })
}

func TestSCNegativeZeroDecidesOne(t *testing.T) {
	code, err := fec.NewCode([]bool{false}, nil)
	require.NoError(t, err)
	dec, err := fec.NewSCDecoder[float64](code, fec.MinSum)
	require.NoError(t, err)
	_, err = dec.Decode(nil)
	require.ErrorIs(t, err, fec.ErrLengthMismatch)

	out, err := dec.Decode([]float64{math.Copysign(0, -1)})
	require.NoError(t, err)
	assert.Equal(t, []uint8{1}, out.Message)
	out, err = dec.Decode([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0}, out.Message)
}

func TestSCErrors(t *testing.T) {
	code := pwCode(t, 16, 8)
	dec, err := fec.NewSCDecoder[float32](code, fec.MinSum)
	require.NoError(t, err)
	_, err = dec.Decode(make([]float32, 15))
	assert.ErrorIs(t, err, fec.ErrLengthMismatch)

	// A rejected frame leaves the decoder usable.
	enc, err := fec.NewEncoder(code, false)
	require.NoError(t, err)
	msg := []uint8{1, 0, 1, 1, 0, 0, 1, 0}
	x, err := enc.Encode(msg)
	require.NoError(t, err)
	out, err := dec.Decode(noiseless[float32](x, 8))
	require.NoError(t, err)
	assert.Equal(t, msg, out.Message)

	var zero fec.SCDecoder[float32]
	_, err = zero.Decode(make([]float32, 16))
	assert.ErrorIs(t, err, fec.ErrUnimplemented)

	_, err = fec.NewSCDecoder[float32](nil, fec.MinSum)
	assert.ErrorIs(t, err, fec.ErrConfiguration)
	_, err = fec.NewSCDecoder[float32](code, fec.Operator(9))
	assert.ErrorIs(t, err, fec.ErrAllocation)
	_, err = fec.ParseOperator("sum-product-ish")
	assert.ErrorIs(t, err, fec.ErrAllocation)
}

func TestTerminalsPartitionLeaves(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for trial := 0; trial < 200; trial++ {
		n := 1 << rng.Intn(10)
		code, err := fec.NewCode(randomMask(rng, n), nil)
		require.NoError(t, err)
		next := 0
		for _, nd := range code.Terminals() {
			require.Equal(t, next, nd.Offset, "gap or overlap at %d", next)
			require.Zero(t, nd.Offset%nd.Size())
			require.Equal(t, nd.Pattern, code.Pattern(nd.Depth, nd.Offset))
			next += nd.Size()
		}
		require.Equal(t, n, next)
	}
}

func TestPatternClassification(t *testing.T) {
	// F F F I | F I I I
	code, err := fec.NewCode(maskFromFrozen(8, 0, 1, 2, 4), nil)
	require.NoError(t, err)
	assert.Equal(t, fec.PatternGeneral, code.Pattern(3, 0))
	assert.Equal(t, fec.PatternRep, code.Pattern(2, 0))
	assert.Equal(t, fec.PatternSPC, code.Pattern(2, 4))
	assert.Equal(t, fec.PatternRate0, code.Pattern(1, 0))
	assert.Equal(t, fec.PatternRep, code.Pattern(1, 2))
	assert.Equal(t, fec.PatternRate1, code.Pattern(1, 6))
	assert.Equal(t, []fec.Node{
		{Depth: 2, Offset: 0, Pattern: fec.PatternRep},
		{Depth: 2, Offset: 4, Pattern: fec.PatternSPC},
	}, code.Terminals())
	assert.Equal(t, map[fec.Pattern]int{fec.PatternRep: 1, fec.PatternSPC: 1}, code.PatternHistogram())
}
