package fec_test

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/observe-l/polarsim/fec"
)

func TestCodecAdaptiveRegeneration(t *testing.T) {
	c, err := fec.NewCodec[float32](fec.CodecConfig{N: 256, K: 128, Method: "GA"}, fec.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.True(t, c.Adaptive())
	_, err = c.Code()
	require.ErrorIs(t, err, fec.ErrConfiguration)
	_, err = c.BuildDecoder(1, fec.SelectMinMetric, nil)
	require.ErrorIs(t, err, fec.ErrConfiguration)

	require.NoError(t, c.OnSNRChange(0.5))
	low, err := c.Code()
	require.NoError(t, err)
	enc, err := c.BuildEncoder()
	require.NoError(t, err)
	dec, err := c.BuildDecoder(1, fec.SelectMinMetric, nil)
	require.NoError(t, err)

	require.NoError(t, c.OnSNRChange(1.5))
	high, err := c.Code()
	require.NoError(t, err)
	assert.NotEqual(t, low.Frozen(), high.Frozen())

	// Components built before the change keep their own mask.
	assert.Same(t, low, enc.Code())
	msg := make([]uint8, 128)
	msg[5], msg[77] = 1, 1
	x, err := enc.Encode(msg)
	require.NoError(t, err)
	out, err := dec.Decode(noiseless[float32](x, 10))
	require.NoError(t, err)
	assert.Equal(t, msg, out.Message)
}

func TestCodecPinnedSigma(t *testing.T) {
	c, err := fec.NewCodec[float64](fec.CodecConfig{N: 64, K: 32, Method: "BHATTACHARYYA", Sigma: 0.8})
	require.NoError(t, err)
	assert.False(t, c.Adaptive())
	before, err := c.Code()
	require.NoError(t, err)
	require.NoError(t, c.OnSNRChange(2))
	after, err := c.Code()
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestCodecPinnedSigmaOnErasureMethod(t *testing.T) {
	const sigma = 0.7
	c, err := fec.NewCodec[float64](fec.CodecConfig{N: 256, K: 128, Method: "BEC", Sigma: sigma})
	require.NoError(t, err)
	code, err := c.Code()
	require.NoError(t, err)

	g, err := fec.NewGenerator("BEC", 256, 128, fec.WithNoise(math.Exp(-1/(2*sigma*sigma))))
	require.NoError(t, err)
	want, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, want, code.Frozen())

	// The same value read as an erasure probability gives another mask.
	g, err = fec.NewGenerator("BEC", 256, 128, fec.WithNoise(sigma))
	require.NoError(t, err)
	other, err := g.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, other, code.Frozen())
}

func TestCodecBuildDecoderKinds(t *testing.T) {
	c, err := fec.NewCodec[float32](fec.CodecConfig{N: 32, K: 16, Method: "PW", Systematic: true})
	require.NoError(t, err)
	assert.Equal(t, 32, c.NPct())
	assert.Equal(t, fec.MinSum, c.Operator())

	d, err := c.BuildDecoder(1, fec.SelectMinMetric, nil)
	require.NoError(t, err)
	assert.IsType(t, &fec.SCDecoder[float32]{}, d)

	d, err = c.BuildDecoder(4, fec.SelectMinMetric, nil)
	require.NoError(t, err)
	assert.IsType(t, &fec.SCLDecoder[float32]{}, d)

	crc, err := fec.NewCRC("6-NR")
	require.NoError(t, err)
	d, err = c.BuildDecoder(1, fec.SelectCRC, crc)
	require.NoError(t, err)
	assert.IsType(t, &fec.SCLDecoder[float32]{}, d)

	_, err = c.BuildDecoder(0, fec.SelectMinMetric, nil)
	assert.ErrorIs(t, err, fec.ErrConfiguration)
	_, err = c.BuildDecoder(2, fec.SelectCRC, nil)
	assert.ErrorIs(t, err, fec.ErrConfiguration)

	enc, err := c.BuildEncoder()
	require.NoError(t, err)
	assert.True(t, enc.Systematic())
	msg := randomBits(newRand(23), 16)
	x, err := enc.Encode(msg)
	require.NoError(t, err)
	out, err := d.Decode(noiseless[float32](x, 6))
	require.NoError(t, err)
	assert.Equal(t, msg, out.Message)
}

func TestCodecSplit(t *testing.T) {
	c, err := fec.NewCodec[float64](fec.CodecConfig{N: 8, K: 4, Method: "PW"})
	require.NoError(t, err)
	sys, par, err := c.Split([]float64{0, 1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 5, 6, 7}, sys)
	assert.Equal(t, []float64{0, 1, 2, 4}, par)

	_, _, err = c.Split(make([]float64, 7))
	assert.ErrorIs(t, err, fec.ErrLengthMismatch)
}

func TestCodecRateMatched(t *testing.T) {
	for _, mode := range []string{"puncture", "shorten"} {
		c, err := fec.NewCodec[float32](fec.CodecConfig{N: 64, K: 24, NPct: 48, Method: "GA", Sigma: 0.7, RateMatching: mode})
		require.NoError(t, err)
		rm, err := c.BuildPuncturer()
		require.NoError(t, err)
		code, err := c.Code()
		require.NoError(t, err)
		for _, i := range rm.Removed() {
			require.True(t, code.IsFrozen(i), "%s: removed position %d", mode, i)
		}
		enc, err := c.BuildEncoder()
		require.NoError(t, err)
		dec, err := c.BuildDecoder(2, fec.SelectMinMetric, nil)
		require.NoError(t, err)

		msg := randomBits(newRand(29), 24)
		x, err := enc.Encode(msg)
		require.NoError(t, err)
		tx, err := rm.Puncture(x)
		require.NoError(t, err)
		y, err := rm.Depuncture(noiseless[float32](tx, 8))
		require.NoError(t, err)
		out, err := dec.Decode(y)
		require.NoError(t, err)
		assert.Equal(t, msg, out.Message, mode)
	}
}

func TestCodecFileMethod(t *testing.T) {
	dir := t.TempDir()
	_, err := fec.SaveTable(dir, &fec.FrozenTable{Order: []int{7, 6, 5, 3, 4, 2, 1, 0}}, 8, 4, 0, true)
	require.NoError(t, err)
	c, err := fec.NewCodec[float32](fec.CodecConfig{N: 8, K: 4, Method: "FILE", TableDir: dir})
	require.NoError(t, err)
	assert.False(t, c.Adaptive())
	code, err := c.Code()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 6, 7}, code.Info())

	_, err = fec.NewCodec[float32](fec.CodecConfig{N: 8, K: 4, Method: "FILE", TableDir: t.TempDir()})
	assert.ErrorIs(t, err, fec.ErrConfiguration)
}

func TestCodecConfigErrors(t *testing.T) {
	for name, cfg := range map[string]fec.CodecConfig{
		"n":     {N: 12, K: 4, Method: "PW"},
		"k":     {N: 16, K: 17, Method: "PW"},
		"n_pct": {N: 16, K: 8, NPct: 6, Method: "PW"},
		"over":  {N: 16, K: 8, NPct: 20, Method: "PW"},
	} {
		_, err := fec.NewCodec[float32](cfg)
		assert.ErrorIs(t, err, fec.ErrConfiguration, name)
	}
	for name, cfg := range map[string]fec.CodecConfig{
		"method":   {N: 16, K: 8, Method: "RM"},
		"operator": {N: 16, K: 8, Method: "PW", Operator: "sum"},
		"matching": {N: 16, K: 8, Method: "PW", RateMatching: "repeat"},
	} {
		_, err := fec.NewCodec[float32](cfg)
		assert.ErrorIs(t, err, fec.ErrAllocation, name)
	}
}

func TestCodecConcurrentSNRChange(t *testing.T) {
	c, err := fec.NewCodec[float32](fec.CodecConfig{N: 128, K: 64, Method: "GA"})
	require.NoError(t, err)
	require.NoError(t, c.OnSNRChange(0.9))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				dec, err := c.BuildDecoder(1, fec.SelectMinMetric, nil)
				if !assert.NoError(t, err) {
					return
				}
				_, err = dec.Decode(make([]float32, 128))
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, c.OnSNRChange(0.5+float64(i)/20))
	}
	wg.Wait()
}
