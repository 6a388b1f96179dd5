package fec_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observe-l/polarsim/fec"
)

func unpack(data []byte) []uint8 {
	bits := make([]uint8, 0, 8*len(data))
	for _, c := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (c>>uint(i))&1)
		}
	}
	return bits
}

func packTail(bits []uint8) uint64 {
	var v uint64
	for _, b := range bits {
		v = v<<1 | uint64(b)
	}
	return v
}

func TestCRCCheckValues(t *testing.T) {
	for name, want := range map[string]uint64{
		"16-CCITT": 0x31C3,
		"32-GZIP":  0x89A1897F,
		"24-LTEA":  0xCDE703,
	} {
		c, err := fec.NewCRC(name)
		require.NoError(t, err)
		msg := unpack([]byte("123456789"))
		out := c.Build(msg)
		require.Len(t, out, len(msg)+c.Size())
		assert.Equal(t, want, packTail(out[len(msg):]), name)
	}
}

func TestCRCDetectsSingleBitErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	for _, name := range fec.CRCNames() {
		c, err := fec.NewCRC(name)
		require.NoError(t, err)
		info := randomBits(rng, 40)
		bits := c.Build(info)
		require.True(t, c.Passes(bits), name)
		assert.Equal(t, info, c.Extract(bits))
		for i := range bits {
			bits[i] ^= 1
			require.False(t, c.Passes(bits), "%s: flip %d accepted", name, i)
			bits[i] ^= 1
		}
	}
}

func TestCRCShortInput(t *testing.T) {
	c, err := fec.NewCRC("8-wcdma")
	require.NoError(t, err)
	assert.Equal(t, "8-WCDMA", c.Name())
	assert.False(t, c.Passes(make([]uint8, 7)))
	assert.Nil(t, c.Extract(make([]uint8, 3)))

	_, err = fec.NewCRC("CRC-5-USB")
	assert.ErrorIs(t, err, fec.ErrAllocation)
}
