package fec

import (
	"fmt"
	"sort"
	"strings"
)

// Validator accepts or rejects a decoded K-bit message. The list decoder
// only calls Passes; it never builds or strips check bits itself.
//
//go:generate mockgen -destination=../internal/mocks/validator.go -package=mocks github.com/observe-l/polarsim/fec Validator
type Validator interface {
	Passes(bits []uint8) bool
}

type crcParams struct {
	size int
	poly uint64
}

// Generator polynomials without the leading term.
var crcTable = map[string]crcParams{
	"6-NR":     {6, 0x21},
	"8-WCDMA":  {8, 0x9B},
	"11-NR":    {11, 0x621},
	"16-CCITT": {16, 0x1021},
	"24-LTEA":  {24, 0x864CFB},
	"24-NR-C":  {24, 0xB2B117},
	"32-GZIP":  {32, 0x04C11DB7},
}

// CRCNames lists the registered polynomials.
func CRCNames() []string {
	names := make([]string, 0, len(crcTable))
	for n := range crcTable {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CRC is a bit-serial cyclic redundancy check over unpacked bits, zero
// initial register, check bits appended most significant first.
type CRC struct {
	name string
	size int
	poly uint64
}

// NewCRC returns the polynomial registered under name.
func NewCRC(name string) (*CRC, error) {
	p, ok := crcTable[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: CRC polynomial %q", ErrAllocation, name)
	}
	return &CRC{name: strings.ToUpper(strings.TrimSpace(name)), size: p.size, poly: p.poly}, nil
}

func (c *CRC) Name() string { return c.name }

// Size returns the number of check bits.
func (c *CRC) Size() int { return c.size }

func (c *CRC) register(bits []uint8) uint64 {
	top := uint64(1) << uint(c.size-1)
	mask := top<<1 - 1
	var reg uint64
	for _, b := range bits {
		fb := reg&top != 0
		if b&1 == 1 {
			fb = !fb
		}
		reg = (reg << 1) & mask
		if fb {
			reg ^= c.poly
		}
	}
	return reg
}

// Build returns info followed by its check bits.
func (c *CRC) Build(info []uint8) []uint8 {
	out := make([]uint8, len(info)+c.size)
	copy(out, info)
	reg := c.register(info)
	for i := 0; i < c.size; i++ {
		out[len(info)+i] = uint8(reg>>uint(c.size-1-i)) & 1
	}
	return out
}

// Extract drops the check bits.
func (c *CRC) Extract(bits []uint8) []uint8 {
	if len(bits) < c.size {
		return nil
	}
	return append([]uint8(nil), bits[:len(bits)-c.size]...)
}

// Passes reports whether the trailing check bits match the leading info bits.
func (c *CRC) Passes(bits []uint8) bool {
	if len(bits) < c.size {
		return false
	}
	info := len(bits) - c.size
	reg := c.register(bits[:info])
	for i := 0; i < c.size; i++ {
		if bits[info+i]&1 != uint8(reg>>uint(c.size-1-i))&1 {
			return false
		}
	}
	return true
}
