package fec

import (
	"fmt"
	"math/bits"
)

// Transform multiplies x in place by the m-fold Kronecker power of
// [[1,0],[1,1]]. The transform is its own inverse.
func Transform(x []uint8) {
	N := len(x)
	for half := 1; half < N; half <<= 1 {
		block := half << 1
		for start := 0; start < N; start += block {
			for j := 0; j < half; j++ {
				idx1 := start + j
				x[idx1] ^= x[idx1+half]
			}
		}
	}
}

// Encoder maps K message bits to N coded bits for one Code.
type Encoder struct {
	code       *Code
	systematic bool
}

// NewEncoder builds an encoder. A systematic encoder needs an information
// set for which transform, re-freeze, transform lands the message on the
// information positions.
func NewEncoder(code *Code, systematic bool) (*Encoder, error) {
	if code == nil {
		return nil, fmt.Errorf("%w: encoder needs a code", ErrConfiguration)
	}
	if systematic && !systematicCapable(code) {
		return nil, fmt.Errorf("%w: information set does not support systematic encoding", ErrConfiguration)
	}
	return &Encoder{code: code, systematic: systematic}, nil
}

func (e *Encoder) Code() *Code { return e.code }
func (e *Encoder) Systematic() bool { return e.systematic }

// Encode returns the codeword of msg, whose bits go to the information
// positions in increasing index order.
func (e *Encoder) Encode(msg []uint8) ([]uint8, error) {
	if e == nil || e.code == nil {
		return nil, ErrUnimplemented
	}
	if len(msg) != e.code.k {
		return nil, fmt.Errorf("%w: message has %d bits, want %d", ErrLengthMismatch, len(msg), e.code.k)
	}
	x := make([]uint8, e.code.n)
	e.encodeInto(msg, x)
	return x, nil
}

func (e *Encoder) encodeInto(msg, x []uint8) {
	for i := range x {
		x[i] = 0
	}
	for j, pos := range e.code.info {
		x[pos] = msg[j] & 1
	}
	Transform(x)
	if !e.systematic {
		return
	}
	for i, f := range e.code.frozen {
		if f {
			x[i] = 0
		}
	}
	Transform(x)
}

// IsCodeword reports whether x is a codeword: the information bits implied
// by x are re-encoded and compared with x.
func (e *Encoder) IsCodeword(x []uint8) (bool, error) {
	if e == nil || e.code == nil {
		return false, ErrUnimplemented
	}
	if len(x) != e.code.n {
		return false, fmt.Errorf("%w: candidate has %d bits, want %d", ErrLengthMismatch, len(x), e.code.n)
	}
	msg := e.code.message(x, e.systematic)
	y := make([]uint8, e.code.n)
	e.encodeInto(msg, y)
	for i := range x {
		if x[i]&1 != y[i] {
			return false, nil
		}
	}
	return true, nil
}

// message extracts the K message bits carried by codeword x.
func (c *Code) message(x []uint8, systematic bool) []uint8 {
	msg := make([]uint8, c.k)
	if systematic {
		for j, pos := range c.info {
			msg[j] = x[pos] & 1
		}
		return msg
	}
	u := make([]uint8, c.n)
	for i := range u {
		u[i] = x[i] & 1
	}
	Transform(u)
	for j, pos := range c.info {
		msg[j] = u[pos]
	}
	return msg
}

// systematicCapable checks G_AA * G_AA = I over GF(2), with the rows of
// G_AA packed into uint64 words. G[i][j] = 1 iff j's bits are a subset of i's.
func systematicCapable(c *Code) bool {
	K := c.k
	words := (K + 63) / 64
	rows := make([][]uint64, K)
	for r, i := range c.info {
		row := make([]uint64, words)
		for col, j := range c.info {
			if i&j == j {
				row[col>>6] |= 1 << uint(col&63)
			}
		}
		rows[r] = row
	}
	acc := make([]uint64, words)
	for r := 0; r < K; r++ {
		for w := range acc {
			acc[w] = 0
		}
		for w, word := range rows[r] {
			for word != 0 {
				t := w*64 + bits.TrailingZeros64(word)
				word &= word - 1
				for v := range acc {
					acc[v] ^= rows[t][v]
				}
			}
		}
		for w := range acc {
			want := uint64(0)
			if r>>6 == w {
				want = 1 << uint(r&63)
			}
			if acc[w] != want {
				return false
			}
		}
	}
	return true
}
