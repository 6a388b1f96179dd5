package fec

import (
	"fmt"
	"strings"
)

// RateMatchMode selects how N_pct < N is reached.
type RateMatchMode int

const (
	// Puncture drops coded positions 0..P-1. Their soft values come back as +0.
	Puncture RateMatchMode = iota
	// Shorten drops coded positions N-P..N-1. Those bits are known zeros and
	// come back as ShortenedLLR.
	Shorten
)

// ShortenedLLR is the soft value inserted for a shortened (known zero) position.
const ShortenedLLR = 1e6

func (m RateMatchMode) String() string {
	if m == Shorten {
		return "shorten"
	}
	return "puncture"
}

// ParseRateMatchMode resolves "puncture" or "shorten".
func ParseRateMatchMode(name string) (RateMatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "puncture", "wangliu":
		return Puncture, nil
	case "shorten":
		return Shorten, nil
	}
	return 0, fmt.Errorf("%w: rate matching %q", ErrAllocation, name)
}

// RateMatcher maps between the mother length N and the transmitted length
// N_pct. The removed coded positions are also the u positions it freezes,
// which makes them zero-capacity (puncture) or known-zero (shorten)
// bit-channels. N_pct == N gives the identity.
type RateMatcher[T LLR] struct {
	n, k, nPct int
	mode       RateMatchMode
	removed    []bool
}

// NewRateMatcher validates (N, K, N_pct) and fixes the removed positions.
func NewRateMatcher[T LLR](n, k, nPct int, mode RateMatchMode) (*RateMatcher[T], error) {
	if err := checkNK(n, k); err != nil {
		return nil, err
	}
	if nPct <= 0 || nPct > n || nPct < k {
		return nil, fmt.Errorf("%w: N_pct=%d incompatible with N=%d K=%d", ErrConfiguration, nPct, n, k)
	}
	if mode != Puncture && mode != Shorten {
		return nil, fmt.Errorf("%w: rate matching mode %d", ErrAllocation, mode)
	}
	r := &RateMatcher[T]{n: n, k: k, nPct: nPct, mode: mode, removed: make([]bool, n)}
	p := n - nPct
	for i := 0; i < p; i++ {
		if mode == Puncture {
			r.removed[i] = true
		} else {
			r.removed[n-1-i] = true
		}
	}
	return r, nil
}

func (r *RateMatcher[T]) N() int { return r.n }
func (r *RateMatcher[T]) NPct() int { return r.nPct }
func (r *RateMatcher[T]) Mode() RateMatchMode { return r.mode }

// Removed returns the dropped coded positions in ascending order.
func (r *RateMatcher[T]) Removed() []int {
	var out []int
	for i, rm := range r.removed {
		if rm {
			out = append(out, i)
		}
	}
	return out
}

// Freeze builds the mask: removed positions are frozen first, then the K
// most reliable remaining positions of order become information bits.
func (r *RateMatcher[T]) Freeze(order []int) ([]bool, error) {
	frozen := make([]bool, r.n)
	for i := range frozen {
		frozen[i] = true
	}
	picked := 0
	for _, idx := range order {
		if picked == r.k {
			break
		}
		if idx < 0 || idx >= r.n || r.removed[idx] || !frozen[idx] {
			continue
		}
		frozen[idx] = false
		picked++
	}
	if picked != r.k {
		return nil, fmt.Errorf("%w: reliability order yields %d of %d information positions", ErrConfiguration, picked, r.k)
	}
	return frozen, nil
}

// Puncture drops the removed positions of an N-bit codeword.
func (r *RateMatcher[T]) Puncture(x []uint8) ([]uint8, error) {
	if len(x) != r.n {
		return nil, fmt.Errorf("%w: codeword has %d bits, want %d", ErrLengthMismatch, len(x), r.n)
	}
	out := make([]uint8, 0, r.nPct)
	for i, b := range x {
		if !r.removed[i] {
			out = append(out, b)
		}
	}
	return out, nil
}

// Depuncture expands N_pct soft values back to N, filling removed positions.
func (r *RateMatcher[T]) Depuncture(y []T) ([]T, error) {
	if len(y) != r.nPct {
		return nil, fmt.Errorf("%w: got %d soft values, want %d", ErrLengthMismatch, len(y), r.nPct)
	}
	fill := T(0)
	if r.mode == Shorten {
		fill = T(ShortenedLLR)
	}
	out := make([]T, r.n)
	j := 0
	for i := range out {
		if r.removed[i] {
			out[i] = fill
			continue
		}
		out[i] = y[j]
		j++
	}
	return out, nil
}
