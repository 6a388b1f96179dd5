package fec

import (
	"fmt"
	"math"
	"strings"
)

// LLR is the soft value type of the decoders. Integers are excluded because
// zero carries no sign and the hard decision is taken from the sign bit.
type LLR interface {
	~float32 | ~float64
}

// Operator selects the check-node combine f(a, b).
type Operator int

const (
	// MinSum uses sign(a)sign(b)min(|a|,|b|).
	MinSum Operator = iota
	// Exact uses the box-plus operator with its log1p correction terms.
	Exact
)

func (op Operator) String() string {
	if op == Exact {
		return "exact"
	}
	return "minsum"
}

// ParseOperator resolves "minsum" or "exact".
func ParseOperator(name string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "minsum", "min-sum", "ms":
		return MinSum, nil
	case "exact", "boxplus", "lse":
		return Exact, nil
	}
	return 0, fmt.Errorf("%w: combine operator %q", ErrAllocation, name)
}

// hd is the hard decision: 1 when the sign bit is set, so -0 decides 1.
func hd[T LLR](x T) uint8 {
	if math.Signbit(float64(x)) {
		return 1
	}
	return 0
}

func abs[T LLR](x T) T { return T(math.Abs(float64(x))) }

func minSum[T LLR](a, b T) T {
	m := abs(a)
	if mb := abs(b); mb < m {
		m = mb
	}
	if hd(a) != hd(b) {
		return -m
	}
	return m
}

func boxPlus[T LLR](a, b T) T {
	x, y := math.Abs(float64(a)), math.Abs(float64(b))
	v := math.Min(x, y) + math.Log1p(math.Exp(-(x+y))) - math.Log1p(math.Exp(-math.Abs(x-y)))
	if v < 0 {
		v = 0
	}
	if hd(a) != hd(b) {
		v = -v
	}
	return T(v)
}

// kernel bundles the node operations of one decode.
type kernel[T LLR] struct {
	op Operator
}

func (k kernel[T]) f(a, b T) T {
	if k.op == Exact {
		return boxPlus(a, b)
	}
	return minSum(a, b)
}

func (k kernel[T]) g(a, b T, u uint8) T {
	if u == 0 {
		return b + a
	}
	return b - a
}

// combine writes f of the two halves of parent into child.
func (k kernel[T]) combine(parent, child []T) {
	h := len(child)
	for i := 0; i < h; i++ {
		child[i] = k.f(parent[i], parent[i+h])
	}
}

// update writes g of the two halves of parent, steered by the left decisions, into child.
func (k kernel[T]) update(parent, child []T, left []uint8) {
	h := len(child)
	for i := 0; i < h; i++ {
		child[i] = k.g(parent[i], parent[i+h], left[i])
	}
}

// updateZero is update with all-zero left decisions.
func (k kernel[T]) updateZero(parent, child []T) {
	h := len(child)
	for i := 0; i < h; i++ {
		child[i] = k.g(parent[i], parent[i+h], 0)
	}
}

// xorCombine folds the right half of beta into the left half.
func xorCombine(beta []uint8) {
	h := len(beta) / 2
	for i := 0; i < h; i++ {
		beta[i] ^= beta[i+h]
	}
}
