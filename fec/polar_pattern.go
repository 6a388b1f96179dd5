package fec

import "fmt"

// Pattern classifies a decoding tree node against the frozen mask.
type Pattern uint8

const (
	PatternGeneral Pattern = iota
	PatternRate0           // every leaf frozen
	PatternRate1           // every leaf information
	PatternRep             // one information leaf, the last one
	PatternSPC             // one frozen leaf, the first one
)

func (p Pattern) String() string {
	switch p {
	case PatternRate0:
		return "R0"
	case PatternRate1:
		return "R1"
	case PatternRep:
		return "REP"
	case PatternSPC:
		return "SPC"
	}
	return "GEN"
}

// Node addresses the 2^Depth leaves starting at Offset.
type Node struct {
	Depth   int
	Offset  int
	Pattern Pattern
}

func (nd Node) Size() int { return 1 << nd.Depth }

// Code is a frozen mask together with everything derived from it. A Code is
// immutable and safe to share between decoders running in parallel.
type Code struct {
	n, m, k  int
	frozen   []bool
	info     []int
	order    []int
	patterns []Pattern
}

// NewCode validates frozen and precomputes the node patterns. order is the
// reliability order the mask was cut from and may be nil.
func NewCode(frozen []bool, order []int) (*Code, error) {
	n := len(frozen)
	if n == 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("%w: mask length %d is not a power of two", ErrConfiguration, n)
	}
	c := &Code{
		n:      n,
		m:      log2(n),
		frozen: append([]bool(nil), frozen...),
		order:  append([]int(nil), order...),
	}
	for i, f := range frozen {
		if !f {
			c.info = append(c.info, i)
		}
	}
	c.k = len(c.info)
	if c.k == 0 {
		return nil, fmt.Errorf("%w: mask has no information bits", ErrConfiguration)
	}
	c.classify()
	return c, nil
}

func (c *Code) N() int { return c.n }
func (c *Code) K() int { return c.k }

// Rate returns K/N.
func (c *Code) Rate() float64 { return float64(c.k) / float64(c.n) }

func (c *Code) IsFrozen(i int) bool { return c.frozen[i] }

// Frozen returns a copy of the mask.
func (c *Code) Frozen() []bool { return append([]bool(nil), c.frozen...) }

// Info returns the information positions in ascending order.
func (c *Code) Info() []int { return append([]int(nil), c.info...) }

// Order returns the reliability order the mask was built from, if known.
func (c *Code) Order() []int { return append([]int(nil), c.order...) }

func (c *Code) nodeIndex(d, off int) int { return (c.n >> d) + (off >> d) }

// Pattern returns the class of node (d, off).
func (c *Code) Pattern(d, off int) Pattern { return c.patterns[c.nodeIndex(d, off)] }

func (c *Code) classify() {
	c.patterns = make([]Pattern, 2*c.n)
	info := make([]int, 2*c.n)
	for off := 0; off < c.n; off++ {
		i := c.nodeIndex(0, off)
		if c.frozen[off] {
			c.patterns[i] = PatternRate0
		} else {
			info[i] = 1
			c.patterns[i] = PatternRate1
		}
	}
	for d := 1; d <= c.m; d++ {
		size := 1 << d
		for off := 0; off < c.n; off += size {
			i := c.nodeIndex(d, off)
			cnt := info[c.nodeIndex(d-1, off)] + info[c.nodeIndex(d-1, off+size/2)]
			info[i] = cnt
			switch {
			case cnt == 0:
				c.patterns[i] = PatternRate0
			case cnt == size:
				c.patterns[i] = PatternRate1
			case cnt == 1 && !c.frozen[off+size-1]:
				c.patterns[i] = PatternRep
			case cnt == size-1 && c.frozen[off]:
				c.patterns[i] = PatternSPC
			default:
				c.patterns[i] = PatternGeneral
			}
		}
	}
}

// Terminals lists the nodes where a specialized traversal stops: maximal
// Rate-0, Rate-1, Repetition and SPC nodes, plus single leaves under General
// nodes. The result covers [0, N) in order.
func (c *Code) Terminals() []Node {
	var out []Node
	var walk func(d, off int)
	walk = func(d, off int) {
		p := c.Pattern(d, off)
		if d == 0 || p == PatternRate0 || p == PatternRate1 || p == PatternRep || p == PatternSPC {
			out = append(out, Node{Depth: d, Offset: off, Pattern: p})
			return
		}
		walk(d-1, off)
		walk(d-1, off+1<<(d-1))
	}
	walk(c.m, 0)
	return out
}

// PatternHistogram counts terminal nodes per pattern.
func (c *Code) PatternHistogram() map[Pattern]int {
	h := make(map[Pattern]int)
	for _, nd := range c.Terminals() {
		h[nd.Pattern]++
	}
	return h
}
