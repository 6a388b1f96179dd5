package fec

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Selection picks the output path once all leaves are decided.
type Selection int

const (
	// SelectMinMetric returns the survivor with the lowest metric.
	SelectMinMetric Selection = iota
	// SelectCRC returns the lowest-metric survivor whose message passes the
	// Validator, falling back to SelectMinMetric when none does.
	SelectCRC
)

func (s Selection) String() string {
	if s == SelectCRC {
		return "crc"
	}
	return "min-metric"
}

// ParseSelection resolves "min-metric" or "crc".
func ParseSelection(name string) (Selection, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "min", "min-metric", "minmetric", "ml":
		return SelectMinMetric, nil
	case "crc", "ca", "crc-aided":
		return SelectCRC, nil
	}
	return 0, fmt.Errorf("%w: path selection %q", ErrAllocation, name)
}

type sclPath[T LLR] struct {
	alpha  [][]T
	beta   []uint8
	metric float64
}

type candidate struct {
	parent  int
	bit     uint8
	flipped bool
	metric  float64
}

// Survivor is one path of the last decoded frame.
type Survivor struct {
	Codeword []uint8
	Message  []uint8
	Metric   float64
}

// SCLDecoder is a successive cancellation list decoder with at most L paths.
// Paths are cloned on fork and never share buffers. Rate-0 nodes are walked
// per path without forking and repetition nodes fork once, both charging the
// same metrics as the leaf-by-leaf walk.
type SCLDecoder[T LLR] struct {
	code       *Code
	k          kernel[T]
	listWidth  int
	sel        Selection
	crc        Validator
	systematic bool
	generic    bool

	root  []T
	paths []*sclPath[T]
	next  []*sclPath[T]
	spare []*sclPath[T]
	cands []candidate
	used  []bool
	leaf  []T // soft value each path decides on at the current fork
}

// NewSCLDecoder builds a list decoder of width listWidth. crc is required
// for SelectCRC and ignored otherwise.
func NewSCLDecoder[T LLR](code *Code, op Operator, listWidth int, sel Selection, crc Validator, opts ...DecoderOption) (*SCLDecoder[T], error) {
	if code == nil {
		return nil, fmt.Errorf("%w: decoder needs a code", ErrConfiguration)
	}
	if listWidth < 1 {
		return nil, fmt.Errorf("%w: list width %d", ErrConfiguration, listWidth)
	}
	if op != MinSum && op != Exact {
		return nil, fmt.Errorf("%w: combine operator %d", ErrAllocation, op)
	}
	switch sel {
	case SelectMinMetric:
	case SelectCRC:
		if crc == nil {
			return nil, fmt.Errorf("%w: CRC selection without a validator", ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("%w: path selection %d", ErrAllocation, sel)
	}
	var cfg decoderConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &SCLDecoder[T]{
		code:       code,
		k:          kernel[T]{op: op},
		listWidth:  listWidth,
		sel:        sel,
		crc:        crc,
		systematic: cfg.systematic,
		generic:    cfg.generic,
		cands:      make([]candidate, 0, 2*listWidth),
		used:       make([]bool, listWidth),
		leaf:       make([]T, 0, listWidth),
	}, nil
}

func (d *SCLDecoder[T]) Code() *Code { return d.code }
func (d *SCLDecoder[T]) ListWidth() int { return d.listWidth }

// Decode runs one frame through the list search.
func (d *SCLDecoder[T]) Decode(llr []T) (Decoded, error) {
	if d == nil || d.code == nil {
		return Decoded{}, ErrUnimplemented
	}
	if len(llr) != d.code.n {
		return Decoded{}, fmt.Errorf("%w: got %d soft values, want %d", ErrLengthMismatch, len(llr), d.code.n)
	}
	d.reset(llr)
	d.node(d.code.m, 0)
	d.root = nil
	sort.SliceStable(d.paths, func(i, j int) bool { return d.paths[i].metric < d.paths[j].metric })

	best := d.paths[0]
	msg := d.code.message(best.beta, d.systematic)
	if d.sel == SelectCRC {
		for _, p := range d.paths {
			m := d.code.message(p.beta, d.systematic)
			if d.crc.Passes(m) {
				best, msg = p, m
				break
			}
		}
	}
	return Decoded{Codeword: append([]uint8(nil), best.beta...), Message: msg}, nil
}

// Survivors returns the paths of the last frame in ascending metric order.
func (d *SCLDecoder[T]) Survivors() []Survivor {
	out := make([]Survivor, 0, len(d.paths))
	for _, p := range d.paths {
		out = append(out, Survivor{
			Codeword: append([]uint8(nil), p.beta...),
			Message:  d.code.message(p.beta, d.systematic),
			Metric:   p.metric,
		})
	}
	return out
}

func (d *SCLDecoder[T]) reset(llr []T) {
	d.spare = append(d.spare, d.paths...)
	d.paths = d.paths[:0]
	p := d.alloc()
	p.metric = 0
	d.paths = append(d.paths, p)
	d.root = llr
}

func (d *SCLDecoder[T]) alloc() *sclPath[T] {
	if n := len(d.spare); n > 0 {
		p := d.spare[n-1]
		d.spare = d.spare[:n-1]
		return p
	}
	p := &sclPath[T]{alpha: make([][]T, d.code.m), beta: make([]uint8, d.code.n)}
	for lvl := range p.alpha {
		p.alpha[lvl] = make([]T, 1<<lvl)
	}
	return p
}

func (d *SCLDecoder[T]) clone(src *sclPath[T]) *sclPath[T] {
	p := d.alloc()
	for lvl := range src.alpha {
		copy(p.alpha[lvl], src.alpha[lvl])
	}
	copy(p.beta, src.beta)
	p.metric = src.metric
	return p
}

// parentAlpha returns the soft values feeding the node of size 2^depth.
func (d *SCLDecoder[T]) parentAlpha(p *sclPath[T], depth int) []T {
	if depth == d.code.m {
		return d.root
	}
	return p.alpha[depth]
}

func (d *SCLDecoder[T]) node(depth, off int) {
	if depth == 0 {
		if d.code.frozen[off] {
			d.frozenLeaf(off)
		} else {
			d.infoLeaf(off)
		}
		return
	}
	if !d.generic {
		switch d.code.Pattern(depth, off) {
		case PatternRate0:
			for _, p := range d.paths {
				d.frozenWalk(p, d.parentAlpha(p, depth), depth, false)
				clear(p.beta[off : off+1<<depth])
			}
			return
		case PatternRep:
			d.leaf = d.leaf[:0]
			for _, p := range d.paths {
				d.leaf = append(d.leaf, d.frozenWalk(p, d.parentAlpha(p, depth), depth, true))
			}
			d.fork(off, 1<<depth)
			return
		}
	}
	h := 1 << (depth - 1)
	for _, p := range d.paths {
		d.k.combine(d.parentAlpha(p, depth), p.alpha[depth-1])
	}
	d.node(depth-1, off)
	for _, p := range d.paths {
		d.k.update(d.parentAlpha(p, depth), p.alpha[depth-1], p.beta[off:off+h])
	}
	d.node(depth-1, off+h)
	for _, p := range d.paths {
		xorCombine(p.beta[off : off+2*h])
	}
}

func (d *SCLDecoder[T]) frozenLeaf(off int) {
	for _, p := range d.paths {
		a := d.parentAlpha(p, 0)[0]
		p.beta[off] = 0
		if hd(a) == 1 {
			p.metric += math.Abs(float64(a))
		}
	}
}

// frozenWalk runs the subtree of size 2^depth below parent for path p with
// every decision fixed to zero, charging each leaf penalty in leaf order.
// With last set the final leaf is left to the caller: its soft value is
// returned and not charged.
func (d *SCLDecoder[T]) frozenWalk(p *sclPath[T], parent []T, depth int, last bool) T {
	if depth == 0 {
		a := parent[0]
		if !last && hd(a) == 1 {
			p.metric += math.Abs(float64(a))
		}
		return a
	}
	child := p.alpha[depth-1]
	d.k.combine(parent, child)
	d.frozenWalk(p, child, depth-1, false)
	d.k.updateZero(parent, child)
	return d.frozenWalk(p, child, depth-1, last)
}

func (d *SCLDecoder[T]) infoLeaf(off int) {
	d.leaf = d.leaf[:0]
	for _, p := range d.paths {
		d.leaf = append(d.leaf, d.parentAlpha(p, 0)[0])
	}
	d.fork(off, 1)
}

// fork extends path r by a decision on d.leaf[r] and keeps the best L
// candidates, writing the decision over [off, off+size). Candidates are
// ranked by metric, then by the rank of their parent, then with the hard
// decision ahead of its complement.
func (d *SCLDecoder[T]) fork(off, size int) {
	d.cands = d.cands[:0]
	for r, p := range d.paths {
		a := d.leaf[r]
		b := hd(a)
		d.cands = append(d.cands,
			candidate{parent: r, bit: b, metric: p.metric},
			candidate{parent: r, bit: b ^ 1, flipped: true, metric: p.metric + math.Abs(float64(a))},
		)
	}
	sort.SliceStable(d.cands, func(i, j int) bool {
		ci, cj := d.cands[i], d.cands[j]
		if ci.metric != cj.metric {
			return ci.metric < cj.metric
		}
		if ci.parent != cj.parent {
			return ci.parent < cj.parent
		}
		return !ci.flipped && cj.flipped
	})
	keep := len(d.cands)
	if keep > d.listWidth {
		keep = d.listWidth
	}
	used := d.used[:len(d.paths)]
	for i := range used {
		used[i] = false
	}
	d.next = d.next[:0]
	for _, c := range d.cands[:keep] {
		p := d.paths[c.parent]
		if used[c.parent] {
			p = d.clone(p)
		} else {
			used[c.parent] = true
		}
		for i := off; i < off+size; i++ {
			p.beta[i] = c.bit
		}
		p.metric = c.metric
		d.next = append(d.next, p)
	}
	for r, p := range d.paths {
		if !used[r] {
			d.spare = append(d.spare, p)
		}
	}
	d.paths, d.next = d.next, d.paths
}
