package fec

import "fmt"

// Decoded is the outcome of one frame.
type Decoded struct {
	Codeword []uint8 // N hard decisions
	Message  []uint8 // K information bits in increasing position order
}

// Decoder decodes N soft values into a codeword and its message.
type Decoder[T LLR] interface {
	Decode(llr []T) (Decoded, error)
}

// DecoderOption configures NewSCDecoder and NewSCLDecoder.
type DecoderOption func(*decoderConfig)

type decoderConfig struct {
	generic    bool
	systematic bool
}

// WithGeneric disables the node kernels so that every node recurses down to
// its leaves.
func WithGeneric() DecoderOption {
	return func(c *decoderConfig) { c.generic = true }
}

// WithSystematic reads the message from the codeword instead of from the
// re-transformed decisions.
func WithSystematic(on bool) DecoderOption {
	return func(c *decoderConfig) { c.systematic = on }
}

// SCDecoder is a successive cancellation decoder. It owns its buffers, so
// concurrent decodes need one instance each; the Code may be shared.
type SCDecoder[T LLR] struct {
	code       *Code
	k          kernel[T]
	generic    bool
	spc        bool
	systematic bool
	alpha      [][]T   // alpha[d] holds the soft values of the active node of size 2^d
	beta       []uint8 // hard decisions, addressed by leaf offset
}

// NewSCDecoder builds a decoder for code using the combine operator op.
func NewSCDecoder[T LLR](code *Code, op Operator, opts ...DecoderOption) (*SCDecoder[T], error) {
	if code == nil {
		return nil, fmt.Errorf("%w: decoder needs a code", ErrConfiguration)
	}
	if op != MinSum && op != Exact {
		return nil, fmt.Errorf("%w: combine operator %d", ErrAllocation, op)
	}
	var cfg decoderConfig
	for _, o := range opts {
		o(&cfg)
	}
	d := &SCDecoder[T]{
		code:       code,
		k:          kernel[T]{op: op},
		generic:    cfg.generic,
		spc:        op == MinSum,
		systematic: cfg.systematic,
		alpha:      make([][]T, code.m),
		beta:       make([]uint8, code.n),
	}
	for lvl := range d.alpha {
		d.alpha[lvl] = make([]T, 1<<lvl)
	}
	return d, nil
}

func (d *SCDecoder[T]) Code() *Code { return d.code }

// Decode runs one frame. llr[i] > 0 favours bit 0 at coded position i.
func (d *SCDecoder[T]) Decode(llr []T) (Decoded, error) {
	if d == nil || d.code == nil {
		return Decoded{}, ErrUnimplemented
	}
	if len(llr) != d.code.n {
		return Decoded{}, fmt.Errorf("%w: got %d soft values, want %d", ErrLengthMismatch, len(llr), d.code.n)
	}
	d.node(llr, d.code.m, 0)
	cw := append([]uint8(nil), d.beta...)
	return Decoded{Codeword: cw, Message: d.code.message(cw, d.systematic)}, nil
}

func (d *SCDecoder[T]) node(alpha []T, depth, off int) {
	beta := d.beta[off : off+len(alpha)]
	if depth == 0 {
		if d.code.frozen[off] {
			beta[0] = 0
		} else {
			beta[0] = hd(alpha[0])
		}
		return
	}
	if !d.generic {
		switch d.code.Pattern(depth, off) {
		case PatternRate0:
			for i := range beta {
				beta[i] = 0
			}
			return
		case PatternRate1:
			for i, a := range alpha {
				beta[i] = hd(a)
			}
			return
		case PatternRep:
			d.rep(alpha, beta, depth)
			return
		case PatternSPC:
			if d.spc {
				d.parityCheck(alpha, beta, depth)
				return
			}
		}
	}
	h := len(alpha) / 2
	child := d.alpha[depth-1]
	d.k.combine(alpha, child)
	d.node(child, depth-1, off)
	d.k.update(alpha, child, beta[:h])
	d.node(child, depth-1, off+h)
	xorCombine(beta)
}

// rep folds alpha the way the right spine of a repetition node does, then
// replicates the single decision.
func (d *SCDecoder[T]) rep(alpha []T, beta []uint8, depth int) {
	s := d.alpha[depth-1]
	h := len(s)
	for i := 0; i < h; i++ {
		s[i] = d.k.g(alpha[i], alpha[i+h], 0)
	}
	for h /= 2; h >= 1; h /= 2 {
		for i := 0; i < h; i++ {
			s[i] = d.k.g(s[i], s[i+h], 0)
		}
	}
	bit := hd(s[0])
	for i := range beta {
		beta[i] = bit
	}
}

// parityCheck hard-decides every leaf and, on odd parity, flips the leaf the
// min-sum recursion considers least reliable. Equal magnitudes resolve the
// way the recursion resolves them: toward the right operand when its sign
// bit is set.
func (d *SCDecoder[T]) parityCheck(alpha []T, beta []uint8, depth int) {
	var parity uint8
	for i, a := range alpha {
		beta[i] = hd(a)
		parity ^= beta[i]
	}
	if parity == 0 {
		return
	}
	prev := alpha
	for lvl := depth - 1; lvl >= 0; lvl-- {
		d.k.combine(prev, d.alpha[lvl])
		prev = d.alpha[lvl]
	}
	j := 0
	for lvl := 1; lvl <= depth; lvl++ {
		x := alpha
		if lvl < depth {
			x = d.alpha[lvl]
		}
		h := 1 << (lvl - 1)
		a, b := abs(x[j]), abs(x[j+h])
		if b < a || (a == b && hd(x[j+h]) == 1) {
			j += h
		}
	}
	beta[j] ^= 1
}
