package fec

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// CodecConfig describes one polar operating point.
type CodecConfig struct {
	N            int     `yaml:"n"`
	K            int     `yaml:"k"`
	NPct         int     `yaml:"n_pct"`         // transmitted length, 0 means N
	Method       string  `yaml:"method"`        // GA, BHATTACHARYYA, BEC, PW, FILE
	Sigma        float64 `yaml:"design_sigma"`  // AWGN deviation; > 0 pins the construction, 0 follows OnSNRChange
	TableDir     string  `yaml:"table_dir"`     // FILE method
	RateMatching string  `yaml:"rate_matching"` // puncture or shorten
	Systematic   bool    `yaml:"systematic"`
	Operator     string  `yaml:"operator"` // minsum or exact
}

// CodecOption configures NewCodec.
type CodecOption func(*codecOptions)

type codecOptions struct {
	log    *zap.Logger
	loader TableLoader
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) CodecOption {
	return func(o *codecOptions) { o.log = l }
}

// WithLoader overrides the DirLoader built from TableDir.
func WithLoader(l TableLoader) CodecOption {
	return func(o *codecOptions) { o.loader = l }
}

// Codec owns the frozen-bit generator and the current Code of one
// (K, N, N_pct) point. Regeneration swaps in a new Code under the write
// lock; builders take the read lock and capture the Code current at that
// moment, so components built before an SNR change keep working on their
// own mask.
type Codec[T LLR] struct {
	log *zap.Logger

	n, k, nPct int
	method     Method
	pinned     bool
	systematic bool
	op         Operator
	rmMode     RateMatchMode

	mu   sync.RWMutex
	gen  Generator
	code *Code
}

// NewCodec validates cfg and, unless the method waits for a noise level,
// generates the first mask.
func NewCodec[T LLR](cfg CodecConfig, opts ...CodecOption) (*Codec[T], error) {
	o := codecOptions{log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	if cfg.NPct == 0 {
		cfg.NPct = cfg.N
	}
	if err := checkNK(cfg.N, cfg.K); err != nil {
		return nil, err
	}
	if cfg.NPct < cfg.K || cfg.NPct > cfg.N {
		return nil, fmt.Errorf("%w: N_pct=%d incompatible with N=%d K=%d", ErrConfiguration, cfg.NPct, cfg.N, cfg.K)
	}
	method, err := ParseMethod(cfg.Method)
	if err != nil {
		return nil, err
	}
	op, err := ParseOperator(cfg.Operator)
	if err != nil {
		return nil, err
	}
	rm, err := ParseRateMatchMode(cfg.RateMatching)
	if err != nil {
		return nil, err
	}
	var gopts []GeneratorOption
	switch {
	case cfg.Sigma > 0 && method == MethodBEC:
		gopts = append(gopts, WithNoise(ErasureFromSigma(cfg.Sigma)))
	case cfg.Sigma > 0:
		gopts = append(gopts, WithNoise(cfg.Sigma))
	}
	if method == MethodFile {
		loader := o.loader
		if loader == nil {
			loader = DirLoader{Dir: cfg.TableDir}
		}
		gopts = append(gopts, WithTableLoader(loader))
	}
	// The generator ranks all N channels; the rate matcher picks K of them.
	gen, err := NewGenerator(string(method), cfg.N, cfg.K, gopts...)
	if err != nil {
		return nil, err
	}
	c := &Codec[T]{
		log:        o.log.With(zap.Int("N", cfg.N), zap.Int("K", cfg.K), zap.Int("N_pct", cfg.NPct), zap.String("method", string(method))),
		n:          cfg.N,
		k:          cfg.K,
		nPct:       cfg.NPct,
		method:     method,
		pinned:     cfg.Sigma > 0,
		systematic: cfg.Systematic,
		op:         op,
		rmMode:     rm,
		gen:        gen,
	}
	if !method.ChannelDependent() || c.pinned {
		if err := c.regenerate(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Codec[T]) N() int { return c.n }
func (c *Codec[T]) K() int { return c.k }
func (c *Codec[T]) NPct() int { return c.nPct }
func (c *Codec[T]) Operator() Operator { return c.op }
func (c *Codec[T]) Systematic() bool { return c.systematic }
func (c *Codec[T]) Method() Method { return c.method }

// Adaptive reports whether OnSNRChange rebuilds the mask.
func (c *Codec[T]) Adaptive() bool { return c.method.ChannelDependent() && !c.pinned }

// OnSNRChange moves the codec to a new noise level. Adaptive codecs build a
// new mask; callers must not dispatch decodes for the new point until it returns.
func (c *Codec[T]) OnSNRChange(sigma float64) error {
	if !c.Adaptive() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen.SetNoise(sigma)
	if err := c.regenerate(); err != nil {
		return err
	}
	c.log.Debug("frozen bits regenerated", zap.Float64("sigma", sigma))
	return nil
}

// regenerate replaces the Code; callers hold mu.
func (c *Codec[T]) regenerate() error {
	frozen, err := c.gen.Generate()
	if err != nil {
		return err
	}
	order := c.gen.Order()
	if c.nPct != c.n {
		rm, err := NewRateMatcher[T](c.n, c.k, c.nPct, c.rmMode)
		if err != nil {
			return err
		}
		if frozen, err = rm.Freeze(order); err != nil {
			return err
		}
	}
	code, err := NewCode(frozen, order)
	if err != nil {
		return err
	}
	c.code = code
	c.log.Debug("frozen bits generated", zap.Int("info_bits", code.k), zap.Ints("info", code.info))
	return nil
}

// Code returns the current Code.
func (c *Codec[T]) Code() (*Code, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.code == nil {
		return nil, fmt.Errorf("%w: frozen bits not generated, call OnSNRChange first", ErrConfiguration)
	}
	return c.code, nil
}

// BuildEncoder returns an encoder bound to the current Code.
func (c *Codec[T]) BuildEncoder() (*Encoder, error) {
	code, err := c.Code()
	if err != nil {
		return nil, err
	}
	return NewEncoder(code, c.systematic)
}

// BuildPuncturer returns the rate matcher; identity when N_pct == N.
func (c *Codec[T]) BuildPuncturer() (*RateMatcher[T], error) {
	return NewRateMatcher[T](c.n, c.k, c.nPct, c.rmMode)
}

// BuildDecoder returns the SC engine for list width 1 with min-metric
// selection, and a list decoder otherwise.
func (c *Codec[T]) BuildDecoder(listWidth int, sel Selection, crc Validator) (Decoder[T], error) {
	if listWidth < 1 {
		return nil, fmt.Errorf("%w: list width %d", ErrConfiguration, listWidth)
	}
	code, err := c.Code()
	if err != nil {
		return nil, err
	}
	if listWidth == 1 && sel == SelectMinMetric {
		sc, err := NewSCDecoder[T](code, c.op, WithSystematic(c.systematic))
		if err != nil {
			return nil, err
		}
		return sc, nil
	}
	scl, err := NewSCLDecoder[T](code, c.op, listWidth, sel, crc, WithSystematic(c.systematic))
	if err != nil {
		return nil, err
	}
	return scl, nil
}

// Split partitions N soft values into the information positions (K values)
// and the frozen positions (N-K values), both in increasing position order.
func (c *Codec[T]) Split(y []T) (sys, par []T, err error) {
	code, err := c.Code()
	if err != nil {
		return nil, nil, err
	}
	if len(y) != code.n {
		return nil, nil, fmt.Errorf("%w: got %d soft values, want %d", ErrLengthMismatch, len(y), code.n)
	}
	sys = make([]T, 0, code.k)
	par = make([]T, 0, code.n-code.k)
	for i, v := range y {
		if code.frozen[i] {
			par = append(par, v)
		} else {
			sys = append(sys, v)
		}
	}
	return sys, par, nil
}
