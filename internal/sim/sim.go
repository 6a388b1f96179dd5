// Package sim runs bit and frame error rate simulations of a polar codec:
// source, crc, encoder, rate matcher, BPSK, channel, demodulator, decoder
// and error counting, one errgroup worker pool per channel point.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/observe-l/polarsim/fec"
	"github.com/observe-l/polarsim/internal/channel"
)

// Result is one finished run.
type Result struct {
	RunID   string
	Name    string
	Started time.Time
	Config  Config
	Points  []PointResult
}

// Option configures a Simulator.
type Option func(*Simulator)

func WithLogger(l *zap.Logger) Option { return func(s *Simulator) { s.log = l } }

func WithMetrics(m *Metrics) Option { return func(s *Simulator) { s.metrics = m } }

// WithObserver registers a callback invoked after every finished point, on
// the goroutine that called Run.
func WithObserver(fn func(runID string, p PointResult) error) Option {
	return func(s *Simulator) { s.observers = append(s.observers, fn) }
}

type Simulator struct {
	cfg       Config
	log       *zap.Logger
	metrics   *Metrics
	observers []func(runID string, p PointResult) error
}

// New validates cfg. Defaults must already be applied.
func New(cfg Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{cfg: cfg, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Run simulates every channel point in order. It stops at the first error
// or when ctx is done.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:   uuid.NewString(),
		Name:    s.cfg.Name,
		Started: time.Now(),
		Config:  s.cfg,
	}
	log := s.log.With(zap.String("run_id", res.RunID), zap.String("name", s.cfg.Name))
	log.Info("simulation started",
		zap.Int("N", s.cfg.Code.N), zap.Int("K", s.cfg.Code.K), zap.Int("workers", s.cfg.Workers),
		zap.String("channel", s.cfg.Channel.Kind), zap.String("precision", s.cfg.Precision))

	var err error
	if s.cfg.Precision == "float64" {
		err = runPoints[float64](ctx, s, res, log)
	} else {
		err = runPoints[float32](ctx, s, res, log)
	}
	if err != nil {
		return res, err
	}
	log.Info("simulation finished", zap.Duration("elapsed", time.Since(res.Started)))
	return res, nil
}

func runPoints[T fec.LLR](ctx context.Context, s *Simulator, res *Result, log *zap.Logger) error {
	cfg := s.cfg
	codec, err := fec.NewCodec[T](cfg.Code, fec.WithLogger(log))
	if err != nil {
		return err
	}
	sel, err := fec.ParseSelection(cfg.Decoder.Selection)
	if err != nil {
		return err
	}
	var crc *fec.CRC
	if cfg.Decoder.CRC != "" {
		if crc, err = fec.NewCRC(cfg.Decoder.CRC); err != nil {
			return err
		}
	}
	infoBits := cfg.InfoBits()
	rate := float64(infoBits) / float64(codec.NPct())

	for pi, point := range cfg.Channel.Points {
		if err := ctx.Err(); err != nil {
			return err
		}
		sigma, param := 0.0, point
		if cfg.Channel.Kind == ChannelAWGN {
			sigma = channel.SigmaFromEbN0(point, rate)
			param = sigma
			if codec.Method() == fec.MethodBEC {
				param = fec.ErasureFromSigma(sigma)
			}
		}
		if err := codec.OnSNRChange(param); err != nil {
			return err
		}

		mon := newMonitor(cfg.MaxFrames, cfg.MinFrameErrors)
		counters := s.metrics.forPoint(point)
		start := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < cfg.Workers; w++ {
			wk, err := newWorker[T](codec, cfg, sel, crc, sigma, point, cfg.Seed+int64(pi)*1_000_003+int64(w))
			if err != nil {
				return err
			}
			g.Go(func() error { return wk.run(gctx, mon, counters) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		pr := mon.result(point, sigma, infoBits, time.Since(start))
		res.Points = append(res.Points, pr)
		log.Info("point finished",
			zap.Float64("point", point), zap.Float64("sigma", sigma),
			zap.Int64("frames", pr.Frames), zap.Int64("frame_errors", pr.FrameErrors),
			zap.Float64("ber", pr.BER()), zap.Float64("fer", pr.FER()), zap.Duration("elapsed", pr.Elapsed))
		for _, fn := range s.observers {
			if err := fn(res.RunID, pr); err != nil {
				return fmt.Errorf("point %g: %w", point, err)
			}
		}
	}
	return nil
}

// worker owns one copy of every stateful component of the chain.
type worker[T fec.LLR] struct {
	enc  *fec.Encoder
	rm   *fec.RateMatcher[T]
	dec  fec.Decoder[T]
	crc  *fec.CRC
	rng  *rand.Rand
	awgn *channel.AWGN[T]
	bec  *channel.Erasure[T]

	sigma float64
	info  []uint8
	sym   []T
}

func newWorker[T fec.LLR](codec *fec.Codec[T], cfg Config, sel fec.Selection, crc *fec.CRC, sigma, point float64, seed int64) (*worker[T], error) {
	enc, err := codec.BuildEncoder()
	if err != nil {
		return nil, err
	}
	rm, err := codec.BuildPuncturer()
	if err != nil {
		return nil, err
	}
	var v fec.Validator
	if crc != nil {
		v = crc
	}
	dec, err := codec.BuildDecoder(cfg.Decoder.ListWidth, sel, v)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	w := &worker[T]{
		enc:   enc,
		rm:    rm,
		dec:   dec,
		crc:   crc,
		rng:   rng,
		sigma: sigma,
		info:  make([]uint8, cfg.InfoBits()),
		sym:   make([]T, codec.NPct()),
	}
	if cfg.Channel.Kind == ChannelBEC {
		w.bec = channel.NewErasure[T](point, rng)
	} else {
		w.awgn = channel.NewAWGN[T](sigma, rng)
	}
	return w, nil
}

func (w *worker[T]) run(ctx context.Context, mon *monitor, counters *pointCounters) error {
	for mon.next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		bitErrs, took, err := w.frame()
		if err != nil {
			return err
		}
		mon.add(bitErrs)
		counters.observe(bitErrs, took)
	}
	return nil
}

// frame pushes one random message through the chain and returns the
// information bit errors and the decoder time.
func (w *worker[T]) frame() (int, time.Duration, error) {
	for i := range w.info {
		w.info[i] = uint8(w.rng.Intn(2))
	}
	msg := w.info
	if w.crc != nil {
		msg = w.crc.Build(w.info)
	}
	x, err := w.enc.Encode(msg)
	if err != nil {
		return 0, 0, err
	}
	tx, err := w.rm.Puncture(x)
	if err != nil {
		return 0, 0, err
	}
	channel.Modulate(tx, w.sym)
	if w.bec != nil {
		w.bec.Transmit(w.sym)
	} else {
		w.awgn.Add(w.sym)
		channel.Demodulate(w.sym, w.sigma)
	}
	y, err := w.rm.Depuncture(w.sym)
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	out, err := w.dec.Decode(y)
	took := time.Since(start)
	if err != nil {
		return 0, 0, err
	}
	errs := 0
	for i, b := range w.info {
		if out.Message[i] != b {
			errs++
		}
	}
	return errs, took, nil
}
