package sim

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the simulation counters exported to prometheus. The point
// label carries Eb/N0 in dB or the erasure probability.
type Metrics struct {
	frames      *prometheus.CounterVec
	bitErrors   *prometheus.CounterVec
	frameErrors *prometheus.CounterVec
	decode      prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polarsim_frames_total",
			Help: "Simulated frames.",
		}, []string{"point"}),
		bitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polarsim_bit_errors_total",
			Help: "Information bit errors after decoding.",
		}, []string{"point"}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polarsim_frame_errors_total",
			Help: "Frames with at least one information bit error.",
		}, []string{"point"}),
		decode: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "polarsim_decode_seconds",
			Help:    "Time spent in one decoder call.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
	reg.MustRegister(m.frames, m.bitErrors, m.frameErrors, m.decode)
	return m
}

// pointCounters binds the label once per point so workers avoid the label
// lookup on every frame.
type pointCounters struct {
	frames, bitErrors, frameErrors prometheus.Counter
	decode                         prometheus.Histogram
}

func (m *Metrics) forPoint(p float64) *pointCounters {
	if m == nil {
		return nil
	}
	l := strconv.FormatFloat(p, 'g', -1, 64)
	return &pointCounters{
		frames:      m.frames.WithLabelValues(l),
		bitErrors:   m.bitErrors.WithLabelValues(l),
		frameErrors: m.frameErrors.WithLabelValues(l),
		decode:      m.decode,
	}
}

func (c *pointCounters) observe(bitErrs int, decode time.Duration) {
	if c == nil {
		return
	}
	c.frames.Inc()
	c.decode.Observe(decode.Seconds())
	if bitErrs > 0 {
		c.bitErrors.Add(float64(bitErrs))
		c.frameErrors.Inc()
	}
}
