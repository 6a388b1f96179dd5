package sim

import (
	"sync/atomic"
	"time"
)

// PointResult holds the counters of one channel point.
type PointResult struct {
	Point       float64       // Eb/N0 in dB or erasure probability
	Sigma       float64       // noise deviation, 0 on the erasure channel
	Frames      int64
	BitErrors   int64
	FrameErrors int64
	InfoBits    int
	Elapsed     time.Duration
}

// BER is the information bit error rate.
func (p PointResult) BER() float64 {
	if p.Frames == 0 || p.InfoBits == 0 {
		return 0
	}
	return float64(p.BitErrors) / float64(p.Frames*int64(p.InfoBits))
}

// FER is the frame error rate.
func (p PointResult) FER() float64 {
	if p.Frames == 0 {
		return 0
	}
	return float64(p.FrameErrors) / float64(p.Frames)
}

// monitor is shared by the workers of one point. Frames are handed out as
// tickets so the point never exceeds maxFrames.
type monitor struct {
	maxFrames, minFrameErrors int64

	tickets     atomic.Int64
	frames      atomic.Int64
	bitErrors   atomic.Int64
	frameErrors atomic.Int64
}

func newMonitor(maxFrames, minFrameErrors int64) *monitor {
	return &monitor{maxFrames: maxFrames, minFrameErrors: minFrameErrors}
}

// next reserves one frame; false once either stop rule holds.
func (m *monitor) next() bool {
	if m.minFrameErrors > 0 && m.frameErrors.Load() >= m.minFrameErrors {
		return false
	}
	return m.tickets.Add(1) <= m.maxFrames
}

func (m *monitor) add(bitErrs int) {
	m.frames.Add(1)
	if bitErrs > 0 {
		m.bitErrors.Add(int64(bitErrs))
		m.frameErrors.Add(1)
	}
}

func (m *monitor) result(point, sigma float64, infoBits int, elapsed time.Duration) PointResult {
	return PointResult{
		Point:       point,
		Sigma:       sigma,
		Frames:      m.frames.Load(),
		BitErrors:   m.bitErrors.Load(),
		FrameErrors: m.frameErrors.Load(),
		InfoBits:    infoBits,
		Elapsed:     elapsed,
	}
}
