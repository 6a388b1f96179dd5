package report

import (
	"bufio"
	"io"
	"time"

	"github.com/francoispqt/gojay"

	"github.com/observe-l/polarsim/internal/sim"
)

// Line is one JSONL record, a finished channel point of a run.
type Line struct {
	RunID       string
	Name        string
	N, K, NPct  int
	Point       float64
	Sigma       float64
	Frames      int64
	BitErrors   int64
	FrameErrors int64
	BER, FER    float64
	ElapsedMS   int64
}

// NewLine flattens p with the identity of its run.
func NewLine(runID string, cfg sim.Config, p sim.PointResult) *Line {
	nPct := cfg.Code.NPct
	if nPct == 0 {
		nPct = cfg.Code.N
	}
	return &Line{
		RunID:       runID,
		Name:        cfg.Name,
		N:           cfg.Code.N,
		K:           cfg.Code.K,
		NPct:        nPct,
		Point:       p.Point,
		Sigma:       p.Sigma,
		Frames:      p.Frames,
		BitErrors:   p.BitErrors,
		FrameErrors: p.FrameErrors,
		BER:         p.BER(),
		FER:         p.FER(),
		ElapsedMS:   p.Elapsed.Milliseconds(),
	}
}

func (l *Line) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("run_id", l.RunID)
	enc.StringKey("name", l.Name)
	enc.IntKey("N", l.N)
	enc.IntKey("K", l.K)
	enc.IntKey("N_pct", l.NPct)
	enc.Float64Key("point", l.Point)
	enc.Float64Key("sigma", l.Sigma)
	enc.Int64Key("frames", l.Frames)
	enc.Int64Key("bit_errors", l.BitErrors)
	enc.Int64Key("frame_errors", l.FrameErrors)
	enc.Float64Key("ber", l.BER)
	enc.Float64Key("fer", l.FER)
	enc.Int64Key("elapsed_ms", l.ElapsedMS)
}

func (l *Line) IsNil() bool { return l == nil }

func (l *Line) UnmarshalJSONObject(dec *gojay.Decoder, key string) error {
	switch key {
	case "run_id":
		return dec.String(&l.RunID)
	case "name":
		return dec.String(&l.Name)
	case "N":
		return dec.Int(&l.N)
	case "K":
		return dec.Int(&l.K)
	case "N_pct":
		return dec.Int(&l.NPct)
	case "point":
		return dec.Float64(&l.Point)
	case "sigma":
		return dec.Float64(&l.Sigma)
	case "frames":
		return dec.Int64(&l.Frames)
	case "bit_errors":
		return dec.Int64(&l.BitErrors)
	case "frame_errors":
		return dec.Int64(&l.FrameErrors)
	case "ber":
		return dec.Float64(&l.BER)
	case "fer":
		return dec.Float64(&l.FER)
	case "elapsed_ms":
		return dec.Int64(&l.ElapsedMS)
	}
	return nil
}

func (l *Line) NKeys() int { return 0 }

// Elapsed returns ElapsedMS as a duration.
func (l *Line) Elapsed() time.Duration { return time.Duration(l.ElapsedMS) * time.Millisecond }

// JSONLWriter appends one object per line.
type JSONLWriter struct {
	w   io.Writer
	cfg sim.Config
}

func NewJSONLWriter(w io.Writer, cfg sim.Config) *JSONLWriter {
	return &JSONLWriter{w: w, cfg: cfg}
}

// WritePoint has the sim.WithObserver signature.
func (j *JSONLWriter) WritePoint(runID string, p sim.PointResult) error {
	enc := gojay.BorrowEncoder(j.w)
	defer enc.Release()
	if err := enc.EncodeObject(NewLine(runID, j.cfg, p)); err != nil {
		return err
	}
	_, err := io.WriteString(j.w, "\n")
	return err
}

// ReadJSONL decodes every non-empty line of r.
func ReadJSONL(r io.Reader) ([]*Line, error) {
	var out []*Line
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		l := &Line{}
		if err := gojay.UnmarshalJSONObject(b, l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, sc.Err()
}
