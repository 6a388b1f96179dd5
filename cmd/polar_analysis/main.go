package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/francoispqt/gojay"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/observe-l/polarsim/fec"
)

var (
	nsFlag    string
	ratesFlag string
	sigma     float64
	eps       float64
	tau       float64
	outDir    string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "polar_analysis",
	Short: "Dump bit-channel reliabilities and decoding-tree pattern statistics",
	Long: `For every N of --Ns and every construction method, writes the per-channel
reliability scores, the polarization of the Bhattacharyya parameters and,
for every rate of --rates, the number of Rate-0, Rate-1, repetition, SPC and
general nodes the SC decoder visits.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = zap.NewProduction()
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, err := parseIntList(nsFlag)
		if err != nil {
			return err
		}
		rates, err := parseFloatList(ratesFlag)
		if err != nil {
			return err
		}
		snap, err := analyze(ns, rates, noiseLevels{fec.MethodGA: sigma, fec.MethodBhattacharyya: sigma, fec.MethodBEC: eps, fec.MethodPW: 0}, tau)
		if err != nil {
			return err
		}
		if err := writeOutputs(outDir, snap); err != nil {
			return err
		}
		for _, p := range snap.Polarization {
			logger.Info("polarization",
				zap.String("method", string(p.Method)), zap.Int("N", p.N),
				zap.Float64("good", p.Good), zap.Float64("bad", p.Bad), zap.Float64("unpolarized", p.Unpolarized()))
		}
		logger.Info("analysis written", zap.String("dir", outDir))
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&nsFlag, "Ns", "64,256,1024", "comma-separated N list (powers of two)")
	f.StringVar(&ratesFlag, "rates", "0.25,0.5,0.75", "comma-separated code rates K/N")
	f.Float64Var(&sigma, "sigma", 0.8, "AWGN noise deviation for GA and BHATTACHARYYA")
	f.Float64Var(&eps, "eps", 0.3, "erasure probability for BEC")
	f.Float64Var(&tau, "tau", 0.1, "a channel is polarized when Z < tau or Z > 1 - tau")
	f.StringVar(&outDir, "out", "docs/reports", "output directory")
}

type noiseLevels map[fec.Method]float64

var methods = []fec.Method{fec.MethodGA, fec.MethodBhattacharyya, fec.MethodBEC, fec.MethodPW}

type channelScore struct {
	Method fec.Method
	N      int
	Index  int
	Score  float64
	Rank   int // 0 is the most reliable
}

type polarization struct {
	Method    fec.Method
	N         int
	Good, Bad float64 // fraction of channels with Z < tau and Z > 1 - tau
}

func (p polarization) Unpolarized() float64 { return 1 - p.Good - p.Bad }

type patternRow struct {
	Method fec.Method
	N, K   int
	Counts map[fec.Pattern]int
	Nodes  int // terminal nodes with SPC specialization
}

type snapshot struct {
	Timestamp    string
	Scores       []channelScore
	Polarization []polarization
	Patterns     []patternRow
}

func analyze(ns []int, rates []float64, noise noiseLevels, tau float64) (*snapshot, error) {
	snap := &snapshot{Timestamp: time.Now().Format(time.RFC3339)}
	for _, m := range methods {
		for _, n := range ns {
			rel, err := fec.Reliability(m, n, noise[m])
			if err != nil {
				return nil, fmt.Errorf("%s N=%d: %w", m, n, err)
			}
			rank := ranks(rel)
			for i, s := range rel {
				snap.Scores = append(snap.Scores, channelScore{Method: m, N: n, Index: i, Score: s, Rank: rank[i]})
			}
			if m == fec.MethodBhattacharyya || m == fec.MethodBEC {
				p := polarization{Method: m, N: n}
				for _, s := range rel {
					switch z := 1 / (1 + math.Exp(s)); {
					case z < tau:
						p.Good++
					case z > 1-tau:
						p.Bad++
					}
				}
				p.Good /= float64(n)
				p.Bad /= float64(n)
				snap.Polarization = append(snap.Polarization, p)
			}
			for _, r := range rates {
				k := int(math.Round(r * float64(n)))
				if k < 1 || k > n {
					continue
				}
				var opts []fec.GeneratorOption
				if m.ChannelDependent() {
					opts = append(opts, fec.WithNoise(noise[m]))
				}
				g, err := fec.NewGenerator(string(m), n, k, opts...)
				if err != nil {
					return nil, err
				}
				frozen, err := g.Generate()
				if err != nil {
					return nil, err
				}
				code, err := fec.NewCode(frozen, g.Order())
				if err != nil {
					return nil, err
				}
				snap.Patterns = append(snap.Patterns, patternRow{
					Method: m, N: n, K: k,
					Counts: code.PatternHistogram(),
					Nodes:  len(code.Terminals()),
				})
			}
		}
	}
	return snap, nil
}

// ranks maps each channel to its position in the reliability order, with the
// same tie rule as the generators.
func ranks(rel []float64) []int {
	idx := make([]int, len(rel))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if rel[idx[a]] == rel[idx[b]] {
			return idx[a] > idx[b]
		}
		return rel[idx[a]] > rel[idx[b]]
	})
	out := make([]int, len(rel))
	for r, i := range idx {
		out[i] = r
	}
	return out
}

func writeOutputs(dir string, snap *snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, "channel_reliability.csv"), []string{"method", "N", "index", "score", "rank"}, len(snap.Scores), func(i int) []string {
		s := snap.Scores[i]
		return []string{string(s.Method), strconv.Itoa(s.N), strconv.Itoa(s.Index), strconv.FormatFloat(s.Score, 'g', 8, 64), strconv.Itoa(s.Rank)}
	}); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, "polarization.csv"), []string{"method", "N", "good", "bad", "unpolarized"}, len(snap.Polarization), func(i int) []string {
		p := snap.Polarization[i]
		return []string{string(p.Method), strconv.Itoa(p.N), fmt.Sprintf("%.5f", p.Good), fmt.Sprintf("%.5f", p.Bad), fmt.Sprintf("%.5f", p.Unpolarized())}
	}); err != nil {
		return err
	}
	patterns := []fec.Pattern{fec.PatternRate0, fec.PatternRate1, fec.PatternRep, fec.PatternSPC, fec.PatternGeneral}
	header := []string{"method", "N", "K", "nodes"}
	for _, p := range patterns {
		header = append(header, p.String())
	}
	if err := writeCSV(filepath.Join(dir, "node_patterns.csv"), header, len(snap.Patterns), func(i int) []string {
		r := snap.Patterns[i]
		row := []string{string(r.Method), strconv.Itoa(r.N), strconv.Itoa(r.K), strconv.Itoa(r.Nodes)}
		for _, p := range patterns {
			row = append(row, strconv.Itoa(r.Counts[p]))
		}
		return row
	}); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "polar_analysis_summary.json"))
	if err != nil {
		return err
	}
	enc := gojay.NewEncoder(f)
	if err := enc.EncodeObject(snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(path string, header []string, rows int, row func(int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write(header)
	for i := 0; i < rows; i++ {
		_ = w.Write(row(i))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// The JSON summary carries the aggregate tables only; per-channel scores stay in the CSV.

func (s *snapshot) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("timestamp", s.Timestamp)
	enc.ArrayKey("polarization", polarizationList(s.Polarization))
	enc.ArrayKey("patterns", patternList(s.Patterns))
}

func (s *snapshot) IsNil() bool { return s == nil }

type polarizationList []polarization

func (l polarizationList) MarshalJSONArray(enc *gojay.Encoder) {
	for i := range l {
		enc.Object(&l[i])
	}
}

func (l polarizationList) IsNil() bool { return len(l) == 0 }

func (p *polarization) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("method", string(p.Method))
	enc.IntKey("N", p.N)
	enc.Float64Key("good", p.Good)
	enc.Float64Key("bad", p.Bad)
}

func (p *polarization) IsNil() bool { return p == nil }

type patternList []patternRow

func (l patternList) MarshalJSONArray(enc *gojay.Encoder) {
	for i := range l {
		enc.Object(&l[i])
	}
}

func (l patternList) IsNil() bool { return len(l) == 0 }

func (r *patternRow) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("method", string(r.Method))
	enc.IntKey("N", r.N)
	enc.IntKey("K", r.K)
	enc.IntKey("nodes", r.Nodes)
	for _, p := range []fec.Pattern{fec.PatternRate0, fec.PatternRate1, fec.PatternRep, fec.PatternSPC, fec.PatternGeneral} {
		enc.IntKey(p.String(), r.Counts[p])
	}
}

func (r *patternRow) IsNil() bool { return r == nil }

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad integer %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloatList(s string) ([]float64, error) {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("polar_analysis failed", zap.Error(err))
			_ = logger.Sync()
		}
		os.Exit(1)
	}
}
