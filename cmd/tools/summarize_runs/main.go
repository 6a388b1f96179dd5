package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/observe-l/polarsim/internal/report"
	"github.com/observe-l/polarsim/internal/store"
)

var (
	dbPath   string
	jsonl    []string
	outPath  string
	top      int
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "summarize_runs",
	Short: "Summarize stored BFER points into a worst-cases markdown table per N",
	Long: `Collects finished channel points from a result database (--db) and from
JSONL result files (--jsonl), groups them by code length and lists the
--top points with the highest frame error rate for every N.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := zap.ParseAtomicLevel(logLevel)
		if err != nil {
			return err
		}
		zc := zap.NewProductionConfig()
		zc.Level = lvl
		logger, err := zc.Build()
		if err != nil {
			return err
		}
		defer logger.Sync()

		rows, err := collect(cmd.Context(), dbPath, jsonl)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("no points found")
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", filepath.Dir(outPath), err)
		}
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := writeSummary(f, rows, top); err != nil {
			return err
		}
		logger.Info("summary written", zap.String("path", outPath), zap.Int("points", len(rows)))
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&dbPath, "db", "", "result database written by polar_bfer --db")
	f.StringSliceVar(&jsonl, "jsonl", nil, "JSONL result files written by polar_bfer --jsonl")
	f.StringVar(&outPath, "out", "docs/reports/summary.md", "output markdown path")
	f.IntVar(&top, "top", 10, "worst points per N")
	f.StringVar(&logLevel, "log-level", "info", "log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// collect merges the points of every stored run and every JSONL file.
// A (run, point) pair seen twice keeps its first occurrence.
func collect(ctx context.Context, db string, files []string) ([]*report.Line, error) {
	type key struct {
		run   string
		point float64
	}
	seen := map[key]bool{}
	var out []*report.Line
	add := func(l *report.Line) {
		k := key{l.RunID, l.Point}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, l)
	}

	if db != "" {
		st, err := store.Open(db)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		runs, err := st.Runs(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			pts, err := st.Points(ctx, r.RunID)
			if err != nil {
				return nil, err
			}
			for _, p := range pts {
				add(&report.Line{
					RunID: r.RunID, Name: r.Name, N: r.N, K: r.K,
					Point: p.Point, Sigma: p.Sigma,
					Frames: p.Frames, BitErrors: p.BitErrors, FrameErrors: p.FrameErrors,
					BER: p.BER(), FER: p.FER(),
				})
			}
		}
	}
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		lines, err := report.ReadJSONL(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		for _, l := range lines {
			add(l)
		}
	}
	return out, nil
}

func writeSummary(out io.Writer, rows []*report.Line, top int) error {
	byN := map[int][]*report.Line{}
	for _, r := range rows {
		byN[r.N] = append(byN[r.N], r)
	}
	ns := make([]int, 0, len(byN))
	for n := range byN {
		ns = append(ns, n)
	}
	sort.Ints(ns)

	w := bufio.NewWriter(out)
	fmt.Fprintln(w, "# BFER summary (worst points by N)")
	fmt.Fprintln(w, "")
	for _, n := range ns {
		items := byN[n]
		sort.Slice(items, func(i, j int) bool {
			if items[i].FER != items[j].FER {
				return items[i].FER > items[j].FER
			}
			if items[i].K != items[j].K {
				return items[i].K < items[j].K
			}
			return items[i].Point < items[j].Point
		})
		limit := top
		if len(items) < limit {
			limit = len(items)
		}
		fmt.Fprintf(w, "## N=%d\n\n", n)
		fmt.Fprintln(w, "| run | K | point | frames | FER | BER |")
		fmt.Fprintln(w, "|---|---:|---:|---:|---:|---:|")
		for _, it := range items[:limit] {
			fmt.Fprintf(w, "| %s | %d | %.3f | %d | %.3e | %.3e |\n", it.Name, it.K, it.Point, it.Frames, it.FER, it.BER)
		}
		fmt.Fprintln(w, "")
	}
	return w.Flush()
}
