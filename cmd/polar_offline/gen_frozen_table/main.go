package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/observe-l/polarsim/fec"
)

var (
	n          int
	kList      string
	method     string
	noiseStart float64
	noiseEnd   float64
	noiseStep  float64
	outDir     string
	binary     bool
	workers    int
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gen_frozen_table",
	Short: "Write frozen-bit tables for an (N, K, noise) grid",
	Long: `Computes the reliability order of every (N, K, noise) point of the grid and
writes it as polar_fb_N<N>_K<K>_s<milli>.{txt,fb} under --out, where the FILE
construction method finds it.

Channel-independent methods (PW) ignore the noise range and write one table per K.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := parseIntList(kList)
		if err != nil {
			return err
		}
		m, err := fec.ParseMethod(method)
		if err != nil {
			return err
		}
		if m == fec.MethodFile {
			return fmt.Errorf("%w: FILE cannot generate tables", fec.ErrConfiguration)
		}
		jobs := buildJobs(n, ks, m, noiseStart, noiseEnd, noiseStep)
		paths, err := generate(cmd.Context(), jobs, outDir, binary, workers)
		if err != nil {
			return err
		}
		logger.Info("tables written", zap.Int("count", len(paths)), zap.String("dir", outDir))
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.IntVar(&n, "N", 1024, "block size (power of two)")
	f.StringVar(&kList, "K", "512", "comma-separated information lengths")
	f.StringVar(&method, "method", "GA", "GA, BHATTACHARYYA, BEC or PW")
	f.Float64Var(&noiseStart, "noise-start", 0.5, "sigma (or erasure probability for BEC) range start")
	f.Float64Var(&noiseEnd, "noise-end", 1.0, "noise range end (inclusive)")
	f.Float64Var(&noiseStep, "noise-step", 0.05, "noise step")
	f.StringVar(&outDir, "out", "tables", "output directory")
	f.BoolVar(&binary, "binary", false, "write .fb records instead of text")
	f.IntVar(&workers, "workers", runtime.NumCPU(), "parallel generators")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

type job struct {
	method fec.Method
	n, k   int
	noise  float64
}

func buildJobs(n int, ks []int, m fec.Method, start, end, step float64) []job {
	noises := []float64{0}
	if m.ChannelDependent() {
		noises = noiseGrid(start, end, step)
	}
	var jobs []job
	for _, k := range ks {
		for _, s := range noises {
			jobs = append(jobs, job{method: m, n: n, k: k, noise: s})
		}
	}
	return jobs
}

// noiseGrid enumerates [start, end] and rounds to the milli bucket the
// loader keys tables by.
func noiseGrid(start, end, step float64) []float64 {
	if step <= 0 {
		step = 0.05
	}
	var out []float64
	for v := start; v <= end+1e-12; v += step {
		if vv := math.Round(v*1e3) / 1e3; vv > 0 {
			out = append(out, vv)
		}
	}
	sort.Float64s(out)
	return uniqueFloat64(out)
}

func uniqueFloat64(a []float64) []float64 {
	if len(a) == 0 {
		return a
	}
	out := []float64{a[0]}
	for i := 1; i < len(a); i++ {
		if math.Abs(a[i]-out[len(out)-1]) > 1e-9 {
			out = append(out, a[i])
		}
	}
	return out
}

func generate(ctx context.Context, jobs []job, dir string, binaryFormat bool, workers int) ([]string, error) {
	paths := make([]string, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var opts []fec.GeneratorOption
			if j.method.ChannelDependent() {
				opts = append(opts, fec.WithNoise(j.noise))
			}
			gen, err := fec.NewGenerator(string(j.method), j.n, j.k, opts...)
			if err != nil {
				return err
			}
			if _, err := gen.Generate(); err != nil {
				return fmt.Errorf("N=%d K=%d noise=%g: %w", j.n, j.k, j.noise, err)
			}
			p, err := fec.SaveTable(dir, &fec.FrozenTable{Order: gen.Order()}, j.n, j.k, j.noise, binaryFormat)
			if err != nil {
				return err
			}
			paths[i] = p
			if logger != nil {
				logger.Debug("table written", zap.String("path", p), zap.String("method", string(j.method)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad K %q: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty K list", fec.ErrConfiguration)
	}
	return out, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("gen_frozen_table failed", zap.Error(err))
			_ = logger.Sync()
		}
		os.Exit(1)
	}
}
