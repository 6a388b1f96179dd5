package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/observe-l/polarsim/internal/report"
	"github.com/observe-l/polarsim/internal/sim"
	"github.com/observe-l/polarsim/internal/store"
)

var (
	configPath  string
	reportPath  string
	jsonlPath   string
	dbPath      string
	metricsAddr string
	logLevel    string
	debug       bool
	workers     int
	maxFrames   int64
	seed        int64

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "polar_bfer",
	Short: "Bit and frame error rate simulation of a polar code",
	Long: `Runs the source -> crc -> polar encoder -> rate matcher -> BPSK -> channel ->
polar decoder chain over every channel point of a YAML file and reports BER
and FER per point.

Example:
  polar_bfer --config sims/ca_scl_128.yaml --report docs/reports/ca_scl_128.md --db bfer.db`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(logLevel, debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runSimulation,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "simulation YAML file")
	f.StringVar(&reportPath, "report", "", "markdown report path (timestamp appended)")
	f.StringVar(&jsonlPath, "jsonl", "", "append one JSON line per finished point to this file")
	f.StringVar(&dbPath, "db", "", "sqlite database receiving every finished point")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9102")
	f.IntVar(&workers, "workers", 0, "override the worker count of the file")
	f.Int64Var(&maxFrames, "max-frames", 0, "override max_frames of the file")
	f.Int64Var(&seed, "seed", 0, "override the seed of the file")
	_ = rootCmd.MarkFlagRequired("config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "human readable development logging")
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if dev {
		config = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	return config.Build()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := sim.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", configPath, err)
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if maxFrames > 0 {
		cfg.MaxFrames = maxFrames
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []sim.Option{sim.WithLogger(logger)}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, sim.WithMetrics(sim.NewMetrics(reg)))
		srv := serveMetrics(metricsAddr, reg)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if jsonlPath != "" {
		if err := ensureDir(jsonlPath); err != nil {
			return err
		}
		jf, err := os.OpenFile(jsonlPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open jsonl: %w", err)
		}
		defer jf.Close()
		opts = append(opts, sim.WithObserver(report.NewJSONLWriter(jf, cfg).WritePoint))
	}

	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, sim.WithObserver(st.Recorder(ctx, cfg).SavePoint))
	}

	s, err := sim.New(cfg, opts...)
	if err != nil {
		return err
	}
	res, runErr := s.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		logger.Warn("simulation interrupted, reporting finished points", zap.Int("points", len(res.Points)))
	}

	if reportPath != "" && len(res.Points) > 0 {
		ts := res.Started.Format("20060102_150405")
		mdPath := strings.TrimSuffix(reportPath, ".md") + "_" + ts + ".md"
		if err := writeReport(mdPath, res); err != nil {
			return fmt.Errorf("write md: %w", err)
		}
		logger.Info("report written", zap.String("path", mdPath))
	}
	return runErr
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

func writeReport(path string, res *sim.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteMarkdown(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("polar_bfer failed", zap.Error(err))
			_ = logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
