// Package store keeps simulation points in a sqlite database so that runs
// can be compared after the fact.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/observe-l/polarsim/internal/sim"
)

type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS bfer_points (
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		n INTEGER NOT NULL,
		k INTEGER NOT NULL,
		n_pct INTEGER NOT NULL,
		method TEXT NOT NULL,
		decoder TEXT NOT NULL,
		channel TEXT NOT NULL,
		point REAL NOT NULL,
		sigma REAL NOT NULL,
		frames INTEGER NOT NULL,
		bit_errors INTEGER NOT NULL,
		frame_errors INTEGER NOT NULL,
		info_bits INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, point)
	);
	CREATE INDEX IF NOT EXISTS idx_points_code ON bfer_points(n, k, n_pct);`)
	return err
}

// Recorder binds a store to the configuration of one run.
type Recorder struct {
	s   *Store
	ctx context.Context
	cfg sim.Config
}

func (s *Store) Recorder(ctx context.Context, cfg sim.Config) *Recorder {
	return &Recorder{s: s, ctx: ctx, cfg: cfg}
}

// SavePoint has the sim.WithObserver signature.
func (r *Recorder) SavePoint(runID string, p sim.PointResult) error {
	return r.s.SavePoint(r.ctx, runID, r.cfg, p)
}

// SavePoint inserts or replaces the row of (runID, p.Point).
func (s *Store) SavePoint(ctx context.Context, runID string, cfg sim.Config, p sim.PointResult) error {
	nPct := cfg.Code.NPct
	if nPct == 0 {
		nPct = cfg.Code.N
	}
	decoder := fmt.Sprintf("L=%d sel=%s crc=%s op=%s", cfg.Decoder.ListWidth, cfg.Decoder.Selection, cfg.Decoder.CRC, cfg.Code.Operator)
	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO bfer_points
		(run_id, name, n, k, n_pct, method, decoder, channel, point, sigma,
		 frames, bit_errors, frame_errors, info_bits, elapsed_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, cfg.Name, cfg.Code.N, cfg.Code.K, nPct, cfg.Code.Method, decoder, cfg.Channel.Kind,
		p.Point, p.Sigma, p.Frames, p.BitErrors, p.FrameErrors, p.InfoBits, p.Elapsed.Milliseconds(),
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save point %g of run %s: %w", p.Point, runID, err)
	}
	return nil
}

// Points returns the rows of a run in ascending point order.
func (s *Store) Points(ctx context.Context, runID string) ([]sim.PointResult, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT point, sigma, frames, bit_errors, frame_errors, info_bits, elapsed_ms
	FROM bfer_points WHERE run_id = ? ORDER BY point`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []sim.PointResult
	for rows.Next() {
		var p sim.PointResult
		var ms int64
		if err := rows.Scan(&p.Point, &p.Sigma, &p.Frames, &p.BitErrors, &p.FrameErrors, &p.InfoBits, &ms); err != nil {
			return nil, err
		}
		p.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, p)
	}
	return out, rows.Err()
}

// RunSummary is one row of Runs.
type RunSummary struct {
	RunID  string
	Name   string
	N, K   int
	Points int
}

// Runs lists every stored run, most recent first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT run_id, name, n, k, COUNT(*), MAX(created_at) AS last
	FROM bfer_points GROUP BY run_id, name, n, k ORDER BY last DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var last any
		if err := rows.Scan(&r.RunID, &r.Name, &r.N, &r.K, &r.Points, &last); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
