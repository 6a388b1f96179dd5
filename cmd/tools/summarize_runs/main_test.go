package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observe-l/polarsim/fec"
	"github.com/observe-l/polarsim/internal/report"
	"github.com/observe-l/polarsim/internal/sim"
	"github.com/observe-l/polarsim/internal/store"
)

func TestCollectAndSummarize(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	short := sim.Config{Name: "short", Code: fec.CodecConfig{N: 64, K: 32}}
	long := sim.Config{Name: "long", Code: fec.CodecConfig{N: 256, K: 128}}

	db := filepath.Join(dir, "bfer.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.SavePoint(ctx, "r1", short, sim.PointResult{Point: 1, Frames: 100, FrameErrors: 50, InfoBits: 32}))
	require.NoError(t, st.SavePoint(ctx, "r1", short, sim.PointResult{Point: 2, Frames: 100, FrameErrors: 5, InfoBits: 32}))
	require.NoError(t, st.Close())

	var buf bytes.Buffer
	jw := report.NewJSONLWriter(&buf, long)
	require.NoError(t, jw.WritePoint("r2", sim.PointResult{Point: 1, Frames: 200, FrameErrors: 20, InfoBits: 128}))
	// Same run and point as the database copy.
	require.NoError(t, report.NewJSONLWriter(&buf, short).WritePoint("r1", sim.PointResult{Point: 2, Frames: 1, InfoBits: 32}))
	path := filepath.Join(dir, "points.jsonl")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	rows, err := collect(ctx, db, []string{path})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	var out strings.Builder
	require.NoError(t, writeSummary(&out, rows, 1))
	s := out.String()
	assert.Contains(t, s, "## N=64")
	assert.Contains(t, s, "## N=256")
	assert.Less(t, strings.Index(s, "## N=64"), strings.Index(s, "## N=256"))
	assert.Contains(t, s, "| short | 32 | 1.000 | 100 | 5.000e-01 |")
	assert.NotContains(t, s, "| short | 32 | 2.000 |")
	assert.Contains(t, s, "| long | 128 | 1.000 | 200 | 1.000e-01 |")

	_, err = collect(ctx, "", []string{filepath.Join(dir, "missing.jsonl")})
	assert.Error(t, err)
}
