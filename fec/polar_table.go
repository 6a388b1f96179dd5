package fec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/observe-l/polarsim/internal/fecwire"
)

// FrozenTable is a precomputed construction: either a reliability order
// (most reliable first) or an explicit mask (true = frozen).
type FrozenTable struct {
	Order []int
	Mask  []bool
}

// TableLoader supplies frozen tables keyed by (N, K) and optionally a sigma bucket.
type TableLoader interface {
	LoadTable(n, k int, sigma float64) (*FrozenTable, error)
}

// IndexFile is the universal reliability sequence DirLoader falls back to
// when no per-(N, K) table exists.
const IndexFile = "encoding_index.bin"

// DirLoader looks tables up in a directory by the names TablePath produces.
// Binary files win over text files, and a sigma bucket wins over the plain key.
// A directory-wide IndexFile serves every (N, K) not found.
type DirLoader struct {
	Dir string
}

func (l DirLoader) LoadTable(n, k int, sigma float64) (*FrozenTable, error) {
	var tried []string
	sigmas := []float64{0}
	if sigma > 0 {
		sigmas = []float64{sigma, 0}
	}
	for _, s := range sigmas {
		for _, ext := range []string{".fb", ".txt"} {
			p := TablePath(l.Dir, n, k, s, ext)
			tried = append(tried, p)
			f, err := os.Open(p)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			var t *FrozenTable
			if ext == ".fb" {
				t, err = ReadBinaryTable(f, n, k)
			} else {
				t, err = ReadTextTable(f, n)
			}
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
			return t, nil
		}
	}
	p := filepath.Join(l.dir(), IndexFile)
	tried = append(tried, p)
	f, err := os.Open(p)
	if err == nil {
		defer f.Close()
		t, err := ReadIndexTable(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		return t, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: no frozen table for N=%d K=%d (tried %s)", ErrConfiguration, n, k, strings.Join(tried, ", "))
}

func (l DirLoader) dir() string {
	if l.Dir == "" {
		return "tables"
	}
	return l.Dir
}

// TablePath returns the table filename for (N, K), with a sigma bucket suffix when sigma > 0.
func TablePath(dir string, n, k int, sigma float64, ext string) string {
	if dir == "" {
		dir = "tables"
	}
	name := "polar_fb_N" + strconv.Itoa(n) + "_K" + strconv.Itoa(k)
	if sigma > 0 {
		name += "_s" + strconv.Itoa(sigmaBucket(sigma))
	}
	return filepath.Join(dir, name+ext)
}

func sigmaBucket(sigma float64) int { return int(math.Round(sigma * 1000)) }

// ReadTextTable parses one of three layouts, with '#' comments and blank lines skipped:
// "index rank" lines (larger rank is more reliable), one index per line
// (most reliable first), or a single line of n '0'/'1' characters (1 = frozen).
func ReadTextTable(r io.Reader, n int) (*FrozenTable, error) {
	var lines []string
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty frozen table", ErrConfiguration)
	}
	if len(lines) == 1 && len(lines[0]) == n && strings.Trim(lines[0], "01") == "" {
		mask := make([]bool, n)
		for i, c := range lines[0] {
			mask[i] = c == '1'
		}
		return &FrozenTable{Mask: mask}, nil
	}
	type row struct {
		idx  int
		rank float64
	}
	rows := make([]row, 0, len(lines))
	ranked := len(strings.Fields(lines[0])) == 2
	for i, line := range lines {
		fs := strings.Fields(line)
		if (ranked && len(fs) != 2) || (!ranked && len(fs) != 1) {
			return nil, fmt.Errorf("%w: line %d: mixed table layout", ErrConfiguration, i+1)
		}
		idx, err := strconv.Atoi(fs[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrConfiguration, i+1, err)
		}
		rk := float64(-i)
		if ranked {
			rk, err = strconv.ParseFloat(fs[1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrConfiguration, i+1, err)
			}
		}
		rows = append(rows, row{idx: idx, rank: rk})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].rank == rows[j].rank {
			return rows[i].idx > rows[j].idx
		}
		return rows[i].rank > rows[j].rank
	})
	order := make([]int, len(rows))
	for i := range rows {
		order[i] = rows[i].idx
	}
	return &FrozenTable{Order: order}, nil
}

// ReadIndexTable reads a reliability sequence stored as little-endian int64
// values, most reliable first. The sequence may be longer than any N it serves.
func ReadIndexTable(r io.Reader) (*FrozenTable, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || len(raw)%8 != 0 {
		return nil, fmt.Errorf("%w: index file size %d is not a multiple of 8", ErrConfiguration, len(raw))
	}
	order := make([]int, len(raw)/8)
	for i := range order {
		order[i] = int(int64(binary.LittleEndian.Uint64(raw[8*i:])))
	}
	return &FrozenTable{Order: order}, nil
}

// WriteIndexTable writes order in the ReadIndexTable layout.
func WriteIndexTable(w io.Writer, order []int) error {
	raw := make([]byte, 8*len(order))
	for i, idx := range order {
		binary.LittleEndian.PutUint64(raw[8*i:], uint64(int64(idx)))
	}
	_, err := w.Write(raw)
	return err
}

// WriteTextTable writes t as "index rank" lines or as a mask line.
func WriteTextTable(w io.Writer, t *FrozenTable, comment string) error {
	bw := bufio.NewWriter(w)
	if comment != "" {
		fmt.Fprintf(bw, "# %s\n", comment)
	}
	if t.Mask != nil {
		for _, f := range t.Mask {
			if f {
				bw.WriteByte('1')
			} else {
				bw.WriteByte('0')
			}
		}
		bw.WriteByte('\n')
		return bw.Flush()
	}
	for pos, idx := range t.Order {
		fmt.Fprintf(bw, "%d %d\n", idx, len(t.Order)-pos)
	}
	return bw.Flush()
}

// MaxTableN bounds the code length a binary table header may announce.
const MaxTableN = 1 << 24

// ReadBinaryTable parses a fecwire record. Zero n or k skips the key check.
func ReadBinaryTable(r io.Reader, n, k int) (*FrozenTable, error) {
	hb := make([]byte, fecwire.HeaderLen)
	if _, err := io.ReadFull(r, hb); err != nil {
		return nil, fmt.Errorf("%w: table header: %v", ErrConfiguration, err)
	}
	var h fecwire.TableHeader
	if !h.UnmarshalBinary(hb) || h.Version != 1 {
		return nil, fmt.Errorf("%w: not a frozen table record", ErrConfiguration)
	}
	if h.N == 0 || h.N > MaxTableN || h.N&(h.N-1) != 0 || h.K > h.N {
		return nil, fmt.Errorf("%w: table header N=%d K=%d", ErrConfiguration, h.N, h.K)
	}
	if (n != 0 && int(h.N) != n) || (k != 0 && int(h.K) != k) {
		return nil, fmt.Errorf("%w: table is for N=%d K=%d", ErrConfiguration, h.N, h.K)
	}
	if int(h.PayloadLen) != fecwire.PayloadSize(h.Kind, int(h.N)) {
		return nil, fmt.Errorf("%w: payload length %d", ErrConfiguration, h.PayloadLen)
	}
	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: table payload: %v", ErrConfiguration, err)
	}
	if crc32.ChecksumIEEE(payload) != h.Checksum {
		return nil, fmt.Errorf("%w: table checksum mismatch", ErrConfiguration)
	}
	switch h.Kind {
	case fecwire.KindOrder:
		order := make([]int, h.N)
		for i := range order {
			order[i] = int(binary.LittleEndian.Uint32(payload[4*i:]))
		}
		return &FrozenTable{Order: order}, nil
	case fecwire.KindMask:
		mask := make([]bool, h.N)
		for i := range mask {
			mask[i] = (payload[i>>3]>>uint(i&7))&1 == 1
		}
		return &FrozenTable{Mask: mask}, nil
	}
	return nil, fmt.Errorf("%w: table kind %d", ErrConfiguration, h.Kind)
}

// WriteBinaryTable writes t as a fecwire record for (n, k, sigma).
func WriteBinaryTable(w io.Writer, t *FrozenTable, n, k int, sigma float64) error {
	h := fecwire.TableHeader{Magic: fecwire.Magic, Version: 1, N: uint32(n), K: uint32(k)}
	if sigma > 0 {
		h.SigmaMilli = uint32(sigmaBucket(sigma))
	}
	var payload []byte
	if t.Mask != nil {
		h.Kind = fecwire.KindMask
		payload = make([]byte, fecwire.PayloadSize(h.Kind, n))
		for i, f := range t.Mask {
			if f {
				payload[i>>3] |= 1 << uint(i&7)
			}
		}
	} else {
		h.Kind = fecwire.KindOrder
		payload = make([]byte, fecwire.PayloadSize(h.Kind, len(t.Order)))
		for i, idx := range t.Order {
			binary.LittleEndian.PutUint32(payload[4*i:], uint32(idx))
		}
	}
	h.PayloadLen = uint32(len(payload))
	h.Checksum = crc32.ChecksumIEEE(payload)
	var buf bytes.Buffer
	buf.Write(h.MarshalBinary(nil))
	buf.Write(payload)
	_, err := w.Write(buf.Bytes())
	return err
}

// SaveTable writes t under dir with the name DirLoader looks for and returns the path.
func SaveTable(dir string, t *FrozenTable, n, k int, sigma float64, binaryFormat bool) (string, error) {
	ext := ".txt"
	if binaryFormat {
		ext = ".fb"
	}
	p := TablePath(dir, n, k, sigma, ext)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	var err error
	if binaryFormat {
		err = WriteBinaryTable(&buf, t, n, k, sigma)
	} else {
		err = WriteTextTable(&buf, t, fmt.Sprintf("N=%d K=%d sigma=%g", n, k, sigma))
	}
	if err != nil {
		return "", err
	}
	return p, os.WriteFile(p, buf.Bytes(), 0o644)
}

// resolve turns the table into a mask and a full reliability order for (n, k).
// Orders may come from a longer mother table; entries >= n are dropped.
func (t *FrozenTable) resolve(n, k int) ([]bool, []int, error) {
	if t.Mask != nil {
		if len(t.Mask) != n {
			return nil, nil, fmt.Errorf("%w: mask has %d entries, want %d", ErrConfiguration, len(t.Mask), n)
		}
		order := make([]int, 0, n)
		info := 0
		for i := n - 1; i >= 0; i-- {
			if !t.Mask[i] {
				order = append(order, i)
				info++
			}
		}
		if info != k {
			return nil, nil, fmt.Errorf("%w: mask has %d information bits, want %d", ErrConfiguration, info, k)
		}
		for i := n - 1; i >= 0; i-- {
			if t.Mask[i] {
				order = append(order, i)
			}
		}
		return append([]bool(nil), t.Mask...), order, nil
	}
	seen := make([]bool, n)
	order := make([]int, 0, n)
	for _, idx := range t.Order {
		if idx < 0 {
			return nil, nil, fmt.Errorf("%w: negative channel index %d", ErrConfiguration, idx)
		}
		if idx >= n {
			continue
		}
		if seen[idx] {
			return nil, nil, fmt.Errorf("%w: channel %d listed twice", ErrConfiguration, idx)
		}
		seen[idx] = true
		order = append(order, idx)
	}
	if len(order) != n {
		return nil, nil, fmt.Errorf("%w: order covers %d of %d channels", ErrConfiguration, len(order), n)
	}
	return maskFromOrder(n, k, order), order, nil
}
