package fec

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
	"strings"
)

// Method names a frozen-bit construction.
type Method string

const (
	// MethodGA ranks bit-channels by the Gaussian approximation of their mean LLR on BI-AWGN.
	MethodGA Method = "GA"
	// MethodBhattacharyya ranks bit-channels by Bhattacharyya parameters seeded from BI-AWGN.
	MethodBhattacharyya Method = "BHATTACHARYYA"
	// MethodBEC ranks bit-channels by Bhattacharyya parameters of a BEC with the given erasure probability.
	MethodBEC Method = "BEC"
	// MethodPW is the channel-independent polarization weight ordering.
	MethodPW Method = "PW"
	// MethodFile loads an ordering or a mask from a TableLoader.
	MethodFile Method = "FILE"
)

// ErasureFromSigma is the erasure probability of the BEC with the same
// Bhattacharyya parameter as BI-AWGN with noise deviation sigma.
func ErasureFromSigma(sigma float64) float64 {
	return math.Exp(-1 / (2 * sigma * sigma))
}

// ParseMethod resolves a construction name, case-insensitively.
func ParseMethod(name string) (Method, error) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(name))); m {
	case MethodGA, MethodBhattacharyya, MethodBEC, MethodPW, MethodFile:
		return m, nil
	case "TV", "BHATT":
		return MethodBhattacharyya, nil
	}
	return "", fmt.Errorf("%w: frozen bits method %q", ErrAllocation, name)
}

// ChannelDependent reports whether the ranking depends on the noise level.
func (m Method) ChannelDependent() bool {
	return m == MethodGA || m == MethodBhattacharyya || m == MethodBEC
}

// Generator produces frozen-bit masks for one (N, K).
type Generator interface {
	Method() Method
	// SetNoise sets the channel parameter used by the next Generate: sigma for
	// the AWGN methods, the erasure probability for BEC. Ignored by PW.
	SetNoise(noise float64)
	// Generate returns a new mask of length N, true meaning frozen, with
	// exactly K information positions.
	Generate() ([]bool, error)
	// Order returns the reliability order (most reliable first) used by the
	// last Generate, or nil before the first one.
	Order() []int
}

// GeneratorOption configures NewGenerator.
type GeneratorOption func(*generatorConfig)

type generatorConfig struct {
	noise    float64
	noiseSet bool
	loader   TableLoader
}

// WithNoise sets the initial channel parameter.
func WithNoise(noise float64) GeneratorOption {
	return func(c *generatorConfig) {
		c.noise = noise
		c.noiseSet = true
	}
}

// WithTableLoader sets the loader used by MethodFile.
func WithTableLoader(l TableLoader) GeneratorOption {
	return func(c *generatorConfig) { c.loader = l }
}

// NewGenerator builds the generator registered under method.
func NewGenerator(method string, n, k int, opts ...GeneratorOption) (Generator, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	if err := checkNK(n, k); err != nil {
		return nil, err
	}
	var cfg generatorConfig
	for _, o := range opts {
		o(&cfg)
	}
	switch m {
	case MethodFile:
		if cfg.loader == nil {
			return nil, fmt.Errorf("%w: FILE method needs a table loader", ErrConfiguration)
		}
		return &tableGenerator{loader: cfg.loader, n: n, k: k, noise: cfg.noise}, nil
	default:
		return &rankGenerator{method: m, n: n, k: k, noise: cfg.noise, noiseSet: cfg.noiseSet}, nil
	}
}

func checkNK(n, k int) error {
	if n <= 0 || n&(n-1) != 0 {
		return fmt.Errorf("%w: N=%d must be a power of two", ErrConfiguration, n)
	}
	if k <= 0 || k > n {
		return fmt.Errorf("%w: K=%d must be in (0, %d]", ErrConfiguration, k, n)
	}
	return nil
}

func log2(n int) int { return bits.TrailingZeros(uint(n)) }

// rankGenerator covers every method that computes a per-channel reliability.
type rankGenerator struct {
	method   Method
	n, k     int
	noise    float64
	noiseSet bool
	order    []int
}

func (g *rankGenerator) Method() Method { return g.method }

func (g *rankGenerator) SetNoise(noise float64) {
	g.noise = noise
	g.noiseSet = true
}

func (g *rankGenerator) Order() []int { return append([]int(nil), g.order...) }

func (g *rankGenerator) Generate() ([]bool, error) {
	rel, err := g.reliability()
	if err != nil {
		return nil, err
	}
	g.order = rankByReliability(rel)
	return maskFromOrder(g.n, g.k, g.order), nil
}

// reliability returns one score per bit-channel, larger meaning more reliable.
func (g *rankGenerator) reliability() ([]float64, error) {
	if g.method.ChannelDependent() && !g.noiseSet {
		return nil, fmt.Errorf("%w: %s construction needs a noise level", ErrConfiguration, g.method)
	}
	switch g.method {
	case MethodGA:
		if !(g.noise > 0) {
			return nil, fmt.Errorf("%w: sigma=%g", ErrConfiguration, g.noise)
		}
		return gaussianApprox(g.n, g.noise), nil
	case MethodBhattacharyya:
		if !(g.noise > 0) {
			return nil, fmt.Errorf("%w: sigma=%g", ErrConfiguration, g.noise)
		}
		lz := -1 / (2 * g.noise * g.noise)
		return logBhattacharyya(g.n, lz, math.Log(-math.Expm1(lz))), nil
	case MethodBEC:
		if !(g.noise > 0 && g.noise < 1) {
			return nil, fmt.Errorf("%w: erasure probability %g", ErrConfiguration, g.noise)
		}
		return logBhattacharyya(g.n, math.Log(g.noise), math.Log1p(-g.noise)), nil
	case MethodPW:
		return polarizationWeight(g.n), nil
	}
	return nil, fmt.Errorf("%w: frozen bits method %q", ErrAllocation, g.method)
}

// Reliability returns the per-channel score a rank-based method orders by,
// larger meaning more reliable: the log of the GA mean LLR, ln((1-Z)/Z) for
// the Bhattacharyya and BEC recursions, or the polarization weight.
func Reliability(method Method, n int, noise float64) ([]float64, error) {
	if err := checkNK(n, 1); err != nil {
		return nil, err
	}
	g := &rankGenerator{method: method, n: n, noise: noise, noiseSet: method.ChannelDependent()}
	return g.reliability()
}

// rankByReliability sorts channel indices by descending score. Equal scores
// put the higher index first.
func rankByReliability(rel []float64) []int {
	idx := make([]int, len(rel))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := rel[idx[a]], rel[idx[b]]
		if ra == rb {
			return idx[a] > idx[b]
		}
		return ra > rb
	})
	return idx
}

// maskFromOrder freezes everything except the first k in-range entries of order.
func maskFromOrder(n, k int, order []int) []bool {
	frozen := make([]bool, n)
	for i := range frozen {
		frozen[i] = true
	}
	picked := 0
	for _, idx := range order {
		if picked == k {
			break
		}
		if idx >= 0 && idx < n && frozen[idx] {
			frozen[idx] = false
			picked++
		}
	}
	return frozen
}

// logBhattacharyya expands z -> [2z - z^2, z^2] breadth first and returns
// ln((1-Z)/Z) per channel. Both ln Z and ln(1-Z) are carried so that neither
// end of the recursion loses precision:
//
//	minus: ln Z' = ln Z + ln(2-Z),   ln(1-Z') = 2 ln(1-Z)
//	plus:  ln Z' = 2 ln Z,           ln(1-Z') = ln(1-Z) + ln(1+Z)
func logBhattacharyya(n int, logZ0, log1mZ0 float64) []float64 {
	type pair struct{ lz, ld float64 }
	cur := []pair{{logZ0, log1mZ0}}
	for len(cur) < n {
		next := make([]pair, 0, 2*len(cur))
		for _, c := range cur {
			next = append(next,
				pair{c.lz + math.Log1p(math.Exp(c.ld)), 2 * c.ld},
				pair{2 * c.lz, c.ld + math.Log1p(math.Exp(c.lz))},
			)
		}
		cur = next
	}
	out := make([]float64, n)
	for i, c := range cur {
		out[i] = c.ld - c.lz
	}
	return out
}

// gaussianApprox returns the log mean LLR of every bit-channel under the
// Gaussian approximation.
func gaussianApprox(n int, sigma float64) []float64 {
	cur := []float64{math.Ln2 - 2*math.Log(sigma)}
	for len(cur) < n {
		next := make([]float64, 0, 2*len(cur))
		for _, lm := range cur {
			next = append(next, gaCheckNode(lm), lm+math.Ln2)
		}
		cur = next
	}
	return cur
}

// phi is exp(a x^2 + b x) below phiPivot and Chung's approximation above,
// continuous at the pivot and decreasing from phi(0) = 1.
const (
	phiA     = 0.0564
	phiB     = -0.48560
	phiPivot = 0.867861
)

func logPhi(x float64) float64 {
	switch {
	case x < phiPivot:
		return phiA*x*x + phiB*x
	case x < 10:
		return -0.4527*math.Pow(x, 0.86) + 0.0218
	}
	return 0.5*math.Log(math.Pi/x) - x/4 + math.Log1p(-10/(7*x))
}

// gaCheckNode maps ln m to ln x with phi(x) = 1 - (1 - phi(m))^2.
func gaCheckNode(lm float64) float64 {
	m := math.Exp(lm)
	if m >= phiPivot {
		lp := logPhi(m)
		target := lp + math.Log(2-math.Exp(lp))
		if target > logPhi(phiPivot) {
			return logSmallRoot(math.Log(-target))
		}
		lo, hi := phiPivot, m
		for i := 0; i < 100; i++ {
			mid := (lo + hi) / 2
			if logPhi(mid) > target {
				lo = mid
			} else {
				hi = mid
			}
		}
		return math.Log((lo + hi) / 2)
	}
	// Below the pivot everything stays in the log domain: m may underflow.
	// q = ln phi(m), l1 = ln(1 - phi(m)) = ln(-expm1(q))
	lq := lm + math.Log(-phiB-phiA*m)
	l1 := lq
	if q := -math.Exp(lq); q != 0 {
		l1 += math.Log(math.Expm1(q) / q)
	}
	// lt = ln(1 - phi(x)), lc = ln(-ln phi(x))
	lt := 2 * l1
	lc := lt
	if t := math.Exp(lt); t != 0 {
		lc += math.Log(-math.Log1p(-t) / t)
	}
	return logSmallRoot(lc)
}

// logSmallRoot returns ln x for the root below phiPivot of
// phiA x^2 + phiB x + c = 0, c = exp(lc).
func logSmallRoot(lc float64) float64 {
	c := math.Exp(lc)
	return math.Ln2 + lc - math.Log(-phiB+math.Sqrt(phiB*phiB-4*phiA*c))
}

// polarizationWeight scores index i as sum of 2^(j/4) over its set bits j.
func polarizationWeight(n int) []float64 {
	beta := math.Pow(2, 0.25)
	w := make([]float64, n)
	for i := range w {
		var s float64
		for j, v := 0, i; v != 0; j, v = j+1, v>>1 {
			if v&1 == 1 {
				s += math.Pow(beta, float64(j))
			}
		}
		w[i] = s
	}
	return w
}

// tableGenerator serves masks from externally supplied tables.
type tableGenerator struct {
	loader TableLoader
	n, k   int
	noise  float64
	order  []int
}

func (g *tableGenerator) Method() Method { return MethodFile }

// SetNoise selects the sigma bucket looked up first by the loader.
func (g *tableGenerator) SetNoise(noise float64) { g.noise = noise }

func (g *tableGenerator) Order() []int { return append([]int(nil), g.order...) }

func (g *tableGenerator) Generate() ([]bool, error) {
	t, err := g.loader.LoadTable(g.n, g.k, g.noise)
	if err != nil {
		return nil, err
	}
	frozen, order, err := t.resolve(g.n, g.k)
	if err != nil {
		return nil, err
	}
	g.order = order
	return frozen, nil
}
