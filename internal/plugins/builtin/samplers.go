// Package builtin supplies the reference plugin implementations registered
// at startup: samplers, surrogate models, acquisition functions, and input
// constraints. The executor only ever sees them through the plugins
// package's interfaces, so each implementation is free to vary independently.
package builtin

import (
	"math"
	"math/rand"
	"sort"

	"github.com/antigravity-dev/boa/internal/encoder"
	"github.com/antigravity-dev/boa/internal/specfile"
)

func seedFromParams(params map[string]any) *rand.Rand {
	if params != nil {
		if s, ok := params["seed"]; ok {
			switch v := s.(type) {
			case int:
				return rand.New(rand.NewSource(int64(v)))
			case int64:
				return rand.New(rand.NewSource(v))
			case float64:
				return rand.New(rand.NewSource(int64(v)))
			}
		}
	}
	return rand.New(rand.NewSource(rand.Int63()))
}

func sampleAndDecode(enc *encoder.Encoder, points [][]float64) []map[string]any {
	return enc.Decode(points)
}

// RandomSampler draws uniform random points in the encoded cube.
type RandomSampler struct{}

func (RandomSampler) Name() string { return "random" }

func (RandomSampler) DefaultParams() map[string]any { return map[string]any{} }

func (s RandomSampler) Sample(spec *specfile.ProcessSpec, n int, params map[string]any) ([][]float64, error) {
	enc := encoder.New(spec)
	r := seedFromParams(params)
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, enc.N())
		for j := range row {
			row[j] = r.Float64()
		}
		out[i] = enc.Project(row)
	}
	return out, nil
}

func (s RandomSampler) SampleRaw(spec *specfile.ProcessSpec, n int, params map[string]any) ([]map[string]any, error) {
	enc := encoder.New(spec)
	points, err := s.Sample(spec, n, params)
	if err != nil {
		return nil, err
	}
	return sampleAndDecode(enc, points), nil
}

// LHSSampler draws a Latin Hypercube: each encoded dimension's [0,1] range is
// split into n equal strata, one random point per stratum per dimension,
// independently permuted per dimension.
type LHSSampler struct{}

func (LHSSampler) Name() string { return "lhs" }

func (LHSSampler) DefaultParams() map[string]any { return map[string]any{} }

func latinHypercube(r *rand.Rand, n, d int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, d)
	}
	for j := 0; j < d; j++ {
		perm := r.Perm(n)
		for i := 0; i < n; i++ {
			stratum := perm[i]
			out[i][j] = (float64(stratum) + r.Float64()) / float64(n)
		}
	}
	return out
}

func (s LHSSampler) Sample(spec *specfile.ProcessSpec, n int, params map[string]any) ([][]float64, error) {
	enc := encoder.New(spec)
	r := seedFromParams(params)
	raw := latinHypercube(r, n, enc.N())
	out := make([][]float64, n)
	for i, row := range raw {
		out[i] = enc.Project(row)
	}
	return out, nil
}

func (s LHSSampler) SampleRaw(spec *specfile.ProcessSpec, n int, params map[string]any) ([]map[string]any, error) {
	enc := encoder.New(spec)
	points, err := s.Sample(spec, n, params)
	if err != nil {
		return nil, err
	}
	return sampleAndDecode(enc, points), nil
}

// LHSOptimizedSampler draws several candidate Latin Hypercubes and keeps the
// one maximizing the minimum pairwise distance (a maximin criterion), a
// cheap stand-in for the formal optimized-LHS literature.
type LHSOptimizedSampler struct{}

func (LHSOptimizedSampler) Name() string { return "lhs_optimized" }

func (LHSOptimizedSampler) DefaultParams() map[string]any {
	return map[string]any{"restarts": lhsOptimizedRestarts}
}

const lhsOptimizedRestarts = 8

func restartsParam(params map[string]any) int {
	switch v := params["restarts"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return lhsOptimizedRestarts
	}
}

func minPairwiseDistance(points [][]float64) float64 {
	best := math.Inf(1)
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			d := 0.0
			for k := range points[i] {
				diff := points[i][k] - points[j][k]
				d += diff * diff
			}
			if d < best {
				best = d
			}
		}
	}
	return best
}

func (s LHSOptimizedSampler) Sample(spec *specfile.ProcessSpec, n int, params map[string]any) ([][]float64, error) {
	enc := encoder.New(spec)
	r := seedFromParams(params)

	var best [][]float64
	bestScore := math.Inf(-1)
	for attempt := 0; attempt < restartsParam(params); attempt++ {
		candidate := latinHypercube(r, n, enc.N())
		score := minPairwiseDistance(candidate)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	out := make([][]float64, n)
	for i, row := range best {
		out[i] = enc.Project(row)
	}
	return out, nil
}

func (s LHSOptimizedSampler) SampleRaw(spec *specfile.ProcessSpec, n int, params map[string]any) ([]map[string]any, error) {
	enc := encoder.New(spec)
	points, err := s.Sample(spec, n, params)
	if err != nil {
		return nil, err
	}
	return sampleAndDecode(enc, points), nil
}

// SobolSampler draws a low-discrepancy sequence via per-dimension Halton
// sequences (Sobol-family quasi-random sampling, approximated with distinct
// coprime bases per dimension rather than the full Sobol direction-number
// construction).
type SobolSampler struct{}

func (SobolSampler) Name() string { return "sobol" }

func (SobolSampler) DefaultParams() map[string]any { return map[string]any{"skip": 0} }

var haltonBases = []int{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53}

func haltonSequence(index, base int) float64 {
	f, r := 1.0, 0.0
	for index > 0 {
		f /= float64(base)
		r += f * float64(index%base)
		index /= base
	}
	return r
}

func (s SobolSampler) Sample(spec *specfile.ProcessSpec, n int, params map[string]any) ([][]float64, error) {
	enc := encoder.New(spec)
	offset := 1
	if params != nil {
		if v, ok := params["skip"].(int); ok {
			offset = v + 1
		}
	}

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, enc.N())
		for j := 0; j < enc.N(); j++ {
			base := haltonBases[j%len(haltonBases)]
			row[j] = haltonSequence(offset+i, base)
		}
		out[i] = enc.Project(row)
	}
	return out, nil
}

func (s SobolSampler) SampleRaw(spec *specfile.ProcessSpec, n int, params map[string]any) ([]map[string]any, error) {
	enc := encoder.New(spec)
	points, err := s.Sample(spec, n, params)
	if err != nil {
		return nil, err
	}
	return sampleAndDecode(enc, points), nil
}

// GridSampler is a deterministic fallback for benchmark harnesses that
// request exact grid coverage of low-dimensional specs.
type GridSampler struct{}

func (GridSampler) Name() string { return "grid" }

func (GridSampler) DefaultParams() map[string]any { return map[string]any{} }

func (s GridSampler) Sample(spec *specfile.ProcessSpec, n int, params map[string]any) ([][]float64, error) {
	enc := encoder.New(spec)
	perDim := int(math.Max(1, math.Round(math.Pow(float64(n), 1.0/math.Max(1, float64(enc.N()))))))

	var rows [][]float64
	var build func(prefix []float64)
	build = func(prefix []float64) {
		if len(prefix) == enc.N() {
			row := make([]float64, len(prefix))
			copy(row, prefix)
			rows = append(rows, row)
			return
		}
		for i := 0; i < perDim; i++ {
			v := float64(i) / float64(max(1, perDim-1))
			build(append(prefix, v))
		}
	}
	build(nil)

	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	if len(rows) > n {
		rows = rows[:n]
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = enc.Project(r)
	}
	return out, nil
}

func (s GridSampler) SampleRaw(spec *specfile.ProcessSpec, n int, params map[string]any) ([]map[string]any, error) {
	enc := encoder.New(spec)
	points, err := s.Sample(spec, n, params)
	if err != nil {
		return nil, err
	}
	return sampleAndDecode(enc, points), nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
