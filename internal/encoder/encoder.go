// Package encoder implements the MixedSpaceEncoder: a lossless bidirectional
// map between user-facing input maps and a fixed-length [0,1]^d numeric
// vector suitable for surrogate modeling, plus a snap-to-grid projection
// operator, expressed as explicit Go slices over float64.
package encoder

import (
	"fmt"
	"math"

	"github.com/antigravity-dev/boa/internal/specfile"
)

// columnInfo records the encoded-column layout for one input.
type columnInfo struct {
	input       specfile.Input
	startCol    int // first content column
	nContent    int // number of content columns (1 for continuous/discrete, k for categorical)
	activityCol int // -1 if unconditional
}

// Encoder translates between raw input maps and the encoded numeric cube for
// one ProcessSpec. It is immutable after construction and safe for
// concurrent use by multiple goroutines (no mutable state).
type Encoder struct {
	spec    *specfile.ProcessSpec
	columns []columnInfo
	names   []string
	n       int
}

// New builds an Encoder from a ProcessSpec, precomputing the encoded column
// layout once.
func New(spec *specfile.ProcessSpec) *Encoder {
	e := &Encoder{spec: spec}
	col := 0
	var activityNames []string
	for _, in := range spec.Inputs {
		info := columnInfo{input: in, startCol: col, activityCol: -1}
		switch in.Kind {
		case specfile.InputContinuous, specfile.InputDiscrete:
			info.nContent = 1
			e.names = append(e.names, in.Name)
		case specfile.InputCategorical:
			info.nContent = len(in.Categories)
			for _, cat := range in.Categories {
				e.names = append(e.names, fmt.Sprintf("%s__%s", in.Name, cat))
			}
		}
		col += info.nContent
		e.columns = append(e.columns, info)
	}
	// Activity columns are appended after all content columns, in input
	// declaration order, matching encoder.py's self.activity_columns list.
	for i := range e.columns {
		if e.columns[i].input.IsConditional() {
			e.columns[i].activityCol = col
			activityNames = append(activityNames, fmt.Sprintf("%s__active", e.columns[i].input.Name))
			col++
		}
	}
	e.names = append(e.names, activityNames...)
	e.n = col
	return e
}

// N returns the total encoded dimension d.
func (e *Encoder) N() int { return e.n }

// ColumnNames returns the ordered encoded column names.
func (e *Encoder) ColumnNames() []string { return e.names }

// Bounds returns the encoded-space bounds, always [0,1]^d.
func (e *Encoder) Bounds() (lower, upper []float64) {
	lower = make([]float64, e.n)
	upper = make([]float64, e.n)
	for i := range upper {
		upper[i] = 1.0
	}
	return lower, upper
}

// EncodeOne encodes a single raw input map into an encoded vector of length N().
func (e *Encoder) EncodeOne(raw map[string]any) []float64 {
	out := make([]float64, e.n)
	for _, info := range e.columns {
		active := info.input.Active(raw)

		switch info.input.Kind {
		case specfile.InputContinuous:
			v := asFloat(raw[info.input.Name])
			norm := normalize(v, info.input.Lo, info.input.Hi)
			if !active {
				norm = 0.5
			}
			out[info.startCol] = norm

		case specfile.InputDiscrete:
			v := asFloat(raw[info.input.Name])
			norm := normalize(v, info.input.Lo, info.input.Hi)
			if !active {
				norm = 0.5
			}
			out[info.startCol] = norm

		case specfile.InputCategorical:
			val, _ := raw[info.input.Name].(string)
			for k, cat := range info.input.Categories {
				if active && cat == val {
					out[info.startCol+k] = 1.0
				}
			}
		}

		if info.activityCol >= 0 {
			if active {
				out[info.activityCol] = 1.0
			}
		}
	}
	return out
}

// Encode encodes a batch of raw input maps.
func (e *Encoder) Encode(raws []map[string]any) [][]float64 {
	out := make([][]float64, len(raws))
	for i, r := range raws {
		out[i] = e.EncodeOne(r)
	}
	return out
}

// DecodeOne decodes a single encoded vector back to a raw input map.
// The activity column, when present, is used only as a reconstructive hint
// for round-trip laws; callers are expected to disregard inactive fields.
func (e *Encoder) DecodeOne(encoded []float64) map[string]any {
	out := map[string]any{}
	for _, info := range e.columns {
		switch info.input.Kind {
		case specfile.InputContinuous:
			norm := encoded[info.startCol]
			out[info.input.Name] = norm*(info.input.Hi-info.input.Lo) + info.input.Lo

		case specfile.InputDiscrete:
			norm := encoded[info.startCol]
			v := norm*(info.input.Hi-info.input.Lo) + info.input.Lo
			out[info.input.Name] = snapToGrid(v, info.input.Values)

		case specfile.InputCategorical:
			best, bestIdx := math.Inf(-1), 0
			for k := 0; k < info.nContent; k++ {
				v := encoded[info.startCol+k]
				if v > best {
					best = v
					bestIdx = k
				}
			}
			out[info.input.Name] = info.input.Categories[bestIdx]
		}
	}
	return out
}

// Decode decodes a batch of encoded vectors.
func (e *Encoder) Decode(encoded [][]float64) []map[string]any {
	out := make([]map[string]any, len(encoded))
	for i, row := range encoded {
		out[i] = e.DecodeOne(row)
	}
	return out
}

// Project (snap-to-grid) hardens categorical groups to one-hot via argmax
// and snaps discrete columns to the nearest grid value, renormalized.
// Continuous and activity columns pass through unchanged. Idempotent.
func (e *Encoder) Project(encoded []float64) []float64 {
	out := make([]float64, len(encoded))
	copy(out, encoded)

	for _, info := range e.columns {
		switch info.input.Kind {
		case specfile.InputDiscrete:
			norm := out[info.startCol]
			v := norm*(info.input.Hi-info.input.Lo) + info.input.Lo
			snapped := snapToGrid(v, info.input.Values)
			out[info.startCol] = normalize(snapped, info.input.Lo, info.input.Hi)

		case specfile.InputCategorical:
			best, bestIdx := math.Inf(-1), 0
			for k := 0; k < info.nContent; k++ {
				v := out[info.startCol+k]
				if v > best {
					best = v
					bestIdx = k
				}
				out[info.startCol+k] = 0.0
			}
			out[info.startCol+bestIdx] = 1.0
		}
	}
	return out
}

func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	n := (v - lo) / (hi - lo)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// snapToGrid finds the nearest grid value by absolute distance; ties are
// broken toward the lower index.
func snapToGrid(v float64, grid []float64) float64 {
	if len(grid) == 0 {
		return v
	}
	bestIdx := 0
	bestDist := math.Abs(grid[0] - v)
	for i := 1; i < len(grid); i++ {
		d := math.Abs(grid[i] - v)
		if d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	return grid[bestIdx]
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
