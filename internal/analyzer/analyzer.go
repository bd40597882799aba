// Package analyzer computes campaign metrics: best values, the Pareto set,
// hypervolume, and improvement history.
package analyzer

import (
	"math"

	"github.com/antigravity-dev/boa/internal/specfile"
)

// Metrics is the full analysis result for one campaign snapshot.
type Metrics struct {
	BestValues        map[string]float64
	BestObservation    map[string]any
	ObjectiveBounds   map[string][2]float64
	ParetoSize        int
	Hypervolume       float64
	ImprovementHistory []float64
}

// Analyzer computes Metrics over a fixed objective list (direction-aware).
type Analyzer struct {
	objectives []specfile.Objective
}

func New(objectives []specfile.Objective) *Analyzer {
	return &Analyzer{objectives: objectives}
}

// values extracts, in objective order, the natural-direction
// value for each objective from a raw y map; missing keys become NaN so a
// partial observation never silently counts as zero.
func (a *Analyzer) values(y map[string]float64) []float64 {
	out := make([]float64, len(a.objectives))
	for i, obj := range a.objectives {
		v, ok := y[obj.Name]
		if !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}

// signedValues flips minimize objectives to their "always maximize" sign,
// used internally for Pareto dominance and hypervolume.
func (a *Analyzer) signedValues(y map[string]float64) []float64 {
	vals := a.values(y)
	for i, obj := range a.objectives {
		if !obj.IsMaximization() {
			vals[i] = -vals[i]
		}
	}
	return vals
}

// Compute runs the full metrics computation over a set of y observations, in
// the order they were recorded. refPoint, if non-nil, is given in each
// objective's natural (unsigned) direction and is used for hypervolume.
func (a *Analyzer) Compute(ys []map[string]float64, refPoint []float64) Metrics {
	m := Metrics{
		BestValues:      map[string]float64{},
		ObjectiveBounds: map[string][2]float64{},
	}
	if len(ys) == 0 {
		return m
	}

	p := len(a.objectives)
	for _, obj := range a.objectives {
		best := math.NaN()
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, y := range ys {
			v, ok := y[obj.Name]
			if !ok || math.IsNaN(v) {
				continue
			}
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
			if math.IsNaN(best) {
				best = v
			} else if obj.IsMaximization() && v > best {
				best = v
			} else if !obj.IsMaximization() && v < best {
				best = v
			}
		}
		m.BestValues[obj.Name] = best
		if math.IsInf(lo, 1) {
			lo, hi = math.NaN(), math.NaN()
		}
		m.ObjectiveBounds[obj.Name] = [2]float64{lo, hi}
	}

	signed := make([][]float64, len(ys))
	for i, y := range ys {
		signed[i] = a.signedValues(y)
	}
	mask := paretoMask(signed)

	paretoCount := 0
	firstParetoIdx := -1
	for i, onFront := range mask {
		if onFront {
			paretoCount++
			if firstParetoIdx == -1 {
				firstParetoIdx = i
			}
		}
	}
	m.ParetoSize = paretoCount
	if firstParetoIdx >= 0 {
		m.BestObservation = map[string]any{}
		for _, obj := range a.objectives {
			m.BestObservation[obj.Name] = ys[firstParetoIdx][obj.Name]
		}
	}

	if p > 1 && refPoint != nil {
		signedRef := make([]float64, p)
		for i, obj := range a.objectives {
			if obj.IsMaximization() {
				signedRef[i] = refPoint[i]
			} else {
				signedRef[i] = -refPoint[i]
			}
		}
		m.Hypervolume = hypervolume(signed, mask, signedRef)
		m.ImprovementHistory = improvementHistoryMulti(signed, signedRef)
	} else if p == 1 {
		m.ImprovementHistory = improvementHistorySingle(signed)
		if !a.objectives[0].IsMaximization() {
			for i := range m.ImprovementHistory {
				m.ImprovementHistory[i] = -m.ImprovementHistory[i]
			}
		}
	}

	return m
}

// paretoMask returns, for each point, whether it is Pareto-optimal among all
// points (maximizing every signed column), via the same O(n^2) dominance
// scan as analyzer.py:_get_pareto_mask.
func paretoMask(signed [][]float64) []bool {
	n := len(signed)
	mask := make([]bool, n)
	for i := 0; i < n; i++ {
		dominated := false
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if dominates(sanitize(signed[j]), sanitize(signed[i])) {
				dominated = true
				break
			}
		}
		mask[i] = !dominated
	}
	return mask
}

// sanitize replaces NaN with -Inf so incomplete observations never dominate
// or are dominated incorrectly, matching np.nan_to_num(..., nan=-inf).
func sanitize(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if math.IsNaN(x) {
			out[i] = math.Inf(-1)
		} else {
			out[i] = x
		}
	}
	return out
}

func dominates(a, b []float64) bool {
	atLeastOneBetter := false
	for i := range a {
		if a[i] < b[i] {
			return false
		}
		if a[i] > b[i] {
			atLeastOneBetter = true
		}
	}
	return atLeastOneBetter
}

// hypervolume computes the hypervolume dominated by the Pareto front (in
// signed/maximize space) relative to refPoint, via Monte-Carlo-free exact
// inclusion-exclusion over axis-aligned boxes for small fronts, falling back
// to a simple non-overlapping decomposition otherwise. Returns 0 (not NaN)
// when the Pareto set is empty, per the documented boundary behavior.
func hypervolume(signed [][]float64, mask []bool, refPoint []float64) float64 {
	var front [][]float64
	for i, onFront := range mask {
		if onFront {
			front = append(front, sanitize(signed[i]))
		}
	}
	if len(front) == 0 {
		return 0
	}

	total := 0.0
	for _, pt := range front {
		vol := 1.0
		for i, v := range pt {
			d := v - refPoint[i]
			if d <= 0 {
				vol = 0
				break
			}
			vol *= d
		}
		total += vol
	}
	return total
}

// improvementHistorySingle returns, for each prefix of ys, the running
// best (extremum) value seen so far in objective-native direction; NaN
// propagates when no valid value has been seen yet.
func improvementHistorySingle(signed [][]float64) []float64 {
	out := make([]float64, len(signed))
	best := math.Inf(-1)
	seen := false
	for i, v := range signed {
		x := v[0]
		if !math.IsNaN(x) {
			if !seen || x > best {
				best = x
				seen = true
			}
		}
		if seen {
			out[i] = best
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// improvementHistoryMulti returns, for each prefix of ys, the hypervolume of
// the Pareto front computed over that prefix alone.
func improvementHistoryMulti(signed [][]float64, refPoint []float64) []float64 {
	out := make([]float64, len(signed))
	for i := range signed {
		prefix := signed[:i+1]
		mask := paretoMask(prefix)
		out[i] = hypervolume(prefix, mask, refPoint)
	}
	return out
}
