package analyzer

import (
	"math"
	"testing"

	"github.com/antigravity-dev/boa/internal/specfile"
)

func objs() []specfile.Objective {
	return []specfile.Objective{
		{Name: "yield", Direction: specfile.Maximize},
		{Name: "cost", Direction: specfile.Minimize},
	}
}

func TestComputeEmptyObservationsReturnsZeroValue(t *testing.T) {
	a := New(objs())
	m := a.Compute(nil, nil)
	if m.ParetoSize != 0 || len(m.BestValues) != 0 {
		t.Fatalf("expected a zero-value Metrics for no observations, got %+v", m)
	}
}

func TestComputeBestValuesRespectDirection(t *testing.T) {
	a := New(objs())
	ys := []map[string]float64{
		{"yield": 10, "cost": 5},
		{"yield": 20, "cost": 2},
		{"yield": 15, "cost": 8},
	}
	m := a.Compute(ys, nil)
	if m.BestValues["yield"] != 20 {
		t.Fatalf("expected max yield 20, got %v", m.BestValues["yield"])
	}
	if m.BestValues["cost"] != 2 {
		t.Fatalf("expected min cost 2, got %v", m.BestValues["cost"])
	}
}

func TestComputeObjectiveBounds(t *testing.T) {
	a := New(objs())
	ys := []map[string]float64{
		{"yield": 10, "cost": 5},
		{"yield": 20, "cost": 2},
	}
	m := a.Compute(ys, nil)
	bounds := m.ObjectiveBounds["yield"]
	if bounds[0] != 10 || bounds[1] != 20 {
		t.Fatalf("expected yield bounds [10,20], got %v", bounds)
	}
}

func TestComputeBestObservationTieBreaksByInsertionOrder(t *testing.T) {
	a := New(objs())
	// Two mutually non-dominating points (both on the Pareto front): the
	// first one recorded must be reported as the representative best
	// observation.
	ys := []map[string]float64{
		{"yield": 20, "cost": 8}, // higher yield, higher cost
		{"yield": 10, "cost": 2}, // lower yield, lower cost
	}
	m := a.Compute(ys, nil)
	if m.ParetoSize != 2 {
		t.Fatalf("expected both points on the Pareto front, got ParetoSize=%d", m.ParetoSize)
	}
	if m.BestObservation["yield"] != 20.0 {
		t.Fatalf("expected the first-recorded Pareto point as best_observation, got %+v", m.BestObservation)
	}
}

func TestComputeParetoMaskExcludesDominatedPoints(t *testing.T) {
	a := New(objs())
	ys := []map[string]float64{
		{"yield": 10, "cost": 10}, // dominated: worse on both axes
		{"yield": 20, "cost": 2},  // dominates the first
	}
	m := a.Compute(ys, nil)
	if m.ParetoSize != 1 {
		t.Fatalf("expected exactly one Pareto-optimal point, got %d", m.ParetoSize)
	}
	if m.BestObservation["yield"] != 20.0 {
		t.Fatalf("expected the dominating point as best_observation, got %+v", m.BestObservation)
	}
}

func TestComputeHypervolumeZeroWhenFrontBehindReferencePoint(t *testing.T) {
	a := New(objs())
	ys := []map[string]float64{
		{"yield": 1, "cost": 9},
	}
	// refPoint in natural units: yield ref above the only point means the
	// (maximize-signed) volume collapses to zero.
	m := a.Compute(ys, []float64{5, 10})
	if m.Hypervolume != 0 {
		t.Fatalf("expected zero hypervolume when the front sits behind the reference point, got %v", m.Hypervolume)
	}
}

func TestComputeHypervolumePositiveWhenFrontDominatesReferencePoint(t *testing.T) {
	a := New(objs())
	ys := []map[string]float64{
		{"yield": 20, "cost": 2}, // cost minimized -> signed -2, ref -10 -> positive volume
	}
	m := a.Compute(ys, []float64{0, 10})
	if m.Hypervolume <= 0 {
		t.Fatalf("expected positive hypervolume, got %v", m.Hypervolume)
	}
}

func TestComputeSingleObjectiveImprovementHistoryIsMonotonic(t *testing.T) {
	single := New([]specfile.Objective{{Name: "yield", Direction: specfile.Maximize}})
	ys := []map[string]float64{
		{"yield": 5},
		{"yield": 3},
		{"yield": 9},
	}
	m := single.Compute(ys, nil)
	want := []float64{5, 5, 9}
	if len(m.ImprovementHistory) != len(want) {
		t.Fatalf("got %d history entries, want %d", len(m.ImprovementHistory), len(want))
	}
	for i := range want {
		if m.ImprovementHistory[i] != want[i] {
			t.Fatalf("ImprovementHistory[%d] = %v, want %v", i, m.ImprovementHistory[i], want[i])
		}
	}
}

func TestComputeMissingObjectiveValueTreatedAsNaN(t *testing.T) {
	a := New(objs())
	ys := []map[string]float64{
		{"yield": 10},
	}
	m := a.Compute(ys, nil)
	boundsCost := m.ObjectiveBounds["cost"]
	if !math.IsNaN(boundsCost[0]) || !math.IsNaN(boundsCost[1]) {
		t.Fatalf("expected NaN bounds for an objective with no recorded values, got %v", boundsCost)
	}
}
