package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/antigravity-dev/boa/internal/checkpointer"
	"github.com/antigravity-dev/boa/internal/lock"
	"github.com/antigravity-dev/boa/internal/plugins"
	"github.com/antigravity-dev/boa/internal/plugins/builtin"
	"github.com/antigravity-dev/boa/internal/specfile"
	"github.com/antigravity-dev/boa/internal/store"
)

const testYAML = `
name: widget_yield
version: 1
inputs:
  - name: temperature
    type: continuous
    bounds: [20, 200]
objectives:
  - name: yield
    direction: maximize
  - name: cost
    direction: minimize
strategies:
  default:
    sampler: lhs
    model: gp_matern
    acquisition: qlogNEHVI
`

func testSpec(t *testing.T) *specfile.ProcessSpec {
	t.Helper()
	spec, err := specfile.Load(testYAML, specfile.LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return spec
}

func testEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	registry := plugins.NewRegistry()
	builtin.RegisterAll(registry)

	l := lock.New(s, 30*time.Second)
	cp := checkpointer.New(s, t.TempDir())
	return New(s, registry, l, cp, "test-worker"), s
}

func seedCampaign(t *testing.T, s *store.Store, spec *specfile.ProcessSpec) *store.Campaign {
	t.Helper()
	specJSON, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	p := &store.Process{Name: spec.Name, Version: spec.Version, SpecYAML: testYAML, SpecJSON: string(specJSON)}
	if err := s.CreateProcess(p); err != nil {
		t.Fatalf("CreateProcess failed: %v", err)
	}
	c := &store.Campaign{ProcessID: p.ID, Name: "run-1"}
	if err := s.CreateCampaign(c); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}
	return c
}

func TestInitialDesignDrawsProposalsAndStartsIteration(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	result, err := e.InitialDesign(spec, c.ID, "default", 5)
	if err != nil {
		t.Fatalf("InitialDesign failed: %v", err)
	}
	if result.Iteration.Index != 0 {
		t.Fatalf("expected first iteration index 0, got %d", result.Iteration.Index)
	}
	if result.Proposal.StrategyName != "default" {
		t.Fatalf("expected the proposal to carry its strategy name, got %+v", result.Proposal)
	}
	if len(result.Proposal.CandidatesRaw) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(result.Proposal.CandidatesRaw))
	}

	got, err := s.GetCampaign(c.ID)
	if err != nil {
		t.Fatalf("GetCampaign failed: %v", err)
	}
	if got.Status != store.CampaignActive {
		t.Fatalf("expected campaign auto-promoted to ACTIVE, got %v", got.Status)
	}
}

func TestInitialDesignUnknownStrategyErrors(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	if _, err := e.InitialDesign(spec, c.ID, "nope", 5); err == nil {
		t.Fatal("expected an error for an unknown strategy name")
	}
}

func TestAddObservationThenOptimizationIterationProducesCheckpoint(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	for i := 0; i < 4; i++ {
		x := map[string]any{"temperature": 20.0 + float64(i)*10}
		y := map[string]float64{"yield": float64(i), "cost": float64(4 - i)}
		if _, err := e.AddObservation(c.ID, x, y, true); err != nil {
			t.Fatalf("AddObservation(%d) failed: %v", i, err)
		}
	}

	result, err := e.OptimizationIteration(context.Background(), spec, c.ID, "default", 2)
	if err != nil {
		t.Fatalf("OptimizationIteration failed: %v", err)
	}
	if len(result.Proposal.CandidatesRaw) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(result.Proposal.CandidatesRaw))
	}
	if result.Checkpoint == nil {
		t.Fatal("expected a checkpoint to be recorded")
	}
	for _, mean := range result.Proposal.PredictedMean {
		if len(mean) != 2 {
			t.Fatalf("expected per-objective predicted mean, got %+v", mean)
		}
	}
	for _, std := range result.Proposal.PredictedStd {
		if len(std) != 2 {
			t.Fatalf("expected per-objective predicted std, got %+v", std)
		}
	}
}

func TestOptimizationIterationRejectsUnknownStrategy(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	if _, err := e.OptimizationIteration(context.Background(), spec, c.ID, "nope", 2); err == nil {
		t.Fatal("expected an error for an unknown strategy name")
	}
}

func TestAddObservationsBatchIsAtomic(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	items := []*store.Observation{
		{XRaw: map[string]any{"temperature": 25.0}, YRaw: map[string]float64{"yield": 1, "cost": 1}, Feasible: true},
		{XRaw: map[string]any{"temperature": 35.0}, YRaw: map[string]float64{"yield": 2, "cost": 2}, Feasible: true},
	}
	if err := e.AddObservations(c.ID, items); err != nil {
		t.Fatalf("AddObservations failed: %v", err)
	}

	got, err := store.ListObservations(s.DB(), c.ID)
	if err != nil {
		t.Fatalf("ListObservations failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(got))
	}
}

func TestAcceptCandidatesRecordsDecision(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	design, err := e.InitialDesign(spec, c.ID, "default", 3)
	if err != nil {
		t.Fatalf("InitialDesign failed: %v", err)
	}

	accepted := []store.AcceptedCandidates{{ProposalID: design.Proposal.ID, CandidateIndices: []int{0}}}
	d, err := e.AcceptCandidates(c.ID, design.Iteration.ID, accepted, "looks good")
	if err != nil {
		t.Fatalf("AcceptCandidates failed: %v", err)
	}
	if len(d.Accepted) != 1 || d.Accepted[0].ProposalID != accepted[0].ProposalID {
		t.Fatalf("unexpected decision: %+v", d)
	}

	if _, err := e.AcceptCandidates(c.ID, design.Iteration.ID, accepted, "again"); err == nil {
		t.Fatal("expected a duplicate decision for the same iteration to be rejected")
	}
}

func TestAcceptCandidatesRejectsOutOfRangeIndex(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	design, err := e.InitialDesign(spec, c.ID, "default", 3)
	if err != nil {
		t.Fatalf("InitialDesign failed: %v", err)
	}

	accepted := []store.AcceptedCandidates{{ProposalID: design.Proposal.ID, CandidateIndices: []int{99}}}
	if _, err := e.AcceptCandidates(c.ID, design.Iteration.ID, accepted, "bad index"); err == nil {
		t.Fatal("expected an out-of-range candidate index to be rejected")
	}
}

func TestAnalyzeComputesMetricsFromObservations(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	for i := 0; i < 3; i++ {
		x := map[string]any{"temperature": 20.0 + float64(i)*10}
		y := map[string]float64{"yield": float64(i + 1), "cost": float64(3 - i)}
		if _, err := e.AddObservation(c.ID, x, y, true); err != nil {
			t.Fatalf("AddObservation(%d) failed: %v", i, err)
		}
	}

	metrics, err := e.Analyze(spec, c.ID, []float64{0, 0})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if metrics.BestValues["yield"] != 3 {
		t.Fatalf("expected best yield 3, got %+v", metrics.BestValues)
	}
	if metrics.BestValues["cost"] != 1 {
		t.Fatalf("expected best (minimal) cost 1, got %+v", metrics.BestValues)
	}
}

func TestParetoFrontExcludesDominatedObservations(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	// dominated: lower yield and higher cost than the next point.
	if _, err := e.AddObservation(c.ID, map[string]any{"temperature": 20.0}, map[string]float64{"yield": 1, "cost": 5}, true); err != nil {
		t.Fatalf("AddObservation(0) failed: %v", err)
	}
	if _, err := e.AddObservation(c.ID, map[string]any{"temperature": 30.0}, map[string]float64{"yield": 5, "cost": 1}, true); err != nil {
		t.Fatalf("AddObservation(1) failed: %v", err)
	}

	front, err := e.ParetoFront(spec, c.ID)
	if err != nil {
		t.Fatalf("ParetoFront failed: %v", err)
	}
	if len(front) != 1 {
		t.Fatalf("expected exactly 1 Pareto-optimal observation, got %d", len(front))
	}
	if front[0].XRaw["temperature"].(float64) != 30.0 {
		t.Fatalf("expected the non-dominated point at temperature=30, got %+v", front[0].XRaw)
	}
}

func TestPauseResumeCompleteTransitions(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	if _, err := e.InitialDesign(spec, c.ID, "default", 1); err != nil {
		t.Fatalf("InitialDesign failed: %v", err)
	}

	if err := e.Pause(c.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	got, _ := s.GetCampaign(c.ID)
	if got.Status != store.CampaignPaused {
		t.Fatalf("expected PAUSED, got %v", got.Status)
	}

	if err := e.Resume(c.ID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	got, _ = s.GetCampaign(c.ID)
	if got.Status != store.CampaignActive {
		t.Fatalf("expected ACTIVE, got %v", got.Status)
	}

	if err := e.Complete(c.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	got, _ = s.GetCampaign(c.ID)
	if got.Status != store.CampaignCompleted {
		t.Fatalf("expected COMPLETED, got %v", got.Status)
	}
}

func TestLoadSpecRoundTripsStoredProcessSpec(t *testing.T) {
	e, s := testEngine(t)
	spec := testSpec(t)
	c := seedCampaign(t, s, spec)

	got, err := e.LoadSpec(c.ID)
	if err != nil {
		t.Fatalf("LoadSpec failed: %v", err)
	}
	if got.Name != spec.Name || len(got.Objectives) != len(spec.Objectives) {
		t.Fatalf("unexpected round-tripped spec: %+v", got)
	}
}
