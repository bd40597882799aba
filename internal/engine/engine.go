// Package engine implements the CampaignEngine: the orchestrator that wires
// the store, spec, encoder, plugin registry, strategy executor, ledger, and
// checkpointer together into the campaign-level operations (initial design,
// optimization iteration, observation recording, acceptance, analysis,
// pause/resume/complete).
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/antigravity-dev/boa/internal/analyzer"
	"github.com/antigravity-dev/boa/internal/boaerr"
	"github.com/antigravity-dev/boa/internal/checkpointer"
	"github.com/antigravity-dev/boa/internal/encoder"
	"github.com/antigravity-dev/boa/internal/executor"
	"github.com/antigravity-dev/boa/internal/ledger"
	"github.com/antigravity-dev/boa/internal/lock"
	"github.com/antigravity-dev/boa/internal/plugins"
	"github.com/antigravity-dev/boa/internal/specfile"
	"github.com/antigravity-dev/boa/internal/store"
)

// Engine orchestrates every mutating and read-only campaign operation. Every
// mutating method acquires the campaign's write lock for the duration of the
// call: acquire, do the work inside a transaction, commit, release — and
// release (without committing any partial writes) on any failure.
type Engine struct {
	store    *store.Store
	registry *plugins.Registry
	lock     *lock.CampaignLock
	ledger   *ledger.Ledger
	checkpts *checkpointer.Checkpointer
	holder   string
}

func New(s *store.Store, registry *plugins.Registry, l *lock.CampaignLock, cp *checkpointer.Checkpointer, holder string) *Engine {
	return &Engine{
		store:    s,
		registry: registry,
		lock:     l,
		ledger:   ledger.New(s),
		checkpts: cp,
		holder:   holder,
	}
}

// LoadSpec resolves a campaign's ProcessSpec from its stored process row.
// Exported for callers outside this package (job handlers, CLI admin
// commands) that need the spec without driving a full engine operation.
func (e *Engine) LoadSpec(campaignID string) (*specfile.ProcessSpec, error) {
	spec, _, err := e.loadSpec(campaignID)
	return spec, err
}

// loadSpec resolves a campaign's ProcessSpec from its stored process row.
func (e *Engine) loadSpec(campaignID string) (*specfile.ProcessSpec, *store.Campaign, error) {
	campaign, err := e.store.GetCampaign(campaignID)
	if err != nil {
		return nil, nil, boaerr.NotFoundf("campaign %q not found", campaignID)
	}
	proc, err := e.store.GetProcess(campaign.ProcessID)
	if err != nil {
		return nil, nil, boaerr.NotFoundf("process %q not found for campaign %q", campaign.ProcessID, campaignID)
	}
	var spec specfile.ProcessSpec
	if err := json.Unmarshal([]byte(proc.SpecJSON), &spec); err != nil {
		return nil, nil, fmt.Errorf("engine: unmarshal process spec: %w", err)
	}
	return &spec, campaign, nil
}

// computeDatasetHash is the SHA-256 of the JSON-serialized (X, Y) training
// arrays. Used to detect whether an iteration's model was fit against the
// same training snapshot.
func computeDatasetHash(X, Y [][]float64) string {
	payload, _ := json.Marshal(struct {
		X [][]float64 `json:"x"`
		Y [][]float64 `json:"y"`
	}{X, Y})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// trainingData gathers every feasible campaign observation (infeasible ones
// are skipped), encoding X via the spec's encoder and collecting Y in
// objective order (natural units).
func (e *Engine) trainingData(spec *specfile.ProcessSpec, campaignID string) ([][]float64, [][]float64, error) {
	observations, err := store.ListObservations(e.store.DB(), campaignID)
	if err != nil {
		return nil, nil, err
	}

	enc := encoder.New(spec)
	X := make([][]float64, 0, len(observations))
	Y := make([][]float64, 0, len(observations))
	for _, o := range observations {
		if !o.Feasible {
			continue
		}
		X = append(X, enc.EncodeOne(o.XRaw))
		row := make([]float64, len(spec.Objectives))
		for i, obj := range spec.Objectives {
			row[i] = o.YRaw[obj.Name]
		}
		Y = append(Y, row)
	}
	return X, Y, nil
}

// InitialDesignResult is returned by InitialDesign.
type InitialDesignResult struct {
	Iteration *store.Iteration
	Proposal  *store.Proposal
}

// InitialDesign draws the first batch of design points for a campaign using
// the named strategy's sampler, recording a new iteration and its proposals.
func (e *Engine) InitialDesign(spec *specfile.ProcessSpec, campaignID, strategyName string, n int) (result InitialDesignResult, err error) {
	strategy, ok := spec.Strategies[strategyName]
	if !ok {
		return result, boaerr.New(boaerr.KindValidationError, "unknown strategy %q", strategyName)
	}

	err = e.lock.WithLock(campaignID, e.holder, func() error {
		it, err := e.ledger.StartIteration(campaignID, strategyName, "")
		if err != nil {
			return err
		}

		exec := executor.New(e.registry)
		design, err := exec.ExecuteInitialDesign(spec, strategy, n)
		if err != nil {
			return err
		}

		p := &store.Proposal{
			IterationID:       it.ID,
			StrategyName:      strategyName,
			CandidatesRaw:     design.Raw,
			CandidatesEncoded: design.Encoded,
		}
		if err := e.ledger.AddProposal(p); err != nil {
			return err
		}

		result = InitialDesignResult{Iteration: it, Proposal: p}
		return nil
	})
	return result, err
}

// OptimizationIterationResult is returned by OptimizationIteration.
type OptimizationIterationResult struct {
	Iteration  *store.Iteration
	Proposal   *store.Proposal
	Checkpoint *store.Checkpoint
}

// OptimizationIteration fits the named strategy's model on every accumulated
// observation, proposes q new candidates, records them as a new iteration,
// and checkpoints the fitted model state.
func (e *Engine) OptimizationIteration(ctx context.Context, spec *specfile.ProcessSpec, campaignID, strategyName string, q int) (result OptimizationIterationResult, err error) {
	strategy, ok := spec.Strategies[strategyName]
	if !ok {
		return result, boaerr.New(boaerr.KindValidationError, "unknown strategy %q", strategyName)
	}

	err = e.lock.WithLock(campaignID, e.holder, func() error {
		trainX, trainY, err := e.trainingData(spec, campaignID)
		if err != nil {
			return err
		}
		datasetHash := computeDatasetHash(trainX, trainY)

		it, err := e.ledger.StartIteration(campaignID, strategyName, datasetHash)
		if err != nil {
			return err
		}

		exec := executor.New(e.registry)
		opt, err := exec.ExecuteOptimization(ctx, spec, strategy, trainX, trainY, q)
		if err != nil {
			return err
		}

		p := len(spec.Objectives)
		mean := make([][]float64, len(opt.Raw))
		std := make([][]float64, len(opt.Raw))
		for i := range opt.Raw {
			mean[i] = opt.Mean[i*p : (i+1)*p]
			std[i] = opt.Std[i*p : (i+1)*p]
		}

		prop := &store.Proposal{
			IterationID:       it.ID,
			StrategyName:      strategyName,
			CandidatesRaw:     opt.Raw,
			CandidatesEncoded: opt.Encoded,
			PredictedMean:     mean,
			PredictedStd:      std,
		}
		if err := e.ledger.AddProposal(prop); err != nil {
			return err
		}

		cp, err := e.checkpts.Save(campaignID, it.Index, strategyName, opt.ModelState)
		if err != nil {
			return err
		}

		result = OptimizationIterationResult{Iteration: it, Proposal: prop, Checkpoint: cp}
		return nil
	})
	return result, err
}

// AddObservation records a single (x, y) pair against a campaign.
func (e *Engine) AddObservation(campaignID string, xRaw map[string]any, yRaw map[string]float64, feasible bool) (obs *store.Observation, err error) {
	err = e.lock.WithLock(campaignID, e.holder, func() error {
		obs = &store.Observation{CampaignID: campaignID, XRaw: xRaw, YRaw: yRaw, Feasible: feasible}
		return e.ledger.AddObservation(obs)
	})
	return obs, err
}

// AddObservations records a batch of observations atomically.
func (e *Engine) AddObservations(campaignID string, items []*store.Observation) error {
	return e.lock.WithLock(campaignID, e.holder, func() error {
		for _, o := range items {
			o.CampaignID = campaignID
		}
		return e.ledger.AddObservations(items)
	})
}

// AcceptCandidates records a decision accepting a subset of the candidates
// carried by one or more of an iteration's proposals.
func (e *Engine) AcceptCandidates(campaignID, iterationID string, accepted []store.AcceptedCandidates, note string) (*store.Decision, error) {
	var d *store.Decision
	err := e.lock.WithLock(campaignID, e.holder, func() error {
		d = &store.Decision{IterationID: iterationID, Accepted: accepted, Note: note}
		return e.ledger.RecordDecision(d)
	})
	return d, err
}

// Analyze computes the current campaign metrics, without requiring the
// write lock (read-only).
func (e *Engine) Analyze(spec *specfile.ProcessSpec, campaignID string, refPoint []float64) (analyzer.Metrics, error) {
	observations, err := store.ListObservations(e.store.DB(), campaignID)
	if err != nil {
		return analyzer.Metrics{}, err
	}
	ys := make([]map[string]float64, len(observations))
	for i, o := range observations {
		ys[i] = o.YRaw
	}
	a := analyzer.New(spec.Objectives)
	return a.Compute(ys, refPoint), nil
}

// ParetoFront returns the raw x/y pairs of every Pareto-optimal observation.
func (e *Engine) ParetoFront(spec *specfile.ProcessSpec, campaignID string) ([]store.Observation, error) {
	observations, err := store.ListObservations(e.store.DB(), campaignID)
	if err != nil {
		return nil, err
	}

	ys := make([]map[string]float64, len(observations))
	for i, o := range observations {
		ys[i] = o.YRaw
	}
	mask := paretoMaskFor(spec, ys)
	var front []store.Observation
	for i, onFront := range mask {
		if onFront {
			front = append(front, observations[i])
		}
	}
	return front, nil
}

func paretoMaskFor(spec *specfile.ProcessSpec, ys []map[string]float64) []bool {
	signed := make([][]float64, len(ys))
	for i, y := range ys {
		row := make([]float64, len(spec.Objectives))
		for j, obj := range spec.Objectives {
			v, ok := y[obj.Name]
			if !ok {
				row[j] = 0
				continue
			}
			if obj.IsMaximization() {
				row[j] = v
			} else {
				row[j] = -v
			}
		}
		signed[i] = row
	}

	n := len(signed)
	mask := make([]bool, n)
	for i := 0; i < n; i++ {
		dominated := false
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if paretoDominates(signed[j], signed[i]) {
				dominated = true
				break
			}
		}
		mask[i] = !dominated
	}
	return mask
}

func paretoDominates(a, b []float64) bool {
	better := false
	for i := range a {
		if a[i] < b[i] {
			return false
		}
		if a[i] > b[i] {
			better = true
		}
	}
	return better
}

// Pause transitions a campaign from ACTIVE to PAUSED.
func (e *Engine) Pause(campaignID string) error {
	return e.lock.WithLock(campaignID, e.holder, func() error {
		return e.store.SetCampaignStatus(campaignID, store.CampaignPaused)
	})
}

// Resume transitions a campaign from PAUSED back to ACTIVE.
func (e *Engine) Resume(campaignID string) error {
	return e.lock.WithLock(campaignID, e.holder, func() error {
		return e.store.SetCampaignStatus(campaignID, store.CampaignActive)
	})
}

// Complete transitions a campaign to COMPLETED.
func (e *Engine) Complete(campaignID string) error {
	return e.lock.WithLock(campaignID, e.holder, func() error {
		return e.store.SetCampaignStatus(campaignID, store.CampaignCompleted)
	})
}
