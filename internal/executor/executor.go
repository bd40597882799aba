// Package executor implements the StrategyExecutor: the component that
// turns one named strategy (sampler + model + acquisition) into either an
// initial batch of design points or one optimization-iteration batch of
// candidates, given the encoder and plugin registry.
package executor

import (
	"context"
	"math"

	"github.com/antigravity-dev/boa/internal/boaerr"
	"github.com/antigravity-dev/boa/internal/encoder"
	"github.com/antigravity-dev/boa/internal/plugins"
	"github.com/antigravity-dev/boa/internal/specfile"
)

// Executor drives one strategy's sampler/model/acquisition plugins against an
// encoder and registry. Stateless beyond its constructor arguments; safe for
// concurrent use across campaigns.
type Executor struct {
	registry *plugins.Registry
}

func New(registry *plugins.Registry) *Executor {
	return &Executor{registry: registry}
}

// InitialDesignResult is the output of ExecuteInitialDesign.
type InitialDesignResult struct {
	Encoded [][]float64
	Raw     []map[string]any
}

// ExecuteInitialDesign draws n design points via the strategy's sampler.
func (e *Executor) ExecuteInitialDesign(spec *specfile.ProcessSpec, strategy specfile.Strategy, n int) (InitialDesignResult, error) {
	sampler, err := e.registry.Sampler(strategy.Sampler)
	if err != nil {
		return InitialDesignResult{}, err
	}
	samplerParams := mergeParams(sampler.DefaultParams(), strategy.SamplerParams)
	encoded, err := sampler.Sample(spec, n, samplerParams)
	if err != nil {
		return InitialDesignResult{}, boaerr.Wrap(boaerr.KindExecutionError, err, "strategy %q: initial design sampling failed", strategy.Name)
	}
	enc := encoder.New(spec)
	raw := enc.Decode(encoded)
	return InitialDesignResult{Encoded: encoded, Raw: raw}, nil
}

// OptimizationResult is the output of ExecuteOptimization: q candidate
// points plus the posterior mean/std predicted at them, and the fitted
// model's serialized state for checkpointing.
type OptimizationResult struct {
	Encoded    [][]float64
	Raw        []map[string]any
	Mean       []float64 // flattened q x p
	Std        []float64
	ModelState map[string]any
}

// ExecuteOptimization fits the strategy's model on (trainX, trainY) — trainY
// already in each objective's natural units — and asks the acquisition
// function to propose q new candidates.
//
// Objectives with Direction == Minimize are sign-flipped internally so every
// downstream computation (best_f, reference point, acquisition scoring)
// operates in an "always maximize" frame, matching execute_optimization's
// `Y = Y * signs` step. The reference point, when not supplied in
// strategy.AcquisitionParams["ref_point"], defaults to min(Y) - 0.1*std(Y)
// per column.
func (e *Executor) ExecuteOptimization(ctx context.Context, spec *specfile.ProcessSpec, strategy specfile.Strategy, trainX, trainY [][]float64, q int) (OptimizationResult, error) {
	if len(trainX) == 0 {
		return OptimizationResult{}, boaerr.New(boaerr.KindExecutionError, "strategy %q: cannot optimize with zero training observations", strategy.Name)
	}

	modelPlugin, err := e.registry.Model(strategy.Model)
	if err != nil {
		return OptimizationResult{}, err
	}
	acqPlugin, err := e.registry.Acquisition(strategy.Acquisition)
	if err != nil {
		return OptimizationResult{}, err
	}

	signs := signsFor(spec)
	signedY := applySigns(trainY, signs)

	modelParams := mergeParams(modelPlugin.DefaultParams(), strategy.ModelParams)
	model, err := modelPlugin.Fit(trainX, signedY, modelParams)
	if err != nil {
		return OptimizationResult{}, boaerr.Wrap(boaerr.KindExecutionError, err, "strategy %q: model fit failed", strategy.Name)
	}

	p := len(spec.Objectives)
	var bestF []float64
	if p == 1 {
		bestF = []float64{columnMax(signedY, 0)}
	}

	refPoint := referencePoint(strategy.AcquisitionParams, signedY, signs)

	acqParams := mergeParams(mergeParams(acqPlugin.DefaultParams(), strategy.AcquisitionParams), map[string]any{
		"train_y":      signedY,
		"n_objectives": p,
	})

	acq, err := acqPlugin.Build(model, bestF, refPoint, acqParams)
	if err != nil {
		return OptimizationResult{}, boaerr.Wrap(boaerr.KindExecutionError, err, "strategy %q: acquisition build failed", strategy.Name)
	}

	enc := encoder.New(spec)
	lower, upper := enc.Bounds()

	candidates, err := acqPlugin.Optimize(ctx, acq, lower, upper, q, acqParams)
	if err != nil {
		return OptimizationResult{}, boaerr.Wrap(boaerr.KindExecutionError, err, "strategy %q: acquisition optimization failed", strategy.Name)
	}

	projected := make([][]float64, len(candidates))
	for i, c := range candidates {
		projected[i] = enc.Project(c)
	}

	mean, std, err := posteriorAt(model, projected, p)
	if err != nil {
		return OptimizationResult{}, boaerr.Wrap(boaerr.KindExecutionError, err, "strategy %q: posterior evaluation failed", strategy.Name)
	}

	state, err := model.Save()
	if err != nil {
		return OptimizationResult{}, boaerr.Wrap(boaerr.KindExecutionError, err, "strategy %q: model save failed", strategy.Name)
	}

	return OptimizationResult{
		Encoded:    projected,
		Raw:        enc.Decode(projected),
		Mean:       signFlatMean(mean, signs, p, len(projected)),
		Std:        std,
		ModelState: state,
	}, nil
}

func signsFor(spec *specfile.ProcessSpec) []float64 {
	signs := make([]float64, len(spec.Objectives))
	for i, obj := range spec.Objectives {
		if obj.IsMaximization() {
			signs[i] = 1
		} else {
			signs[i] = -1
		}
	}
	return signs
}

func applySigns(Y [][]float64, signs []float64) [][]float64 {
	out := make([][]float64, len(Y))
	for i, row := range Y {
		r := make([]float64, len(row))
		for j, v := range row {
			s := 1.0
			if j < len(signs) {
				s = signs[j]
			}
			r[j] = v * s
		}
		out[i] = r
	}
	return out
}

func columnMax(Y [][]float64, col int) float64 {
	best := math.Inf(-1)
	for _, row := range Y {
		if col < len(row) && row[col] > best {
			best = row[col]
		}
	}
	return best
}

func referencePoint(params map[string]any, signedY [][]float64, signs []float64) []float64 {
	if params != nil {
		if rp, ok := params["ref_point"].([]float64); ok {
			return applySigns([][]float64{rp}, signs)[0]
		}
	}
	if len(signedY) == 0 {
		return nil
	}
	p := len(signedY[0])
	ref := make([]float64, p)
	for col := 0; col < p; col++ {
		vals := make([]float64, len(signedY))
		for i, row := range signedY {
			vals[i] = row[col]
		}
		mn := minOf(vals)
		ref[col] = mn - 0.1*stdDev(vals)
	}
	return ref
}

func minOf(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		if x < m {
			m = x
		}
	}
	return m
}

func stdDev(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	variance := 0.0
	for _, x := range v {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(v))
	return math.Sqrt(variance)
}

func mergeParams(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func posteriorAt(model plugins.Model, X [][]float64, p int) (mean, std []float64, err error) {
	post, err := model.Posterior(X)
	if err != nil {
		return nil, nil, err
	}
	return post.Mean, post.Std, nil
}

// signFlatMean un-flips the sign-flipped posterior mean back to each
// objective's natural direction before it is persisted or shown to callers.
func signFlatMean(flatMean []float64, signs []float64, p, n int) []float64 {
	out := make([]float64, len(flatMean))
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			idx := i*p + j
			if idx >= len(flatMean) {
				continue
			}
			s := 1.0
			if j < len(signs) {
				s = signs[j]
			}
			out[idx] = flatMean[idx] * s
		}
	}
	return out
}
