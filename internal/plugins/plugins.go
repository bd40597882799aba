// Package plugins defines the capability-set interfaces the strategy
// executor depends on (sampler / surrogate model / acquisition function /
// input constraint) and a typed, named registry for each of the four
// partitions.
package plugins

import (
	"context"

	"github.com/antigravity-dev/boa/internal/specfile"
)

// Sampler draws points from the input space, either for initial design or as
// a random-baseline acquisition fallback.
type Sampler interface {
	Name() string
	// DefaultParams returns this plugin's own parameter defaults, merged
	// under the strategy's override map by the executor before Sample runs.
	DefaultParams() map[string]any
	// Sample returns an encoded [0,1]^{n x d} matrix.
	Sample(spec *specfile.ProcessSpec, n int, params map[string]any) ([][]float64, error)
	// SampleRaw returns the same points decoded to raw input maps.
	SampleRaw(spec *specfile.ProcessSpec, n int, params map[string]any) ([]map[string]any, error)
}

// Posterior is a surrogate model's prediction at a set of points: per-point,
// per-objective mean and standard deviation.
type Posterior struct {
	Mean []float64 // flattened n x p, row-major
	Std  []float64
}

// Model is a fitted surrogate regressor.
type Model interface {
	// Posterior predicts mean/std at the given encoded points (n x d).
	Posterior(X [][]float64) (Posterior, error)
	// Save serializes model state for checkpointing.
	Save() (map[string]any, error)
}

// ModelPlugin fits a Model on training data. X is n x d encoded inputs, Y is
// n x p objective values already transformed to the internal "always
// maximize" representation.
type ModelPlugin interface {
	Name() string
	// DefaultParams returns this plugin's own parameter defaults, merged
	// under the strategy's override map by the executor before Fit runs.
	DefaultParams() map[string]any
	Fit(X, Y [][]float64, params map[string]any) (Model, error)
	Load(state map[string]any) (Model, error)
}

// Acquisition is a built acquisition function: scalar-valued over candidate
// points, used to score and to drive optimization.
type Acquisition interface {
	Evaluate(X [][]float64) ([]float64, error)
}

// AcquisitionPlugin builds and optimizes an acquisition function.
type AcquisitionPlugin interface {
	Name() string
	// DefaultParams returns this plugin's own parameter defaults, merged
	// under the strategy's override map by the executor before Build and
	// Optimize run.
	DefaultParams() map[string]any
	// Build constructs the acquisition function. bestF is nil unless p==1.
	// May return a nil Acquisition for random-baseline strategies.
	Build(model Model, bestF []float64, refPoint []float64, params map[string]any) (Acquisition, error)
	// Optimize returns q candidate points in [0,1]^d maximizing acq (or, for
	// a nil acq, drawing q random points).
	Optimize(ctx context.Context, acq Acquisition, lower, upper []float64, q int, params map[string]any) ([][]float64, error)
}

// InputConstraint checks and projects candidates into a feasible region.
type InputConstraint interface {
	Name() string
	// DefaultParams returns this plugin's own parameter defaults, merged
	// under the caller's override map before Check/Apply run.
	DefaultParams() map[string]any
	Check(X [][]float64, spec *specfile.ProcessSpec, params map[string]any) ([]bool, error)
	Apply(X [][]float64, spec *specfile.ProcessSpec, params map[string]any) ([][]float64, error)
}
