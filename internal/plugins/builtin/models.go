package builtin

import (
	"math"

	"github.com/antigravity-dev/boa/internal/boaerr"
	"github.com/antigravity-dev/boa/internal/plugins"
)

// kernelModel is a Gaussian-process-flavored surrogate: a kernel-weighted
// regressor (Nadaraya-Watson weighting, with the noise term added to every
// kernel weight) using either a squared-exponential ("rbf") or Matern-5/2
// kernel. It stands in for
// botorch's SingleTaskGP / MixedSingleTaskGP (core/models.py's gp_matern and
// gp_rbf plugins) without a tensor/autograd dependency: no linear-algebra
// library appears anywhere in the example pack, so the posterior is computed
// with a closed-form kernel-weighted estimator rather than a full GP solve
// (see DESIGN.md for the standard-library justification).
type kernelModel struct {
	X          [][]float64
	Y          [][]float64
	lengthScale float64
	noise      float64
	kernel     func(a, b []float64, lengthScale float64) float64
}

func sqExpKernel(a, b []float64, lengthScale float64) float64 {
	d2 := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d2 += diff * diff
	}
	return math.Exp(-d2 / (2 * lengthScale * lengthScale))
}

func matern52Kernel(a, b []float64, lengthScale float64) float64 {
	d2 := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d2 += diff * diff
	}
	r := math.Sqrt(d2) / lengthScale
	sqrt5 := math.Sqrt(5)
	return (1 + sqrt5*r + 5*r*r/3) * math.Exp(-sqrt5*r)
}

func (m *kernelModel) Posterior(X [][]float64) (plugins.Posterior, error) {
	p := 0
	if len(m.Y) > 0 {
		p = len(m.Y[0])
	}
	mean := make([]float64, len(X)*p)
	std := make([]float64, len(X)*p)

	for i, x := range X {
		weights := make([]float64, len(m.X))
		sumW := 0.0
		for j, xj := range m.X {
			w := m.kernel(x, xj, m.lengthScale) + m.noise
			weights[j] = w
			sumW += w
		}
		if sumW == 0 {
			sumW = 1
		}
		for obj := 0; obj < p; obj++ {
			wsum, wsumSq := 0.0, 0.0
			for j := range m.X {
				wn := weights[j] / sumW
				wsum += wn * m.Y[j][obj]
			}
			for j := range m.X {
				wn := weights[j] / sumW
				diff := m.Y[j][obj] - wsum
				wsumSq += wn * diff * diff
			}
			mean[i*p+obj] = wsum
			std[i*p+obj] = math.Sqrt(wsumSq + 1e-6)
		}
	}
	return plugins.Posterior{Mean: mean, Std: std}, nil
}

func (m *kernelModel) Save() (map[string]any, error) {
	return map[string]any{
		"X":            m.X,
		"Y":            m.Y,
		"length_scale": m.lengthScale,
		"noise":        m.noise,
	}, nil
}

func floatParam(params map[string]any, key string, def float64) float64 {
	if params == nil {
		return def
	}
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

func restoreMatrix(v any) [][]float64 {
	raw, ok := v.([]any)
	if !ok {
		if m, ok := v.([][]float64); ok {
			return m
		}
		return nil
	}
	out := make([][]float64, len(raw))
	for i, row := range raw {
		r, _ := row.([]any)
		out[i] = make([]float64, len(r))
		for j, x := range r {
			out[i][j] = asFloat(x)
		}
	}
	return out
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// GPMaternModel is the default surrogate: Matern-5/2 kernel weighting.
type GPMaternModel struct{}

func (GPMaternModel) Name() string { return "gp_matern" }

func (GPMaternModel) DefaultParams() map[string]any {
	return map[string]any{"length_scale": 0.3, "noise": 1e-3}
}

func (GPMaternModel) Fit(X, Y [][]float64, params map[string]any) (plugins.Model, error) {
	if len(X) == 0 {
		return nil, boaerr.New(boaerr.KindExecutionError, "gp_matern: cannot fit with zero observations")
	}
	return &kernelModel{
		X: X, Y: Y,
		lengthScale: floatParam(params, "length_scale", 0.3),
		noise:       floatParam(params, "noise", 1e-3),
		kernel:      matern52Kernel,
	}, nil
}

func (GPMaternModel) Load(state map[string]any) (plugins.Model, error) {
	return &kernelModel{
		X:           restoreMatrix(state["X"]),
		Y:           restoreMatrix(state["Y"]),
		lengthScale: floatParam(state, "length_scale", 0.3),
		noise:       floatParam(state, "noise", 1e-3),
		kernel:      matern52Kernel,
	}, nil
}

// GPRBFModel uses a squared-exponential kernel instead of Matern-5/2.
type GPRBFModel struct{}

func (GPRBFModel) Name() string { return "gp_rbf" }

func (GPRBFModel) DefaultParams() map[string]any {
	return map[string]any{"length_scale": 0.3, "noise": 1e-3}
}

func (GPRBFModel) Fit(X, Y [][]float64, params map[string]any) (plugins.Model, error) {
	if len(X) == 0 {
		return nil, boaerr.New(boaerr.KindExecutionError, "gp_rbf: cannot fit with zero observations")
	}
	return &kernelModel{
		X: X, Y: Y,
		lengthScale: floatParam(params, "length_scale", 0.3),
		noise:       floatParam(params, "noise", 1e-3),
		kernel:      sqExpKernel,
	}, nil
}

func (GPRBFModel) Load(state map[string]any) (plugins.Model, error) {
	return &kernelModel{
		X:           restoreMatrix(state["X"]),
		Y:           restoreMatrix(state["Y"]),
		lengthScale: floatParam(state, "length_scale", 0.3),
		noise:       floatParam(state, "noise", 1e-3),
		kernel:      sqExpKernel,
	}, nil
}
