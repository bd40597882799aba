package builtin

import (
	"context"
	"math"

	"github.com/antigravity-dev/boa/internal/plugins"
)

// candidateAcquisition scores a fixed pool of candidate points; Optimize
// draws a large random pool, evaluates, and greedily selects the top q. This
// replaces botorch's gradient-based acquisition optimizer (core/executor.py's
// optimize_acqf call) with random-restart search, since no autograd/numerical
// optimization library is present anywhere in the example pack.
type candidateAcquisition struct {
	score func(x []float64) float64
}

func (a *candidateAcquisition) Evaluate(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = a.score(x)
	}
	return out, nil
}

const acqOptimizePoolSize = 512

func poolSizeParam(params map[string]any) int {
	switch v := params["pool_size"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return acqOptimizePoolSize
	}
}

func optimizeByPoolSearch(ctx context.Context, acq plugins.Acquisition, lower, upper []float64, q int, params map[string]any) ([][]float64, error) {
	r := seedFromParams(params)
	d := len(lower)
	pool := make([][]float64, poolSizeParam(params))
	for i := range pool {
		row := make([]float64, d)
		for j := range row {
			row[j] = lower[j] + r.Float64()*(upper[j]-lower[j])
		}
		pool[i] = row
	}

	if acq == nil {
		if q >= len(pool) {
			return pool, nil
		}
		return pool[:q], nil
	}

	scores, err := acq.Evaluate(pool)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(pool))
	for i := range order {
		order[i] = i
	}
	// simple selection of the top-q by score, ties broken by pool order
	selected := make([]int, 0, q)
	used := make([]bool, len(pool))
	for k := 0; k < q && k < len(pool); k++ {
		best, bestIdx := math.Inf(-1), -1
		for i, idx := range order {
			if used[i] {
				continue
			}
			if scores[idx] > best {
				best = scores[idx]
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		selected = append(selected, order[bestIdx])
	}

	out := make([][]float64, len(selected))
	for i, idx := range selected {
		out[i] = pool[idx]
	}
	return out, nil
}

func paretoDominates(a, b []float64) bool {
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

// hypervolumeContribution approximates expected hypervolume improvement by the
// deterministic hypervolume contribution of the posterior mean against the
// current reference point and the training observations, substituting for
// botorch's Monte Carlo qNEHVI/qlogNEHVI estimators.
func hypervolumeContribution(mean []float64, trainY [][]float64, refPoint []float64) float64 {
	p := len(mean)
	vol := 1.0
	for i := 0; i < p; i++ {
		d := mean[i] - refPoint[i]
		if d <= 0 {
			return 0
		}
		vol *= d
	}
	for _, y := range trainY {
		if paretoDominates(y, mean) {
			return 0
		}
	}
	return vol
}

func buildHVAcquisition(model plugins.Model, refPoint []float64, trainY [][]float64, useLog bool) plugins.Acquisition {
	return &candidateAcquisition{score: func(x []float64) float64 {
		post, err := model.Posterior([][]float64{x})
		if err != nil {
			return math.Inf(-1)
		}
		hv := hypervolumeContribution(post.Mean, trainY, refPoint)
		if useLog {
			return math.Log(hv + 1e-9)
		}
		return hv
	}}
}

// QLogNEHVIAcquisition is the default multi-objective acquisition: a
// log-transformed hypervolume-improvement score, approximating qlogNEHVI.
type QLogNEHVIAcquisition struct{}

func (QLogNEHVIAcquisition) Name() string { return "qlogNEHVI" }

func (QLogNEHVIAcquisition) DefaultParams() map[string]any { return map[string]any{"pool_size": acqOptimizePoolSize} }

func (QLogNEHVIAcquisition) Build(model plugins.Model, bestF, refPoint []float64, params map[string]any) (plugins.Acquisition, error) {
	trainY, _ := params["train_y"].([][]float64)
	return buildHVAcquisition(model, refPoint, trainY, true), nil
}

func (QLogNEHVIAcquisition) Optimize(ctx context.Context, acq plugins.Acquisition, lower, upper []float64, q int, params map[string]any) ([][]float64, error) {
	return optimizeByPoolSearch(ctx, acq, lower, upper, q, params)
}

// QNEHVIAcquisition is the untransformed hypervolume-improvement variant.
type QNEHVIAcquisition struct{}

func (QNEHVIAcquisition) Name() string { return "qNEHVI" }

func (QNEHVIAcquisition) DefaultParams() map[string]any { return map[string]any{"pool_size": acqOptimizePoolSize} }

func (QNEHVIAcquisition) Build(model plugins.Model, bestF, refPoint []float64, params map[string]any) (plugins.Acquisition, error) {
	trainY, _ := params["train_y"].([][]float64)
	return buildHVAcquisition(model, refPoint, trainY, false), nil
}

func (QNEHVIAcquisition) Optimize(ctx context.Context, acq plugins.Acquisition, lower, upper []float64, q int, params map[string]any) ([][]float64, error) {
	return optimizeByPoolSearch(ctx, acq, lower, upper, q, params)
}

// QParEGOAcquisition scalarizes multiple objectives via a random augmented
// Chebyshev weighting and scores expected improvement on the scalarized
// posterior, matching ParEGO's per-iteration random-weight scalarization.
type QParEGOAcquisition struct{}

func (QParEGOAcquisition) Name() string { return "qParEGO" }

func (QParEGOAcquisition) DefaultParams() map[string]any { return map[string]any{"pool_size": acqOptimizePoolSize} }

func (QParEGOAcquisition) Build(model plugins.Model, bestF, refPoint []float64, params map[string]any) (plugins.Acquisition, error) {
	r := seedFromParams(params)
	p := 1
	if bf, ok := params["n_objectives"].(int); ok {
		p = bf
	} else if len(bestF) > 0 {
		p = len(bestF)
	}
	weights := make([]float64, p)
	sum := 0.0
	for i := range weights {
		weights[i] = r.Float64()
		sum += weights[i]
	}
	if sum == 0 {
		sum = 1
	}
	for i := range weights {
		weights[i] /= sum
	}

	scalarBest := math.Inf(-1)
	if len(bestF) > 0 {
		scalarBest = 0
		for i, w := range weights {
			if i < len(bestF) {
				scalarBest += w * bestF[i]
			}
		}
	}

	return &candidateAcquisition{score: func(x []float64) float64 {
		post, err := model.Posterior([][]float64{x})
		if err != nil {
			return math.Inf(-1)
		}
		scalar := 0.0
		for i, w := range weights {
			if i < len(post.Mean) {
				scalar += w * post.Mean[i]
			}
		}
		improvement := scalar - scalarBest
		if improvement < 0 {
			improvement = 0
		}
		return improvement
	}}, nil
}

func (QParEGOAcquisition) Optimize(ctx context.Context, acq plugins.Acquisition, lower, upper []float64, q int, params map[string]any) ([][]float64, error) {
	return optimizeByPoolSearch(ctx, acq, lower, upper, q, params)
}

// RandomAcquisition always draws q uniform random candidates, ignoring the
// fitted model entirely; used for baseline/ablation strategies.
type RandomAcquisition struct{}

func (RandomAcquisition) Name() string { return "random" }

func (RandomAcquisition) DefaultParams() map[string]any { return map[string]any{} }

func (RandomAcquisition) Build(model plugins.Model, bestF, refPoint []float64, params map[string]any) (plugins.Acquisition, error) {
	return nil, nil
}

func (RandomAcquisition) Optimize(ctx context.Context, acq plugins.Acquisition, lower, upper []float64, q int, params map[string]any) ([][]float64, error) {
	r := seedFromParams(params)
	d := len(lower)
	out := make([][]float64, q)
	for i := range out {
		row := make([]float64, d)
		for j := range row {
			row[j] = lower[j] + r.Float64()*(upper[j]-lower[j])
		}
		out[i] = row
	}
	return out, nil
}
