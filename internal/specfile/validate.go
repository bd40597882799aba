package specfile

import (
	"fmt"
	"sort"
)

// Validate checks a parsed ProcessSpec for consistency and cross-reference
// correctness, returning all violations found rather than stopping at the
// first, accumulated into a single error list.
func Validate(spec *ProcessSpec, opts LoadOptions) []string {
	var errs []string
	errs = append(errs, validateInputs(spec)...)
	errs = append(errs, validateObjectives(spec)...)
	errs = append(errs, validateConstraints(spec)...)
	errs = append(errs, validateStrategies(spec, opts)...)
	errs = append(errs, validateConditionalDependencies(spec)...)
	return errs
}

func validateInputs(spec *ProcessSpec) []string {
	var errs []string
	if len(spec.Inputs) == 0 {
		return append(errs, "at least one input is required")
	}

	seen := map[string]int{}
	for _, in := range spec.Inputs {
		seen[in.Name]++
	}
	for name, count := range seen {
		if count > 1 {
			errs = append(errs, fmt.Sprintf("duplicate input name: %q", name))
		}
	}

	for _, in := range spec.Inputs {
		switch in.Kind {
		case InputContinuous:
			if in.Lo >= in.Hi {
				errs = append(errs, fmt.Sprintf("input %q: lower bound must be less than upper", in.Name))
			}
		case InputDiscrete:
			if len(in.Values) == 0 {
				errs = append(errs, fmt.Sprintf("input %q: discrete input must have values", in.Name))
			}
			dup := map[float64]int{}
			for _, v := range in.Values {
				dup[v]++
			}
			for _, c := range dup {
				if c > 1 {
					errs = append(errs, fmt.Sprintf("input %q: discrete values must be unique", in.Name))
					break
				}
			}
		case InputCategorical:
			if len(in.Categories) < 2 {
				errs = append(errs, fmt.Sprintf("input %q: categorical input needs at least 2 categories", in.Name))
			}
		}
	}
	return errs
}

func validateObjectives(spec *ProcessSpec) []string {
	var errs []string
	if len(spec.Objectives) == 0 {
		return append(errs, "at least one objective is required")
	}

	seen := map[string]int{}
	for _, obj := range spec.Objectives {
		seen[obj.Name]++
	}
	for name, count := range seen {
		if count > 1 {
			errs = append(errs, fmt.Sprintf("duplicate objective name: %q", name))
		}
	}

	for _, obj := range spec.Objectives {
		if obj.Preference != nil && obj.Preference.Value <= 0 {
			errs = append(errs, fmt.Sprintf("objective %q: preference value must be positive", obj.Name))
		}
	}
	return errs
}

func validateConstraints(spec *ProcessSpec) []string {
	var errs []string
	inputNames := map[string]bool{}
	for _, in := range spec.Inputs {
		inputNames[in.Name] = true
	}
	objNames := map[string]bool{}
	for _, obj := range spec.Objectives {
		objNames[obj.Name] = true
	}

	for _, c := range spec.Constraints.Input {
		if c.Type == "clausius_clapeyron" {
			if c.AbsoluteHumidityCol != "" && !inputNames[c.AbsoluteHumidityCol] {
				errs = append(errs, fmt.Sprintf("input constraint references unknown variable: %q", c.AbsoluteHumidityCol))
			}
			if c.TemperatureCol != "" && !inputNames[c.TemperatureCol] {
				errs = append(errs, fmt.Sprintf("input constraint references unknown variable: %q", c.TemperatureCol))
			}
		}
	}

	for _, c := range spec.Constraints.Outcome {
		if !objNames[c.Objective] {
			errs = append(errs, fmt.Sprintf("outcome constraint references unknown objective: %q", c.Objective))
		}
	}
	return errs
}

// known plugin names are the static default allowlists, used only when the
// caller does not supply a live registry via opts.
var (
	knownSamplersDefault = set("lhs", "lhs_optimized", "sobol", "random", "grid")
	knownModelsDefault   = set("gp_matern", "gp_rbf", "gp_matern25", "gp_loocv")
	knownAcqDefault      = set("qlogNEHVI", "qNEHVI", "qEHVI", "qParEGO", "qKG", "qEI", "random", "pool_based")
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func validateStrategies(spec *ProcessSpec, opts LoadOptions) []string {
	var errs []string

	samplers := opts.KnownSamplers
	if samplers == nil {
		samplers = knownSamplersDefault
	}
	models := opts.KnownModels
	if models == nil {
		models = knownModelsDefault
	}
	acqs := opts.KnownAcquisitions
	if acqs == nil {
		acqs = knownAcqDefault
	}

	names := make([]string, 0, len(spec.Strategies))
	for name := range spec.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := spec.Strategies[name]
		if !samplers[st.Sampler] {
			errs = append(errs, fmt.Sprintf("strategy %q: unknown sampler %q", name, st.Sampler))
		}
		if !models[st.Model] {
			errs = append(errs, fmt.Sprintf("strategy %q: unknown model %q", name, st.Model))
		}
		if !acqs[st.Acquisition] {
			errs = append(errs, fmt.Sprintf("strategy %q: unknown acquisition %q", name, st.Acquisition))
		}
	}
	return errs
}

// validateConditionalDependencies checks that every active_if key names a
// categorical input declared in this spec, that the active_if graph has no
// cycles, and that every referenced level exists on that categorical. Per
// the open-question resolution in SPEC_FULL.md, this check is direct only:
// it never asks whether the *referenced* variable is itself active.
func validateConditionalDependencies(spec *ProcessSpec) []string {
	var errs []string

	inputByName := map[string]Input{}
	categorical := map[string]bool{}
	for _, in := range spec.Inputs {
		inputByName[in.Name] = in
		if in.Kind == InputCategorical {
			categorical[in.Name] = true
		}
	}

	deps := map[string]map[string]bool{}
	for _, in := range spec.Inputs {
		if !in.IsConditional() {
			continue
		}
		d := map[string]bool{}
		for ref := range in.ActiveIf {
			d[ref] = true
		}
		deps[in.Name] = d
	}

	names := make([]string, 0, len(deps))
	for n := range deps {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, varName := range names {
		refs := make([]string, 0, len(deps[varName]))
		for r := range deps[varName] {
			refs = append(refs, r)
		}
		sort.Strings(refs)
		for _, ref := range refs {
			if _, ok := inputByName[ref]; !ok {
				errs = append(errs, fmt.Sprintf("input %q has active_if reference to unknown variable %q", varName, ref))
			} else if !categorical[ref] {
				errs = append(errs, fmt.Sprintf("input %q has active_if reference to non-categorical variable %q", varName, ref))
			}
		}
	}

	visited := map[string]bool{}
	for _, varName := range names {
		if hasCycle(varName, deps, visited, map[string]bool{}) {
			errs = append(errs, fmt.Sprintf("circular dependency detected involving %q", varName))
		}
	}

	for _, in := range spec.Inputs {
		if !in.IsConditional() {
			continue
		}
		refNames := make([]string, 0, len(in.ActiveIf))
		for ref := range in.ActiveIf {
			refNames = append(refNames, ref)
		}
		sort.Strings(refNames)
		for _, ref := range refNames {
			refInput, ok := inputByName[ref]
			if !ok || refInput.Kind != InputCategorical {
				continue
			}
			catSet := set(refInput.Categories...)
			for _, val := range in.ActiveIf[ref] {
				if !catSet[val] {
					errs = append(errs, fmt.Sprintf("input %q active_if references unknown category %q in %q", in.Name, val, ref))
				}
			}
		}
	}

	return errs
}

func hasCycle(varName string, deps map[string]map[string]bool, visited, path map[string]bool) bool {
	if path[varName] {
		return true
	}
	if visited[varName] {
		return false
	}
	visited[varName] = true
	path[varName] = true

	refs := make([]string, 0, len(deps[varName]))
	for r := range deps[varName] {
		refs = append(refs, r)
	}
	sort.Strings(refs)
	for _, dep := range refs {
		if hasCycle(dep, deps, visited, path) {
			return true
		}
	}
	path[varName] = false
	return false
}
