package specfile

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/antigravity-dev/boa/internal/boaerr"
)

// rawSpec mirrors the declarative process YAML shape: name, version,
// description, inputs[], objectives, constraints?, strategies?, metadata?.
type rawSpec struct {
	Name        string         `yaml:"name"`
	Version     int            `yaml:"version"`
	Description string         `yaml:"description"`
	Inputs      []rawInput     `yaml:"inputs"`
	Objectives  yaml.Node      `yaml:"objectives"`
	Constraints yaml.Node      `yaml:"constraints"`
	Strategies  map[string]rawStrategy `yaml:"strategies"`
	Metadata    map[string]any `yaml:"metadata"`
}

type rawInput struct {
	Name        string              `yaml:"name"`
	Type        string              `yaml:"type"`
	Bounds      []float64           `yaml:"bounds"`
	Start       *float64            `yaml:"start"`
	Stop        *float64            `yaml:"stop"`
	Step        *float64            `yaml:"step"`
	Values      []float64           `yaml:"values"`
	Categories  []string            `yaml:"categories"`
	Unit        string              `yaml:"unit"`
	Description string              `yaml:"description"`
	ActiveIf    map[string][]string `yaml:"active_if"`
}

type rawPreference struct {
	Type  string  `yaml:"type"`
	Value float64 `yaml:"value"`
}

type rawObjectiveFull struct {
	Name        string         `yaml:"name"`
	Direction   string         `yaml:"direction"`
	Preference  *rawPreference `yaml:"preference"`
	Description string         `yaml:"description"`
}

type rawStrategy struct {
	Sampler           string         `yaml:"sampler"`
	Model             string         `yaml:"model"`
	Acquisition       string         `yaml:"acquisition"`
	SamplerParams     map[string]any `yaml:"sampler_params"`
	ModelParams       map[string]any `yaml:"model_params"`
	AcquisitionParams map[string]any `yaml:"acquisition_params"`
	Description       string         `yaml:"description"`
}

// LoadOptions controls Load's validation behavior.
type LoadOptions struct {
	// Validate runs cross-reference validation after parsing. Benchmarks may
	// disable this to soft-skip the plugin-registered-name check; when false
	// no validation runs at all.
	Validate bool
	// KnownSamplers, KnownModels and KnownAcquisitions, when Validate is
	// true, are consulted to check that named samplers/models/acquisitions
	// are registered. A nil map falls back to the built-in default allowlist
	// for that partition.
	KnownSamplers, KnownModels, KnownAcquisitions map[string]bool
}

// Load parses a YAML-shaped ProcessSpec from a string.
func Load(yamlContent string, opts LoadOptions) (*ProcessSpec, error) {
	var raw rawSpec
	if err := yaml.Unmarshal([]byte(yamlContent), &raw); err != nil {
		return nil, boaerr.Wrap(boaerr.KindSpecLoadError, err, "invalid YAML")
	}

	inputs, err := parseInputs(raw.Inputs)
	if err != nil {
		return nil, err
	}

	objectives, err := parseObjectives(raw.Objectives)
	if err != nil {
		return nil, err
	}

	constraints, err := parseConstraints(raw.Constraints)
	if err != nil {
		return nil, err
	}

	strategies := parseStrategies(raw.Strategies)

	version := raw.Version
	if version == 0 {
		version = 1
	}
	name := raw.Name
	if name == "" {
		name = "unnamed"
	}

	spec := &ProcessSpec{
		Name:        name,
		Version:     version,
		Description: raw.Description,
		Inputs:      inputs,
		Objectives:  objectives,
		Constraints: constraints,
		Strategies:  strategies,
		Metadata:    raw.Metadata,
	}

	if opts.Validate {
		if errs := Validate(spec, opts); len(errs) > 0 {
			return nil, boaerr.NewValidationIssues(errs)
		}
	}

	return spec, nil
}

// LoadFile reads and parses a ProcessSpec from a YAML file.
func LoadFile(path string, opts LoadOptions) (*ProcessSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, boaerr.Wrap(boaerr.KindSpecLoadError, err, "cannot read file %s", path)
	}
	return Load(string(data), opts)
}

func parseInputs(raw []rawInput) ([]Input, error) {
	inputs := make([]Input, 0, len(raw))
	for _, ri := range raw {
		kind := strings.ToLower(ri.Type)
		if kind == "" {
			kind = string(InputContinuous)
		}

		in := Input{
			Name:        ri.Name,
			Kind:        InputKind(kind),
			Unit:        ri.Unit,
			Description: ri.Description,
			ActiveIf:    ri.ActiveIf,
		}

		switch in.Kind {
		case InputContinuous:
			lo, hi, ok := boundsOf(ri)
			if !ok {
				return nil, boaerr.New(boaerr.KindSpecLoadError,
					"continuous input %q requires bounds or start/stop", ri.Name)
			}
			in.Lo, in.Hi = lo, hi

		case InputDiscrete:
			values := ri.Values
			if len(values) == 0 && ri.Start != nil && ri.Stop != nil {
				values = expandGrid(*ri.Start, *ri.Stop, stepOrOne(ri.Step))
			}
			in.Values = values
			if len(values) > 0 {
				in.Lo, in.Hi = gridExtremes(values)
			}

		case InputCategorical:
			cats := ri.Categories
			if len(cats) == 0 {
				// Spec format allows "values" as a synonym for categories.
				for _, v := range ri.Values {
					cats = append(cats, fmt.Sprintf("%v", v))
				}
			}
			if len(cats) == 0 {
				return nil, boaerr.New(boaerr.KindSpecLoadError,
					"categorical input %q requires categories or values", ri.Name)
			}
			in.Categories = cats

		default:
			return nil, boaerr.New(boaerr.KindSpecLoadError, "unknown input type: %s", ri.Type)
		}

		inputs = append(inputs, in)
	}
	return inputs, nil
}

func boundsOf(ri rawInput) (float64, float64, bool) {
	if len(ri.Bounds) == 2 {
		return ri.Bounds[0], ri.Bounds[1], true
	}
	if ri.Start != nil && ri.Stop != nil {
		return *ri.Start, *ri.Stop, true
	}
	return 0, 0, false
}

func stepOrOne(step *float64) float64 {
	if step == nil || *step == 0 {
		return 1
	}
	return *step
}

// expandGrid implements the half-open upper-bound canonicalization rule: the
// largest value <= stop at step multiples from start, inclusive of stop
// when it lies exactly on a step.
func expandGrid(start, stop, step float64) []float64 {
	if step <= 0 {
		return nil
	}
	var values []float64
	n := int(math.Floor((stop-start)/step + 1e-9))
	for i := 0; i <= n; i++ {
		values = append(values, start+float64(i)*step)
	}
	return values
}

func gridExtremes(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// parseObjectives handles both the shorthand `{names: [...]}` format and the
// full list-of-objects format.
func parseObjectives(node yaml.Node) ([]Objective, error) {
	if node.Kind == 0 {
		return nil, nil
	}

	if node.Kind == yaml.MappingNode {
		var shorthand struct {
			Names []string `yaml:"names"`
		}
		if err := node.Decode(&shorthand); err == nil && len(shorthand.Names) > 0 {
			objs := make([]Objective, 0, len(shorthand.Names))
			for _, name := range shorthand.Names {
				objs = append(objs, Objective{Name: name, Direction: Maximize})
			}
			return objs, nil
		}
	}

	if node.Kind != yaml.SequenceNode {
		return nil, boaerr.New(boaerr.KindSpecLoadError, "objectives must be a list or {names: [...]}")
	}

	var objs []Objective
	for _, child := range node.Content {
		if child.Kind == yaml.ScalarNode {
			objs = append(objs, Objective{Name: child.Value, Direction: Maximize})
			continue
		}
		var full rawObjectiveFull
		if err := child.Decode(&full); err != nil {
			return nil, boaerr.Wrap(boaerr.KindSpecLoadError, err, "invalid objective entry")
		}
		dir := Maximize
		if strings.ToLower(full.Direction) == string(Minimize) {
			dir = Minimize
		}
		var pref *Preference
		if full.Preference != nil {
			pt := PreferenceType(full.Preference.Type)
			if pt == "" {
				pt = PreferenceWeight
			}
			pref = &Preference{Type: pt, Value: full.Preference.Value}
		}
		objs = append(objs, Objective{
			Name:        full.Name,
			Direction:   dir,
			Preference:  pref,
			Description: full.Description,
		})
	}
	return objs, nil
}

// parseConstraints handles both the legacy list shape (clausius_clapeyron
// flag) and the structured {input, outcome} shape.
func parseConstraints(node yaml.Node) (Constraints, error) {
	var c Constraints
	if node.Kind == 0 {
		return c, nil
	}

	if node.Kind == yaml.SequenceNode {
		type legacy struct {
			ClausiusClapeyron     bool   `yaml:"clausius_clapeyron"`
			AHCol                 string `yaml:"ah_col"`
			AbsoluteHumidityCol   string `yaml:"absolute_humidity_col"`
			TempCCol              string `yaml:"temp_c_col"`
			TemperatureCol        string `yaml:"temperature_col"`
		}
		for _, child := range node.Content {
			var l legacy
			if err := child.Decode(&l); err != nil {
				continue
			}
			if !l.ClausiusClapeyron {
				continue
			}
			ah := l.AHCol
			if ah == "" {
				ah = l.AbsoluteHumidityCol
			}
			temp := l.TempCCol
			if temp == "" {
				temp = l.TemperatureCol
			}
			c.Input = append(c.Input, InputConstraint{
				Type:                "clausius_clapeyron",
				AbsoluteHumidityCol: ah,
				TemperatureCol:      temp,
			})
		}
		return c, nil
	}

	var structured struct {
		Input []struct {
			Type                string         `yaml:"type"`
			Params              map[string]any `yaml:"params"`
			AbsoluteHumidityCol string         `yaml:"absolute_humidity_col"`
			TemperatureCol      string         `yaml:"temperature_col"`
		} `yaml:"input"`
		Outcome []struct {
			Type      string  `yaml:"type"`
			Objective string  `yaml:"objective"`
			Operator  string  `yaml:"operator"`
			Value     float64 `yaml:"value"`
		} `yaml:"outcome"`
	}
	if err := node.Decode(&structured); err != nil {
		return c, boaerr.Wrap(boaerr.KindSpecLoadError, err, "invalid constraints block")
	}
	for _, in := range structured.Input {
		t := in.Type
		if t == "" {
			t = "custom"
		}
		c.Input = append(c.Input, InputConstraint{
			Type:                t,
			Params:              in.Params,
			AbsoluteHumidityCol: in.AbsoluteHumidityCol,
			TemperatureCol:      in.TemperatureCol,
		})
	}
	for _, out := range structured.Outcome {
		t := out.Type
		if t == "" {
			t = "threshold"
		}
		c.Outcome = append(c.Outcome, OutcomeConstraint{
			Type:      t,
			Objective: out.Objective,
			Operator:  out.Operator,
			Value:     out.Value,
		})
	}
	return c, nil
}

// defaultStrategyName is the implicit strategy injected when a spec declares
// no strategies block at all: lhs_optimized sampling, a Matern-kernel
// surrogate, and qlogNEHVI acquisition.
const defaultStrategyName = "default"

func parseStrategies(raw map[string]rawStrategy) map[string]Strategy {
	if len(raw) == 0 {
		return map[string]Strategy{
			defaultStrategyName: {
				Name:        defaultStrategyName,
				Sampler:     "lhs_optimized",
				Model:       "gp_matern",
				Acquisition: "qlogNEHVI",
			},
		}
	}
	strategies := make(map[string]Strategy, len(raw))
	for name, rs := range raw {
		sampler := rs.Sampler
		if sampler == "" {
			sampler = "lhs_optimized"
		}
		model := rs.Model
		if model == "" {
			model = "gp_matern"
		}
		acq := rs.Acquisition
		if acq == "" {
			acq = "qlogNEHVI"
		}
		strategies[name] = Strategy{
			Name:              name,
			Sampler:           sampler,
			Model:             model,
			Acquisition:       acq,
			SamplerParams:     rs.SamplerParams,
			ModelParams:       rs.ModelParams,
			AcquisitionParams: rs.AcquisitionParams,
			Description:       rs.Description,
		}
	}
	return strategies
}
