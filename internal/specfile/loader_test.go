package specfile

import (
	"strings"
	"testing"
)

const sampleSpec = `
name: widget_yield
version: 2
inputs:
  - name: temperature
    type: continuous
    bounds: [20, 200]
  - name: catalyst
    type: categorical
    categories: [A, B]
  - name: dose
    type: discrete
    start: 0
    stop: 10
    step: 2
    active_if:
      catalyst: [B]
objectives:
  - name: yield
    direction: maximize
  - name: cost
    direction: minimize
    preference:
      type: weight
      value: 2.0
strategies:
  default:
    sampler: lhs_optimized
    model: gp_matern
    acquisition: qlogNEHVI
`

func TestLoadParsesInputsObjectivesStrategies(t *testing.T) {
	spec, err := Load(sampleSpec, LoadOptions{Validate: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if spec.Name != "widget_yield" || spec.Version != 2 {
		t.Fatalf("unexpected name/version: %+v", spec)
	}
	if len(spec.Inputs) != 3 || len(spec.Objectives) != 2 {
		t.Fatalf("unexpected shape: %d inputs, %d objectives", len(spec.Inputs), len(spec.Objectives))
	}

	dose, ok := spec.InputByName("dose")
	if !ok {
		t.Fatal("expected dose input to parse")
	}
	if len(dose.Values) != 6 {
		t.Fatalf("expected start/stop/step expansion to produce 6 values, got %v", dose.Values)
	}
	if !dose.IsConditional() {
		t.Fatal("expected dose to be conditional on catalyst")
	}

	strat, ok := spec.Strategies["default"]
	if !ok || strat.Sampler != "lhs_optimized" {
		t.Fatalf("unexpected strategy: %+v", strat)
	}
}

func TestObjectiveShorthandNamesList(t *testing.T) {
	const yamlSpec = `
name: x
inputs:
  - name: t
    type: continuous
    bounds: [0, 1]
objectives:
  names: [a, b]
`
	spec, err := Load(yamlSpec, LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(spec.Objectives) != 2 || spec.Objectives[0].Direction != Maximize {
		t.Fatalf("unexpected shorthand objectives: %+v", spec.Objectives)
	}
}

func TestActiveEvaluatesDirectlyAgainstRawInputs(t *testing.T) {
	spec, err := Load(sampleSpec, LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	dose, _ := spec.InputByName("dose")

	if dose.Active(map[string]any{"catalyst": "A"}) {
		t.Fatal("dose should not be active when catalyst=A")
	}
	if !dose.Active(map[string]any{"catalyst": "B"}) {
		t.Fatal("dose should be active when catalyst=B")
	}
	if dose.Active(map[string]any{}) {
		t.Fatal("dose should not be active when catalyst is absent")
	}
}

func TestValidateRejectsNonPositivePreference(t *testing.T) {
	const bad = `
name: x
inputs:
  - name: t
    type: continuous
    bounds: [0, 1]
objectives:
  - name: y
    direction: maximize
    preference:
      type: weight
      value: -1
`
	_, err := Load(bad, LoadOptions{Validate: true})
	if err == nil {
		t.Fatal("expected validation to reject a non-positive preference value")
	}
	if !strings.Contains(err.Error(), "preference value must be positive") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsActiveIfOnNonCategorical(t *testing.T) {
	const bad = `
name: x
inputs:
  - name: t
    type: continuous
    bounds: [0, 1]
  - name: u
    type: continuous
    bounds: [0, 1]
    active_if:
      t: ["5"]
objectives:
  - name: y
    direction: maximize
`
	_, err := Load(bad, LoadOptions{Validate: true})
	if err == nil {
		t.Fatal("expected validation to reject active_if referencing a non-categorical input")
	}
}

func TestValidateRejectsUnknownStrategyPlugins(t *testing.T) {
	const bad = `
name: x
inputs:
  - name: t
    type: continuous
    bounds: [0, 1]
objectives:
  - name: y
    direction: maximize
strategies:
  default:
    sampler: not_a_real_sampler
    model: gp_matern
    acquisition: qlogNEHVI
`
	_, err := Load(bad, LoadOptions{Validate: true})
	if err == nil {
		t.Fatal("expected validation to reject an unknown sampler name")
	}
	if !strings.Contains(err.Error(), "unknown sampler") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadDiscreteExplicitValues(t *testing.T) {
	const yamlSpec = `
name: x
inputs:
  - name: level
    type: discrete
    values: [1, 2, 4, 8]
objectives:
  - name: y
    direction: maximize
`
	spec, err := Load(yamlSpec, LoadOptions{Validate: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	level, _ := spec.InputByName("level")
	if len(level.Values) != 4 {
		t.Fatalf("expected explicit values to be preserved, got %v", level.Values)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load("not: [valid yaml", LoadOptions{}); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}
