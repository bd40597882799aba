// Package specfile implements the declarative ProcessSpec: its typed model,
// YAML loader, and cross-reference validator, expressed as a closed tagged
// union of input kinds rather than open subtyping.
package specfile

// Direction is an objective's optimization direction.
type Direction string

const (
	Maximize Direction = "maximize"
	Minimize Direction = "minimize"
)

// PreferenceType names the kind of preference attached to an objective.
type PreferenceType string

const (
	PreferenceWeight         PreferenceType = "weight"
	PreferenceAspiration     PreferenceType = "aspiration"
	PreferenceReferencePoint PreferenceType = "reference_point"
)

// Preference is an optional weighting/aspiration attached to an objective.
type Preference struct {
	Type  PreferenceType
	Value float64
}

// InputKind tags which variant of Input this is. Inputs are a closed tagged
// union (continuous / discrete / categorical); the encoder and validator
// dispatch on Kind rather than relying on subtyping.
type InputKind string

const (
	InputContinuous  InputKind = "continuous"
	InputDiscrete    InputKind = "discrete"
	InputCategorical InputKind = "categorical"
)

// Input is one input variable of a ProcessSpec. Only the fields relevant to
// Kind are populated; the rest are zero.
type Input struct {
	Name        string
	Kind        InputKind
	Description string
	Unit        string

	// Continuous bounds; a discrete input also carries its grid's smallest
	// and largest values here.
	Lo, Hi float64

	// Discrete: the explicit finite ordered grid of values.
	Values []float64

	// Categorical: ordered, unique levels.
	Categories []string

	// ActiveIf maps a categorical input name (in the same spec) to the list
	// of its levels that activate this input. Nil/empty means unconditional.
	ActiveIf map[string][]string
}

// IsConditional reports whether this input carries an active_if predicate.
func (i Input) IsConditional() bool { return len(i.ActiveIf) > 0 }

// Active evaluates this input's active_if predicate against a raw input map.
// Per the open-question resolution in SPEC_FULL.md, this is a direct,
// non-transitive evaluation: it only looks at the referenced categorical's
// value in rawInputs, never at whether that categorical is itself active.
func (i Input) Active(rawInputs map[string]any) bool {
	if !i.IsConditional() {
		return true
	}
	for refVar, levels := range i.ActiveIf {
		v, ok := rawInputs[refVar]
		if !ok {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		found := false
		for _, lvl := range levels {
			if lvl == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Objective is one optimization objective.
type Objective struct {
	Name        string
	Direction   Direction
	Preference  *Preference
	Description string
}

func (o Objective) IsMaximization() bool { return o.Direction == Maximize }

// InputConstraint is a named physical relation parameterized by column names.
type InputConstraint struct {
	Type                string
	Params              map[string]any
	AbsoluteHumidityCol string
	TemperatureCol      string
}

// OutcomeConstraint is a threshold constraint on an objective's value.
type OutcomeConstraint struct {
	Type      string
	Objective string
	Operator  string
	Value     float64
}

// Constraints groups input and outcome constraints.
type Constraints struct {
	Input   []InputConstraint
	Outcome []OutcomeConstraint
}

// Strategy names one sampler/model/acquisition triple and its per-plugin
// parameter overrides.
type Strategy struct {
	Name               string
	Sampler            string
	Model              string
	Acquisition        string
	SamplerParams      map[string]any
	ModelParams        map[string]any
	AcquisitionParams  map[string]any
	Description        string
}

// ProcessSpec is the parsed, canonicalized form of a declarative process
// definition.
type ProcessSpec struct {
	Name        string
	Version     int
	Description string
	Inputs      []Input
	Objectives  []Objective
	Constraints Constraints
	Strategies  map[string]Strategy
	Metadata    map[string]any
}

// InputByName returns the input with the given name, or false if absent.
func (s *ProcessSpec) InputByName(name string) (Input, bool) {
	for _, in := range s.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}
