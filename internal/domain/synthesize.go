package domain

import "slices"

// FeatureVector is a model input aligned to a FeatureSchema. It can only be
// obtained from Synthesize or NewFeatureVector, both of which check alignment.
type FeatureVector struct {
	schemaVersion string
	names         []string
	values        []float64
}

// NewFeatureVector aligns values to schema. A length mismatch is an AlignmentError.
func NewFeatureVector(schema *FeatureSchema, values []float64) (FeatureVector, error) {
	if schema == nil {
		return FeatureVector{}, &AlignmentError{Expected: 0, Got: len(values), Position: -1}
	}
	if len(values) != schema.Len() {
		return FeatureVector{}, &AlignmentError{SchemaVersion: schema.Version(), Expected: schema.Len(), Got: len(values), Position: -1}
	}
	return FeatureVector{
		schemaVersion: schema.Version(),
		names:         schema.Names(),
		values:        slices.Clone(values),
	}, nil
}

// SchemaVersion is the version of the schema the vector was aligned to.
func (v FeatureVector) SchemaVersion() string { return v.schemaVersion }

// Len returns the number of features.
func (v FeatureVector) Len() int { return len(v.values) }

// Names returns the feature names in order.
func (v FeatureVector) Names() []string { return slices.Clone(v.names) }

// Values returns the feature values in order.
func (v FeatureVector) Values() []float64 { return slices.Clone(v.values) }

// Get returns the value of the named feature.
func (v FeatureVector) Get(name string) (float64, bool) {
	i := slices.Index(v.names, name)
	if i < 0 {
		return 0, false
	}
	return v.values[i], true
}

// Synthesis is the result of reconstructing a vector from a single observation.
type Synthesis struct {
	Vector FeatureVector
	Gaps   []FeatureSynthesisGap
}

// Synthesize builds the feature vector for one observation without history.
//
// Raw entries copy the observation's value. Rolling and lag entries take the
// observation's current value of their base field: the point stands in for
// its own history. This point-history approximation keeps the vector shaped
// like the training table; it is not a statistical estimate of the window,
// and callers that need accuracy must build from a real series instead.
// Interaction entries multiply the two operands. Any entry whose inputs are
// absent is set to 0 and reported as a FeatureSynthesisGap.
//
// When the schema carries scaling parameters, resolved entries are
// standardized the same way the training table was; gap entries stay 0.
func Synthesize(obs RawObservation, schema *FeatureSchema) (Synthesis, error) {
	if schema == nil || schema.Len() == 0 {
		return Synthesis{}, &AlignmentError{Position: -1}
	}

	names := make([]string, 0, schema.Len())
	values := make([]float64, 0, schema.Len())
	var gaps []FeatureSynthesisGap

	for _, spec := range schema.features {
		v, missing := resolve(obs, spec)
		if len(missing) > 0 {
			gaps = append(gaps, FeatureSynthesisGap{Feature: spec.Name, Kind: string(spec.Kind), Missing: missing})
			v = 0
		} else if spec.Scale != nil {
			v = spec.Scale.Apply(v)
		}
		names = append(names, spec.Name)
		values = append(values, v)
	}

	if err := checkAlignment(schema, names); err != nil {
		return Synthesis{}, err
	}
	return Synthesis{
		Vector: FeatureVector{schemaVersion: schema.Version(), names: names, values: values},
		Gaps:   gaps,
	}, nil
}

// resolve computes one entry and returns the inputs it could not find.
func resolve(obs RawObservation, spec FeatureSpec) (float64, []string) {
	var missing []string
	for _, in := range spec.Inputs() {
		if !obs.Has(in) {
			missing = append(missing, in)
		}
	}
	if len(missing) > 0 {
		return 0, missing
	}

	switch spec.Kind {
	case KindInteraction:
		a, _ := obs.Value(spec.A)
		b, _ := obs.Value(spec.B)
		return a * b, nil
	default:
		// raw, rolling and lag all read the base field at this point
		v, _ := obs.Value(spec.Base)
		return v, nil
	}
}

// checkAlignment verifies names equals the schema in length and order.
func checkAlignment(schema *FeatureSchema, names []string) error {
	if len(names) != schema.Len() {
		return &AlignmentError{SchemaVersion: schema.Version(), Expected: schema.Len(), Got: len(names), Position: -1}
	}
	for i, f := range schema.features {
		if names[i] != f.Name {
			return &AlignmentError{
				SchemaVersion: schema.Version(),
				Expected:      schema.Len(),
				Got:           len(names),
				Position:      i,
				Want:          f.Name,
				Have:          names[i],
			}
		}
	}
	return nil
}

// CheckVectorAlignment verifies v was aligned to a schema with the given names.
func CheckVectorAlignment(v FeatureVector, schemaVersion string, names []string) error {
	if len(v.names) != len(names) {
		return &AlignmentError{SchemaVersion: schemaVersion, Expected: len(names), Got: len(v.names), Position: -1}
	}
	for i, name := range names {
		if v.names[i] != name {
			return &AlignmentError{
				SchemaVersion: schemaVersion,
				Expected:      len(names),
				Got:           len(v.names),
				Position:      i,
				Want:          name,
				Have:          v.names[i],
			}
		}
	}
	return nil
}
