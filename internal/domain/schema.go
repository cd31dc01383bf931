package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Kind is the derivation rule of a schema entry.
type Kind string

const (
	KindRaw         Kind = "raw"
	KindRolling     Kind = "rolling"
	KindLag         Kind = "lag"
	KindInteraction Kind = "interaction"
)

var (
	// rollingNameRe matches generated rolling names, e.g. "UV_Index_rolling_7h".
	rollingNameRe = regexp.MustCompile(`^(.+)_rolling_(\d+)h$`)
	// lagNameRe matches generated lag names, e.g. "Temperature_lag_3h".
	lagNameRe = regexp.MustCompile(`^(.+)_lag_(\d+)h$`)
)

// Scaling holds the standardization parameters of one feature.
type Scaling struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Apply standardizes v. A zero deviation maps every value to 0.
func (s Scaling) Apply(v float64) float64 {
	if s.StdDev == 0 {
		return 0
	}
	return (v - s.Mean) / s.StdDev
}

// FeatureSpec is one named entry of a FeatureSchema.
type FeatureSpec struct {
	Name   string   `json:"name"`
	Kind   Kind     `json:"kind"`
	Base   string   `json:"base,omitempty"`
	Window int      `json:"window,omitempty"`
	Offset int      `json:"offset,omitempty"`
	A      string   `json:"a,omitempty"`
	B      string   `json:"b,omitempty"`
	Scale  *Scaling `json:"scale,omitempty"`
}

// RawFeature is a field copied verbatim from the observation.
func RawFeature(field string) FeatureSpec {
	return FeatureSpec{Name: field, Kind: KindRaw, Base: field}
}

// RollingFeature is the trailing mean of base over window records.
func RollingFeature(base string, window int) FeatureSpec {
	return FeatureSpec{Name: fmt.Sprintf("%s_rolling_%dh", base, window), Kind: KindRolling, Base: base, Window: window}
}

// LagFeature is the value of base offset records earlier.
func LagFeature(base string, offset int) FeatureSpec {
	return FeatureSpec{Name: fmt.Sprintf("%s_lag_%dh", base, offset), Kind: KindLag, Base: base, Offset: offset}
}

// InteractionFeature is the product of fields a and b.
func InteractionFeature(name, a, b string) FeatureSpec {
	return FeatureSpec{Name: name, Kind: KindInteraction, A: a, B: b}
}

// Inputs returns the observation fields the entry is derived from.
func (f FeatureSpec) Inputs() []string {
	if f.Kind == KindInteraction {
		return []string{f.A, f.B}
	}
	return []string{f.Base}
}

func (f FeatureSpec) validate() error {
	if f.Name == "" {
		return errors.New("feature with empty name")
	}
	switch f.Kind {
	case KindRaw:
		if f.Base == "" {
			return fmt.Errorf("raw feature %q has no base", f.Name)
		}
	case KindRolling:
		if f.Base == "" || f.Window < 1 {
			return fmt.Errorf("rolling feature %q needs a base and a window >= 1", f.Name)
		}
	case KindLag:
		if f.Base == "" || f.Offset < 1 {
			return fmt.Errorf("lag feature %q needs a base and an offset >= 1", f.Name)
		}
	case KindInteraction:
		if f.A == "" || f.B == "" {
			return fmt.Errorf("interaction feature %q needs two operands", f.Name)
		}
	default:
		return fmt.Errorf("feature %q has unknown kind %q", f.Name, f.Kind)
	}
	return nil
}

func (f FeatureSpec) clone() FeatureSpec {
	if f.Scale != nil {
		s := *f.Scale
		f.Scale = &s
	}
	return f
}

// FeatureSchema is the ordered contract a FeatureVector must satisfy. It is
// immutable once constructed; accessors return copies.
type FeatureSchema struct {
	features []FeatureSpec
	index    map[string]int
	version  string
	builtAt  time.Time
}

// NewFeatureSchema validates specs and captures them as a schema stamped with
// the current clock time.
func NewFeatureSchema(specs []FeatureSpec) (*FeatureSchema, error) {
	return newFeatureSchema(specs, clock.Now().UTC())
}

func newFeatureSchema(specs []FeatureSpec, builtAt time.Time) (*FeatureSchema, error) {
	if len(specs) == 0 {
		return nil, errors.New("feature schema: no features")
	}
	s := &FeatureSchema{
		features: make([]FeatureSpec, len(specs)),
		index:    make(map[string]int, len(specs)),
		builtAt:  builtAt,
	}
	for i, f := range specs {
		if err := f.validate(); err != nil {
			return nil, fmt.Errorf("feature schema: %w", err)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("feature schema: duplicate feature %q", f.Name)
		}
		s.features[i] = f.clone()
		s.index[f.Name] = i
	}
	s.version = schemaVersion(s.features)
	return s, nil
}

// schemaVersion hashes the ordered entries, including scaling, so two schemas
// share a version exactly when they produce identical vectors.
func schemaVersion(features []FeatureSpec) string {
	var b strings.Builder
	for _, f := range features {
		fmt.Fprintf(&b, "%s|%s|%s|%d|%d|%s|%s", f.Kind, f.Name, f.Base, f.Window, f.Offset, f.A, f.B)
		if f.Scale != nil {
			fmt.Fprintf(&b, "|%g|%g", f.Scale.Mean, f.Scale.StdDev)
		}
		b.WriteByte('\n')
	}
	hash := sha256.Sum256([]byte(b.String()))
	return "fs-" + hex.EncodeToString(hash[:8])
}

// Len returns the number of features.
func (s *FeatureSchema) Len() int { return len(s.features) }

// Version identifies the schema content.
func (s *FeatureSchema) Version() string { return s.version }

// BuiltAt is when the schema was captured.
func (s *FeatureSchema) BuiltAt() time.Time { return s.builtAt }

// Feature returns the i-th entry.
func (s *FeatureSchema) Feature(i int) FeatureSpec { return s.features[i].clone() }

// Features returns a copy of all entries in order.
func (s *FeatureSchema) Features() []FeatureSpec {
	out := make([]FeatureSpec, len(s.features))
	for i, f := range s.features {
		out[i] = f.clone()
	}
	return out
}

// Names returns the feature names in order.
func (s *FeatureSchema) Names() []string {
	out := make([]string, len(s.features))
	for i, f := range s.features {
		out[i] = f.Name
	}
	return out
}

// Index returns the position of the named feature.
func (s *FeatureSchema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Standardized reports whether the schema carries scaling parameters.
func (s *FeatureSchema) Standardized() bool {
	for _, f := range s.features {
		if f.Scale != nil {
			return true
		}
	}
	return false
}

// SameAs reports whether both schemas have the same entries in the same order.
func (s *FeatureSchema) SameAs(other *FeatureSchema) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.version == other.version
}

// withScaling returns a new schema whose entries carry the given parameters.
func (s *FeatureSchema) withScaling(scales []Scaling) (*FeatureSchema, error) {
	specs := s.Features()
	for i := range specs {
		sc := scales[i]
		specs[i].Scale = &sc
	}
	return newFeatureSchema(specs, s.builtAt)
}

type schemaDocument struct {
	Version  string        `json:"version"`
	BuiltAt  time.Time     `json:"built_at"`
	Features []FeatureSpec `json:"features"`
}

// MarshalJSON encodes the schema with its version.
func (s *FeatureSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(schemaDocument{Version: s.version, BuiltAt: s.builtAt, Features: s.features})
}

// UnmarshalJSON decodes a schema and rejects documents whose recorded version
// does not match their entries.
func (s *FeatureSchema) UnmarshalJSON(data []byte) error {
	var doc schemaDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode feature schema: %w", err)
	}
	decoded, err := newFeatureSchema(doc.Features, doc.BuiltAt)
	if err != nil {
		return err
	}
	if doc.Version != "" && doc.Version != decoded.version {
		return fmt.Errorf("feature schema: recorded version %s does not match content version %s", doc.Version, decoded.version)
	}
	*s = *decoded
	return nil
}

// ParseFeatureName recovers the derivation rule of a generated column name.
// Interaction names are looked up in interactions; anything unmatched is raw.
func ParseFeatureName(name string, interactions []Interaction) FeatureSpec {
	for _, in := range interactions {
		if in.Name == name {
			return InteractionFeature(in.Name, in.A, in.B)
		}
	}
	if m := rollingNameRe.FindStringSubmatch(name); m != nil {
		if w, err := strconv.Atoi(m[2]); err == nil && w > 0 {
			return RollingFeature(m[1], w)
		}
	}
	if m := lagNameRe.FindStringSubmatch(name); m != nil {
		if k, err := strconv.Atoi(m[2]); err == nil && k > 0 {
			return LagFeature(m[1], k)
		}
	}
	return RawFeature(name)
}

// SchemaFromHeader rebuilds a schema from the column names of a persisted
// feature table. A trailing label column is ignored.
func SchemaFromHeader(header []string, interactions []Interaction) (*FeatureSchema, error) {
	if n := len(header); n > 0 && header[n-1] == LabelColumn {
		header = header[:n-1]
	}
	specs := make([]FeatureSpec, len(header))
	for i, name := range header {
		specs[i] = ParseFeatureName(name, interactions)
	}
	return NewFeatureSchema(specs)
}

// SchemaRegistry publishes schema snapshots to concurrent readers. A snapshot
// is fully constructed before Publish makes it visible and is never modified
// afterwards.
type SchemaRegistry struct {
	current atomic.Pointer[FeatureSchema]
}

// Publish makes s the current schema.
func (r *SchemaRegistry) Publish(s *FeatureSchema) error {
	if s == nil || s.Len() == 0 {
		return errors.New("publish feature schema: empty schema")
	}
	r.current.Store(s)
	return nil
}

// Current returns the published schema, if any.
func (r *SchemaRegistry) Current() (*FeatureSchema, bool) {
	s := r.current.Load()
	return s, s != nil
}
