package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Interaction names the product of two observation fields.
type Interaction struct {
	Name string
	A    string
	B    string
}

// DefaultInteractions are the interaction terms the model is trained on.
var DefaultInteractions = []Interaction{
	{Name: "temp_humidity_interaction", A: FieldTemperature, B: FieldAbsoluteHumidity},
	{Name: "uv_precip_interaction", A: FieldUVIndex, B: FieldPrecipitationProbability},
}

// BuilderConfig selects which derived columns the Builder generates.
type BuilderConfig struct {
	// RawColumns are copied into the table first, in this order.
	RawColumns []string
	// BaseColumns get one rolling column per window and one lag column per offset.
	BaseColumns []string
	// Windows are rolling window sizes in records.
	Windows []int
	// Lags are lag offsets in records.
	Lags         []int
	Interactions []Interaction
	// Standardize scales every output column to zero mean and unit variance and
	// records the parameters in the schema.
	Standardize bool
}

// DefaultBuilderConfig reproduces the training feature set.
func DefaultBuilderConfig() BuilderConfig {
	base := []string{FieldTemperature, FieldAbsoluteHumidity, FieldUVIndex, FieldPrecipitationProbability}
	return BuilderConfig{
		RawColumns:   slices.Clone(ObservationFields),
		BaseColumns:  base,
		Windows:      []int{3, 7, 14},
		Lags:         []int{1, 3, 7},
		Interactions: slices.Clone(DefaultInteractions),
	}
}

// Builder derives rolling, lag, and interaction features from an observation series.
type Builder struct {
	cfg   BuilderConfig
	specs []FeatureSpec
}

// NewBuilder validates cfg and fixes the generation order:
// raw columns, rolling, lag, then interaction columns.
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if len(cfg.RawColumns) == 0 {
		return nil, fmt.Errorf("feature builder: no raw columns")
	}
	for _, w := range cfg.Windows {
		if w < 1 {
			return nil, fmt.Errorf("feature builder: window %d < 1", w)
		}
	}
	for _, k := range cfg.Lags {
		if k < 1 {
			return nil, fmt.Errorf("feature builder: lag %d < 1", k)
		}
	}

	var specs []FeatureSpec
	for _, c := range cfg.RawColumns {
		specs = append(specs, RawFeature(c))
	}
	for _, c := range cfg.BaseColumns {
		for _, w := range cfg.Windows {
			specs = append(specs, RollingFeature(c, w))
		}
	}
	for _, c := range cfg.BaseColumns {
		for _, k := range cfg.Lags {
			specs = append(specs, LagFeature(c, k))
		}
	}
	for _, in := range cfg.Interactions {
		specs = append(specs, InteractionFeature(in.Name, in.A, in.B))
	}

	// Validate names and kinds up front so Build only fails on data.
	if _, err := newFeatureSchema(specs, time.Time{}); err != nil {
		return nil, fmt.Errorf("feature builder: %w", err)
	}
	return &Builder{cfg: cfg, specs: specs}, nil
}

// FeatureTable is the builder output: one row per observation, aligned to Schema.
type FeatureTable struct {
	Schema     *FeatureSchema
	Timestamps []time.Time
	Rows       [][]float64
	// Labels is set by BuildLabeled, one per row.
	Labels []Label
}

// Column returns a copy of the named column.
func (t FeatureTable) Column(name string) ([]float64, bool) {
	j, ok := t.Schema.Index(name)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[j]
	}
	return out, true
}

// BuildResult carries the feature table and any non-fatal conditions met while building it.
type BuildResult struct {
	Table    FeatureTable
	Warnings []LowHistoryWarning
}

// nullable is a column whose undefined cells are marked in ok.
type nullable struct {
	vals []float64
	ok   []bool
}

func newNullable(n int) nullable {
	return nullable{vals: make([]float64, n), ok: make([]bool, n)}
}

func (c nullable) mean() (float64, bool) {
	defined := make([]float64, 0, len(c.vals))
	for i, ok := range c.ok {
		if ok {
			defined = append(defined, c.vals[i])
		}
	}
	if len(defined) == 0 {
		return 0, false
	}
	return stat.Mean(defined, nil), true
}

// Build derives the feature table for series. The input is not modified: the
// builder sorts its own copy by timestamp before computing any window.
//
// Undefined cells (leading rolling/lag positions, interactions with a missing
// operand) are filled with the mean of their output column. A rolling or lag
// column with no defined cell at all falls back to the mean of its base column.
func (b *Builder) Build(series ObservationSeries) (BuildResult, error) {
	sorted := series.Sorted()
	if len(sorted) == 0 {
		return BuildResult{}, &DataQualityError{Column: "series", Reason: "no observations"}
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Timestamp.Equal(sorted[i-1].Timestamp) {
			return BuildResult{}, &DataQualityError{
				Column: "timestamp",
				Reason: "duplicate timestamp " + sorted[i].Timestamp.Format(time.RFC3339),
			}
		}
	}

	n := len(sorted)
	bases := make(map[string]nullable)
	baseOf := func(field string) nullable {
		if c, ok := bases[field]; ok {
			return c
		}
		c := newNullable(n)
		for i, o := range sorted {
			c.vals[i], c.ok[i] = o.Value(field)
		}
		bases[field] = c
		return c
	}

	cols := make([]nullable, len(b.specs))
	for j, spec := range b.specs {
		switch spec.Kind {
		case KindRaw:
			cols[j] = baseOf(spec.Base)
		case KindRolling:
			cols[j] = rollingMean(baseOf(spec.Base), spec.Window)
		case KindLag:
			cols[j] = lag(baseOf(spec.Base), spec.Offset)
		case KindInteraction:
			cols[j] = product(baseOf(spec.A), baseOf(spec.B))
		}
	}

	filled := make([][]float64, len(cols))
	for j, c := range cols {
		fill, ok := c.mean()
		if !ok && (b.specs[j].Kind == KindRolling || b.specs[j].Kind == KindLag) {
			fill, ok = baseOf(b.specs[j].Base).mean()
		}
		if !ok {
			return BuildResult{}, &DataQualityError{Column: b.specs[j].Name, Reason: "no defined value to fill from"}
		}
		out := make([]float64, n)
		for i := range out {
			if c.ok[i] {
				out[i] = c.vals[i]
			} else {
				out[i] = fill
			}
		}
		filled[j] = out
	}

	schema, err := NewFeatureSchema(b.specs)
	if err != nil {
		return BuildResult{}, err
	}

	table := FeatureTable{
		Schema:     schema,
		Timestamps: make([]time.Time, n),
		Rows:       make([][]float64, n),
	}
	for i, o := range sorted {
		table.Timestamps[i] = o.Timestamp
		row := make([]float64, len(filled))
		for j := range filled {
			row[j] = filled[j][i]
		}
		table.Rows[i] = row
	}
	if b.cfg.Standardize {
		if table, err = Standardize(table); err != nil {
			return BuildResult{}, err
		}
	}

	var warnings []LowHistoryWarning
	if largest := slices.Max(append([]int{0}, b.cfg.Windows...)); n < largest {
		warnings = append(warnings, LowHistoryWarning{Rows: n, LargestWindow: largest})
	}
	return BuildResult{Table: table, Warnings: warnings}, nil
}

// BuildLabeled builds the feature table and attaches the label of every row,
// derived from the raw observation values.
func (b *Builder) BuildLabeled(series ObservationSeries) (BuildResult, error) {
	res, err := b.Build(series)
	if err != nil {
		return BuildResult{}, err
	}
	sorted := series.Sorted()
	labels := make([]Label, len(sorted))
	for i, o := range sorted {
		l, err := DeriveLabel(o)
		if err != nil {
			return BuildResult{}, fmt.Errorf("label row %s: %w", o.Timestamp.Format(time.RFC3339), err)
		}
		labels[i] = l
	}
	res.Table.Labels = labels
	return res, nil
}

// rollingMean is the mean of the window values ending at each position. It is
// undefined for the first window-1 positions and wherever the window holds an
// undefined value.
func rollingMean(base nullable, window int) nullable {
	out := newNullable(len(base.vals))
	for i := window - 1; i < len(base.vals); i++ {
		lo := i - window + 1
		if slices.Contains(base.ok[lo:i+1], false) {
			continue
		}
		out.vals[i] = stat.Mean(base.vals[lo:i+1], nil)
		out.ok[i] = true
	}
	return out
}

// lag shifts base forward by offset positions.
func lag(base nullable, offset int) nullable {
	out := newNullable(len(base.vals))
	for i := offset; i < len(base.vals); i++ {
		out.vals[i] = base.vals[i-offset]
		out.ok[i] = base.ok[i-offset]
	}
	return out
}

func product(a, b nullable) nullable {
	out := newNullable(len(a.vals))
	for i := range a.vals {
		if a.ok[i] && b.ok[i] {
			out.vals[i] = a.vals[i] * b.vals[i]
			out.ok[i] = true
		}
	}
	return out
}

// Standardize scales every column of t to zero mean and unit variance and
// returns a table whose schema records the parameters. Rows are copied.
func Standardize(t FeatureTable) (FeatureTable, error) {
	if t.Schema == nil || len(t.Rows) == 0 {
		return FeatureTable{}, &DataQualityError{Column: "table", Reason: "nothing to standardize"}
	}
	if t.Schema.Standardized() {
		return FeatureTable{}, errors.New("standardize: schema already carries scaling")
	}
	scales := make([]Scaling, t.Schema.Len())
	for j := range scales {
		col, _ := t.Column(t.Schema.features[j].Name)
		scales[j] = fitScaling(col)
	}
	schema, err := t.Schema.withScaling(scales)
	if err != nil {
		return FeatureTable{}, err
	}
	out := FeatureTable{
		Schema:     schema,
		Timestamps: slices.Clone(t.Timestamps),
		Rows:       make([][]float64, len(t.Rows)),
		Labels:     slices.Clone(t.Labels),
	}
	for i, row := range t.Rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = scales[j].Apply(v)
		}
		out.Rows[i] = scaled
	}
	return out, nil
}

// fitScaling computes the mean and population standard deviation of col.
func fitScaling(col []float64) Scaling {
	mean, std := stat.PopMeanStdDev(col, nil)
	return Scaling{Mean: mean, StdDev: std}
}
