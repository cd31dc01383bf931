package domain

import (
	"fmt"
	"strings"
)

// DataQualityError reports a column that has no usable value. It aborts a batch build.
type DataQualityError struct {
	Column string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: column %q: %s", e.Column, e.Reason)
}

// InvalidRecordError reports a record whose required field is absent or not numeric.
type InvalidRecordError struct {
	Field  string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record: field %q: %s", e.Field, e.Reason)
}

// SchemaValidationError is returned by ingestion when required input columns are missing.
type SchemaValidationError struct {
	Missing []string
}

func (e *SchemaValidationError) Error() string {
	return "schema validation: missing columns: " + strings.Join(e.Missing, ", ")
}

// AlignmentError is fatal to a single prediction request: the vector does not
// match the schema the model was trained on.
type AlignmentError struct {
	SchemaVersion string
	Expected      int
	Got           int
	// Position is the first index whose name differs, or -1 for a length mismatch.
	Position int
	Want     string
	Have     string
}

func (e *AlignmentError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("alignment: schema %s expects %d features, vector has %d", e.SchemaVersion, e.Expected, e.Got)
	}
	return fmt.Sprintf("alignment: schema %s position %d: want %q, have %q", e.SchemaVersion, e.Position, e.Want, e.Have)
}

// LowHistoryWarning is raised when a series is shorter than the largest rolling
// window. Every affected rolling value falls back to the column mean.
type LowHistoryWarning struct {
	Rows          int
	LargestWindow int
}

func (w LowHistoryWarning) String() string {
	return fmt.Sprintf("low history: %d rows, largest window %d; rolling features use mean fallback", w.Rows, w.LargestWindow)
}

// FeatureSynthesisGap records a schema entry the synthesizer could not resolve
// from the observation. The entry is filled with 0.
type FeatureSynthesisGap struct {
	Feature string   `json:"feature"`
	Kind    string   `json:"kind"`
	Missing []string `json:"missing"`
}

func (g FeatureSynthesisGap) String() string {
	return fmt.Sprintf("synthesis gap: %s (%s) missing %s", g.Feature, g.Kind, strings.Join(g.Missing, ","))
}
