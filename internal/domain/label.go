package domain

import (
	"strconv"
	"strings"
)

// Label is the binary favorability class of a training record.
type Label int

const (
	Unfavorable Label = 0
	Favorable   Label = 1
)

// Favorability thresholds on raw (unnormalized) values. Every bound is exclusive.
const (
	minTemperature   = 15.0
	maxTemperature   = 30.0
	minHumidity      = 5.0
	maxHumidity      = 15.0
	maxUVIndex       = 6.0
	maxPrecipitation = 30.0
)

// labelFields are the fields DeriveLabel requires.
var labelFields = []string{
	FieldTemperature,
	FieldAbsoluteHumidity,
	FieldUVIndex,
	FieldPrecipitationProbability,
}

// DeriveLabel classifies an observation:
//
//	15 < Temperature < 30 AND 5 < Absolute_Humidity < 15 AND UV_Index < 6 AND Precipitation_Probability < 30
//
// It fails with an InvalidRecordError when a required field is absent.
func DeriveLabel(obs RawObservation) (Label, error) {
	vals := make(map[string]float64, len(labelFields))
	for _, name := range labelFields {
		v, ok := obs.Value(name)
		if !ok {
			return Unfavorable, &InvalidRecordError{Field: name, Reason: "required for label is absent"}
		}
		vals[name] = v
	}

	t := vals[FieldTemperature]
	h := vals[FieldAbsoluteHumidity]
	uv := vals[FieldUVIndex]
	p := vals[FieldPrecipitationProbability]

	if t > minTemperature && t < maxTemperature &&
		h > minHumidity && h < maxHumidity &&
		uv < maxUVIndex &&
		p < maxPrecipitation {
		return Favorable, nil
	}
	return Unfavorable, nil
}

// ParseLabelFields derives a label from textual field values, as read from an
// unparsed record. Empty or non-numeric values are an InvalidRecordError.
func ParseLabelFields(fields map[string]string) (Label, error) {
	parsed := make(map[string]float64, len(labelFields))
	for _, name := range labelFields {
		raw, ok := fields[name]
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			return Unfavorable, &InvalidRecordError{Field: name, Reason: "required for label is absent"}
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Unfavorable, &InvalidRecordError{Field: name, Reason: "not numeric: " + raw}
		}
		parsed[name] = v
	}
	obs := NewRawObservation(clock.Now(), parsed)
	for _, name := range labelFields {
		if !obs.Has(name) {
			return Unfavorable, &InvalidRecordError{Field: name, Reason: "not finite"}
		}
	}
	return DeriveLabel(obs)
}
