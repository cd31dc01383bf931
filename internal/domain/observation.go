package domain

import (
	"math"
	"slices"
	"time"
)

// Canonical field names shared by the feature table, the schema and inference requests.
const (
	FieldTemperature              = "Temperature"
	FieldAbsoluteHumidity         = "Absolute_Humidity"
	FieldHeatIndex                = "Heat_Index"
	FieldPrecipitationProbability = "Precipitation_Probability"
	FieldUVIndex                  = "UV_Index"
	FieldEvapotranspiration       = "Evapotranspiration"
	FieldDroughtIndex             = "Drought_Index"

	// LabelColumn is appended after the schema columns in the persisted feature table.
	LabelColumn = "Favorable_Condition"
)

// ObservationFields lists the numeric fields of a RawObservation in feature-table order.
var ObservationFields = []string{
	FieldTemperature,
	FieldAbsoluteHumidity,
	FieldHeatIndex,
	FieldPrecipitationProbability,
	FieldUVIndex,
	FieldEvapotranspiration,
	FieldDroughtIndex,
}

// RawObservation is a single timestamped weather reading.
// Fields are copied on construction and only exposed through accessors.
type RawObservation struct {
	Timestamp time.Time
	Latitude  float64
	Longitude float64

	fields map[string]float64
}

// NewRawObservation builds an observation from a field map. Non-finite values
// are dropped so that they read as absent.
func NewRawObservation(ts time.Time, fields map[string]float64) RawObservation {
	copied := make(map[string]float64, len(fields))
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		copied[name] = v
	}
	return RawObservation{Timestamp: ts, fields: copied}
}

// WithLocation returns a copy of the observation tagged with coordinates.
func (o RawObservation) WithLocation(lat, lon float64) RawObservation {
	o.Latitude = lat
	o.Longitude = lon
	return o
}

// Value returns the named field and whether it is present.
func (o RawObservation) Value(name string) (float64, bool) {
	v, ok := o.fields[name]
	return v, ok
}

// Has reports whether the named field is present.
func (o RawObservation) Has(name string) bool {
	_, ok := o.fields[name]
	return ok
}

// Fields returns a copy of the observation's fields.
func (o RawObservation) Fields() map[string]float64 {
	out := make(map[string]float64, len(o.fields))
	for k, v := range o.fields {
		out[k] = v
	}
	return out
}

// ObservationSeries is a sequence of observations for one location, ordered by timestamp.
type ObservationSeries []RawObservation

// Sorted returns a copy of the series in ascending timestamp order. The sort is
// stable, so an already-sorted series comes back unchanged.
func (s ObservationSeries) Sorted() ObservationSeries {
	out := make(ObservationSeries, len(s))
	copy(out, s)
	sortByTimestamp(out)
	return out
}

func sortByTimestamp(s ObservationSeries) {
	slices.SortStableFunc(s, func(a, b RawObservation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}
