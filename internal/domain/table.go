package domain

import (
	"fmt"
	"time"
)

// Column is one column of a record table. Numeric columns carry their values in
// Floats, categorical columns in Strings. Present[i] is false for a missing cell.
type Column struct {
	Name    string
	Numeric bool
	Floats  []float64
	Strings []string
	Present []bool
}

// Len returns the number of cells in the column.
func (c Column) Len() int {
	return len(c.Present)
}

// Missing returns the number of missing cells.
func (c Column) Missing() int {
	n := 0
	for _, ok := range c.Present {
		if !ok {
			n++
		}
	}
	return n
}

func (c Column) clone() Column {
	out := Column{Name: c.Name, Numeric: c.Numeric, Present: append([]bool(nil), c.Present...)}
	if c.Floats != nil {
		out.Floats = append([]float64(nil), c.Floats...)
	}
	if c.Strings != nil {
		out.Strings = append([]string(nil), c.Strings...)
	}
	return out
}

// Table is a column-oriented record table as produced by ingestion.
type Table struct {
	Columns []Column
}

// Rows returns the number of rows, taken from the first column.
func (t Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := Table{Columns: make([]Column, len(t.Columns))}
	for i, c := range t.Columns {
		out.Columns[i] = c.clone()
	}
	return out
}

// TableLayout names the columns that carry an observation's timestamp and location.
type TableLayout struct {
	TimestampColumn string
	LatitudeColumn  string
	LongitudeColumn string
	TimestampLayout string
}

// DefaultTableLayout matches the canonical columns written by csvio.ReadRawTable.
var DefaultTableLayout = TableLayout{
	TimestampColumn: "Date",
	LatitudeColumn:  "Latitude",
	LongitudeColumn: "Longitude",
	TimestampLayout: time.RFC3339,
}

// Observations converts an imputed table into observations, one per row. Every
// numeric column named in ObservationFields becomes a field; missing cells stay absent.
func (t Table) Observations(layout TableLayout) ([]RawObservation, error) {
	tsCol, ok := t.Column(layout.TimestampColumn)
	if !ok {
		return nil, &DataQualityError{Column: layout.TimestampColumn, Reason: "column not found"}
	}
	if tsCol.Numeric {
		return nil, &DataQualityError{Column: layout.TimestampColumn, Reason: "timestamp column is numeric"}
	}
	latCol, hasLat := t.Column(layout.LatitudeColumn)
	lonCol, hasLon := t.Column(layout.LongitudeColumn)

	fieldCols := make([]Column, 0, len(ObservationFields))
	for _, name := range ObservationFields {
		if c, ok := t.Column(name); ok && c.Numeric {
			fieldCols = append(fieldCols, c)
		}
	}

	obs := make([]RawObservation, 0, t.Rows())
	for i := 0; i < t.Rows(); i++ {
		if !tsCol.Present[i] {
			return nil, &DataQualityError{Column: layout.TimestampColumn, Reason: fmt.Sprintf("row %d has no timestamp", i)}
		}
		ts, err := time.Parse(layout.TimestampLayout, tsCol.Strings[i])
		if err != nil {
			return nil, &DataQualityError{Column: layout.TimestampColumn, Reason: fmt.Sprintf("row %d: %v", i, err)}
		}

		fields := make(map[string]float64, len(fieldCols))
		for _, c := range fieldCols {
			if c.Present[i] {
				fields[c.Name] = c.Floats[i]
			}
		}
		o := NewRawObservation(ts.UTC(), fields)
		if hasLat && hasLon && latCol.Numeric && lonCol.Numeric && latCol.Present[i] && lonCol.Present[i] {
			o = o.WithLocation(latCol.Floats[i], lonCol.Floats[i])
		}
		obs = append(obs, o)
	}
	return obs, nil
}
