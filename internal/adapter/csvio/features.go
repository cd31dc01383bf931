package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/couchcryptid/climate-favorability/internal/domain"
)

// DateColumn is an optional leading timestamp column. Tables written by
// WriteFeatureTable never carry it; tables exported with their date index do.
const DateColumn = "Date"

// WriteFeatureTable writes t as a ','-separated table whose header is exactly
// the schema names in order, followed by Favorable_Condition when the table
// is labeled. Row timestamps are not persisted.
func WriteFeatureTable(w io.Writer, t domain.FeatureTable) error {
	if t.Schema == nil {
		return errors.New("write feature table: nil schema")
	}
	labeled := len(t.Labels) > 0
	if labeled && len(t.Labels) != len(t.Rows) {
		return fmt.Errorf("write feature table: %d labels for %d rows", len(t.Labels), len(t.Rows))
	}

	cw := csv.NewWriter(w)
	header := t.Schema.Names()
	if labeled {
		header = append(header, domain.LabelColumn)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rec := make([]string, len(header))
	for i, row := range t.Rows {
		if len(row) != t.Schema.Len() {
			return &domain.AlignmentError{SchemaVersion: t.Schema.Version(), Expected: t.Schema.Len(), Got: len(row), Position: -1}
		}
		for j, v := range row {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if labeled {
			rec[len(rec)-1] = strconv.Itoa(int(t.Labels[i]))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CreateFeatureTable writes t to path.
func CreateFeatureTable(path string, t domain.FeatureTable) error {
	wc, err := createFile(path)
	if err != nil {
		return fmt.Errorf("create feature table: %w", err)
	}
	if err := WriteFeatureTable(wc, t); err != nil {
		wc.Close()
		return err
	}
	return wc.Close()
}

// ReadFeatureTable parses a persisted feature table. When schema is non-nil
// the header must match it name for name, otherwise an AlignmentError is
// returned. A nil schema is rebuilt from the header. Labels are read when the
// last column is Favorable_Condition, and timestamps when the first column is
// Date.
func ReadFeatureTable(r io.Reader, schema *domain.FeatureSchema) (domain.FeatureTable, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("read header: %w", err)
	}
	dated := len(header) > 0 && header[0] == DateColumn
	names := header
	if dated {
		names = names[1:]
	}
	offset := len(header) - len(names)
	labeled := len(names) > 0 && names[len(names)-1] == domain.LabelColumn
	if labeled {
		names = names[:len(names)-1]
	}

	if schema == nil {
		schema, err = domain.SchemaFromHeader(names, domain.DefaultInteractions)
		if err != nil {
			return domain.FeatureTable{}, fmt.Errorf("schema from header: %w", err)
		}
	} else if err := matchHeader(schema, names); err != nil {
		return domain.FeatureTable{}, err
	}

	t := domain.FeatureTable{Schema: schema}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.FeatureTable{}, fmt.Errorf("read line %d: %w", line, err)
		}
		if dated {
			ts, err := time.Parse(time.RFC3339, rec[0])
			if err != nil {
				return domain.FeatureTable{}, &domain.DataQualityError{Column: DateColumn, Reason: fmt.Sprintf("line %d: %v", line, err)}
			}
			t.Timestamps = append(t.Timestamps, ts)
		}
		row := make([]float64, len(names))
		for j := range names {
			v, err := strconv.ParseFloat(rec[j+offset], 64)
			if err != nil {
				return domain.FeatureTable{}, &domain.DataQualityError{Column: names[j], Reason: fmt.Sprintf("line %d: %v", line, err)}
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
		if labeled {
			l, err := strconv.Atoi(rec[len(rec)-1])
			if err != nil || (l != int(domain.Favorable) && l != int(domain.Unfavorable)) {
				return domain.FeatureTable{}, &domain.DataQualityError{Column: domain.LabelColumn, Reason: fmt.Sprintf("line %d: not a binary label", line)}
			}
			t.Labels = append(t.Labels, domain.Label(l))
		}
	}
	return t, nil
}

// OpenFeatureTable reads a feature table from path. See ReadFeatureTable.
func OpenFeatureTable(path string, schema *domain.FeatureSchema) (domain.FeatureTable, error) {
	rc, err := openFile(path)
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("open feature table: %w", err)
	}
	defer rc.Close()
	t, err := ReadFeatureTable(rc, schema)
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadHeader returns the column names of the feature table at path without
// reading its rows.
func ReadHeader(path string) ([]string, error) {
	rc, err := openFile(path)
	if err != nil {
		return nil, fmt.Errorf("open feature table: %w", err)
	}
	defer rc.Close()
	header, err := csv.NewReader(rc).Read()
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	return header, nil
}

func matchHeader(schema *domain.FeatureSchema, names []string) error {
	want := schema.Names()
	if len(want) != len(names) {
		return &domain.AlignmentError{SchemaVersion: schema.Version(), Expected: len(want), Got: len(names), Position: -1}
	}
	for i := range want {
		if want[i] != names[i] {
			return &domain.AlignmentError{SchemaVersion: schema.Version(), Expected: len(want), Got: len(names), Position: i, Want: want[i], Have: names[i]}
		}
	}
	return nil
}
