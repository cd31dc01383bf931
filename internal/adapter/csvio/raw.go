package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/climate-favorability/internal/domain"
)

// RawSeparator is the field separator of the weather API export.
const RawSeparator = ';'

// RequiredRawColumns must all be present in a raw export.
var RequiredRawColumns = []string{
	"lat", "lon", "validdate", "t_2m:C", "absolute_humidity_2m:gm3",
	"heat_index:C", "prob_precip_1h:p", "uv:idx", "evapotranspiration_1h:mm",
	"drought_index:idx", "frost_days:d",
}

// rawRenames maps provider column names to canonical names. Required columns
// not listed here (frost_days:d) are validated but not carried forward.
var rawRenames = map[string]string{
	"lat":                      domain.DefaultTableLayout.LatitudeColumn,
	"lon":                      domain.DefaultTableLayout.LongitudeColumn,
	"validdate":                domain.DefaultTableLayout.TimestampColumn,
	"t_2m:C":                   domain.FieldTemperature,
	"absolute_humidity_2m:gm3": domain.FieldAbsoluteHumidity,
	"heat_index:C":             domain.FieldHeatIndex,
	"prob_precip_1h:p":         domain.FieldPrecipitationProbability,
	"uv:idx":                   domain.FieldUVIndex,
	"evapotranspiration_1h:mm": domain.FieldEvapotranspiration,
	"drought_index:idx":        domain.FieldDroughtIndex,
}

// dropped columns are required at ingestion but unused downstream.
var droppedRaw = map[string]bool{"frost_days:d": true}

// missingTokens are cell values read as missing.
var missingTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "NaN": true, "nan": true, "null": true, "NULL": true, "-": true,
}

// timestampLayouts are tried in order when normalizing the validdate column.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// OpenRawTable reads a raw export from path.
func OpenRawTable(path string) (domain.Table, error) {
	rc, err := openFile(path)
	if err != nil {
		return domain.Table{}, fmt.Errorf("open raw table: %w", err)
	}
	defer rc.Close()
	t, err := ReadRawTable(rc)
	if err != nil {
		return domain.Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadRawTable parses a ';'-separated export, validates the required columns,
// and renames them to canonical names. Timestamps are normalized to RFC 3339
// in UTC; unparseable timestamps are kept verbatim and fail later, when the
// table is converted to observations. A column is numeric when every
// non-missing cell parses as a number.
func ReadRawTable(r io.Reader) (domain.Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = RawSeparator
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Table{}, &domain.SchemaValidationError{Missing: RequiredRawColumns}
		}
		return domain.Table{}, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if err := validateHeader(header); err != nil {
		return domain.Table{}, err
	}

	cells := make([][]string, len(header))
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Table{}, fmt.Errorf("read line %d: %w", line, err)
		}
		for j := range header {
			v := ""
			if j < len(rec) {
				v = strings.TrimSpace(rec[j])
			}
			cells[j] = append(cells[j], v)
		}
	}

	var t domain.Table
	for j, name := range header {
		if droppedRaw[name] {
			continue
		}
		canonical := name
		if renamed, ok := rawRenames[name]; ok {
			canonical = renamed
		}
		if name == "validdate" {
			t.Columns = append(t.Columns, timestampColumn(canonical, cells[j]))
			continue
		}
		t.Columns = append(t.Columns, typedColumn(canonical, cells[j]))
	}
	return t, nil
}

func validateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		seen[h] = true
	}
	var missing []string
	for _, want := range RequiredRawColumns {
		if !seen[want] {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return &domain.SchemaValidationError{Missing: missing}
	}
	return nil
}

func typedColumn(name string, vals []string) domain.Column {
	n := len(vals)
	floats := make([]float64, n)
	present := make([]bool, n)
	numeric := true
	for i, v := range vals {
		if missingTokens[v] {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			numeric = false
			break
		}
		floats[i] = f
		present[i] = true
	}
	if numeric {
		return domain.Column{Name: name, Numeric: true, Floats: floats, Present: present}
	}

	strs := make([]string, n)
	present = make([]bool, n)
	for i, v := range vals {
		if !missingTokens[v] {
			strs[i] = v
			present[i] = true
		}
	}
	return domain.Column{Name: name, Strings: strs, Present: present}
}

func timestampColumn(name string, vals []string) domain.Column {
	strs := make([]string, len(vals))
	present := make([]bool, len(vals))
	for i, v := range vals {
		if missingTokens[v] {
			continue
		}
		strs[i] = normalizeTimestamp(v)
		present[i] = true
	}
	return domain.Column{Name: name, Strings: strs, Present: present}
}

func normalizeTimestamp(v string) string {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC().Format(time.RFC3339)
		}
	}
	return v
}
