package domain

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Impute fills missing cells column by column: numeric columns with the median
// of their present values, categorical columns with their most frequent value.
// The input table is not modified. A table without missing cells comes back
// equal to the input.
func Impute(t Table) (Table, error) {
	out := t.Clone()
	for i := range out.Columns {
		c := &out.Columns[i]
		if c.Missing() == 0 {
			continue
		}
		if c.Missing() == c.Len() {
			return Table{}, &DataQualityError{Column: c.Name, Reason: "no non-missing value to impute from"}
		}
		if c.Numeric {
			fillNumeric(c, median(presentFloats(*c)))
		} else {
			fillCategorical(c, mode(presentStrings(*c)))
		}
	}
	return out, nil
}

func fillNumeric(c *Column, v float64) {
	for i, ok := range c.Present {
		if !ok {
			c.Floats[i] = v
			c.Present[i] = true
		}
	}
}

func fillCategorical(c *Column, v string) {
	for i, ok := range c.Present {
		if !ok {
			c.Strings[i] = v
			c.Present[i] = true
		}
	}
}

func presentFloats(c Column) []float64 {
	vals := make([]float64, 0, c.Len())
	for i, ok := range c.Present {
		if ok {
			vals = append(vals, c.Floats[i])
		}
	}
	return vals
}

func presentStrings(c Column) []string {
	vals := make([]string, 0, c.Len())
	for i, ok := range c.Present {
		if ok {
			vals = append(vals, c.Strings[i])
		}
	}
	return vals
}

// median averages the two middle values for an even count. The empirical
// quantile at 0.5 is the lower middle value.
func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	lower := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if len(sorted)%2 == 1 {
		return lower
	}
	return (lower + sorted[len(sorted)/2]) / 2
}

// mode returns the most frequent value; ties go to the lexically smallest value.
func mode(vals []string) string {
	counts := make(map[string]int, len(vals))
	for _, v := range vals {
		counts[v]++
	}
	var best string
	bestCount := 0
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}
