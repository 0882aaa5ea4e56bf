package stats

import (
	"fmt"
	"sort"
)

// InterceptName is the name of the constant column
const InterceptName = "Intercept"

// Design is a column-oriented regression design matrix with named columns
type Design struct {
	rows  int
	names []string
	cols  [][]float64
}

// NewDesign creates an empty design with n rows
func NewDesign(n int) *Design {
	return &Design{rows: n}
}

// Rows returns the number of observations
func (d *Design) Rows() int { return d.rows }

// Names returns the column names in order
func (d *Design) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// AddIntercept appends a constant column
func (d *Design) AddIntercept() {
	col := make([]float64, d.rows)
	for i := range col {
		col[i] = 1
	}
	d.names = append(d.names, InterceptName)
	d.cols = append(d.cols, col)
}

// AddColumn appends a named regressor
func (d *Design) AddColumn(name string, values []float64) error {
	if len(values) != d.rows {
		return fmt.Errorf("column %s has %d values, design has %d rows", name, len(values), d.rows)
	}
	col := make([]float64, d.rows)
	copy(col, values)
	d.names = append(d.names, name)
	d.cols = append(d.cols, col)
	return nil
}

// AddFixedEffects appends one dummy per level of labels, omitting the
// first level in sorted order as the reference category. Columns are named
// C(factor)[T.level].
func (d *Design) AddFixedEffects(factor string, labels []string) error {
	if len(labels) != d.rows {
		return fmt.Errorf("factor %s has %d labels, design has %d rows", factor, len(labels), d.rows)
	}
	levels := uniqueSorted(labels)
	for _, level := range levels[min(1, len(levels)):] {
		col := make([]float64, d.rows)
		for i, l := range labels {
			if l == level {
				col[i] = 1
			}
		}
		d.names = append(d.names, fmt.Sprintf("C(%s)[T.%s]", factor, level))
		d.cols = append(d.cols, col)
	}
	return nil
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0)
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}
