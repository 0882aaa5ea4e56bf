// Package panel holds the date-indexed price panel and the log-return table
// derived from it.
package panel

import (
	"fmt"
	"math"
	"sort"
	"time"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/schema"
)

// Point is one dated observation
type Point struct {
	Date  time.Time
	Value float64
}

// Prices is a wide close-price table: one row per date, one column per
// security. Missing values are NaN.
type Prices struct {
	Dates   []time.Time
	Columns []string
	values  map[string][]float64
}

// NewPrices creates an all-NaN panel over dates and columns
func NewPrices(dates []time.Time, columns []string) *Prices {
	p := &Prices{
		Dates:   append([]time.Time(nil), dates...),
		Columns: append([]string(nil), columns...),
		values:  make(map[string][]float64, len(columns)),
	}
	for _, c := range columns {
		col := make([]float64, len(dates))
		for i := range col {
			col[i] = math.NaN()
		}
		p.values[c] = col
	}
	return p
}

// Column returns the values of a column; ok is false when it is absent
func (p *Prices) Column(name string) ([]float64, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Has reports whether the panel contains the column
func (p *Prices) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Set stores a value
func (p *Prices) Set(row int, column string, v float64) {
	p.values[column][row] = v
}

// Merge outer-joins series on date, sorts the union of dates and forward
// fills each column. Column order follows order.
func Merge(series map[string][]Point, order []string) *Prices {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, name := range order {
		for _, pt := range series[name] {
			d := normalizeDate(pt.Date)
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				dates = append(dates, d)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	var cols []string
	for _, name := range order {
		if _, ok := series[name]; ok {
			cols = append(cols, name)
		}
	}
	p := NewPrices(dates, cols)
	for _, name := range cols {
		for _, pt := range series[name] {
			p.Set(index[normalizeDate(pt.Date)], name, pt.Value)
		}
	}
	p.ForwardFill()
	return p
}

// ForwardFill carries the last observed value forward within each column.
// Leading gaps stay NaN.
func (p *Prices) ForwardFill() {
	for _, col := range p.values {
		last := math.NaN()
		for i, v := range col {
			if math.IsNaN(v) {
				col[i] = last
			} else {
				last = v
			}
		}
	}
}

// LoadPrices reads the merged price file: a date column plus one column per
// security. Rows are sorted by date and forward filled. A date that appears
// twice is a ParsingError.
func LoadPrices(path string) (*Prices, error) {
	tbl, err := schema.ReadCSV(path, config.StageDownload)
	if err != nil {
		return nil, err
	}
	m, err := tbl.Bind(schema.Prices())
	if err != nil {
		return nil, err
	}

	dateCol := m.Column(schema.FieldDate)
	var columns []string
	var positions []int
	for i, h := range tbl.Header {
		if i == dateCol || h == "" {
			continue
		}
		columns = append(columns, h)
		positions = append(positions, i)
	}

	type row struct {
		date   time.Time
		values []float64
	}
	rows := make([]row, 0, len(tbl.Rows))
	for n, rec := range tbl.Rows {
		d, err := m.Date(rec, schema.FieldDate)
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s row %d", path, n+2), err)
		}
		r := row{date: d, values: make([]float64, len(columns))}
		for j, pos := range positions {
			cell := ""
			if pos < len(rec) {
				cell = rec[pos]
			}
			v, err := schema.ParseFloat(cell)
			if err != nil {
				return nil, apperrors.NewParsingError(fmt.Sprintf("%s row %d column %s", path, n+2, columns[j]), err)
			}
			r.values[j] = v
		}
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })
	for i := 1; i < len(rows); i++ {
		if rows[i].date.Equal(rows[i-1].date) {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("%s: duplicate date %s", path, rows[i].date.Format(config.DateLayout)), nil)
		}
	}

	dates := make([]time.Time, len(rows))
	for i, r := range rows {
		dates[i] = r.date
	}
	p := NewPrices(dates, columns)
	for i, r := range rows {
		for j, c := range columns {
			p.Set(i, c, r.values[j])
		}
	}
	p.ForwardFill()
	return p, nil
}

// Save writes the panel with a Date column followed by every security
func (p *Prices) Save(w *exporter.CSVWriter, path string) error {
	tbl := &exporter.Table{
		Name:    "merged_market_daily",
		Headers: append([]string{"Date"}, p.Columns...),
	}
	for i, d := range p.Dates {
		row := make([]string, 0, len(p.Columns)+1)
		row = append(row, exporter.FormatDate(d))
		for _, c := range p.Columns {
			row = append(row, exporter.FormatFloat(p.values[c][i]))
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return w.WriteTable(path, tbl)
}

func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
