package panel

import (
	"fmt"
	"math"
	"time"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
)

// Returns is the log-return table derived from a price panel. Row i holds
// ln(P[i+1]/P[i]); the first price row has no return and is dropped.
type Returns struct {
	Dates   []time.Time
	Columns []string
	values  map[string][]float64
}

// Observations counts the usable (finite, positive) prices of a column
func (p *Prices) Observations(column string) int {
	n := 0
	for _, v := range p.values[column] {
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 {
			n++
		}
	}
	return n
}

// LogReturns computes log returns for every column. Each required column
// must exist and carry at least two usable prices.
func LogReturns(p *Prices, required ...string) (*Returns, error) {
	for _, c := range required {
		if !p.Has(c) {
			return nil, apperrors.NewMissingInputError(fmt.Sprintf("price column %s", c), config.StageDownload, nil)
		}
		if n := p.Observations(c); n < 2 {
			return nil, apperrors.NewInsufficientDataError(c, fmt.Sprintf("%d aligned price observations, need 2", n))
		}
	}

	n := len(p.Dates)
	r := &Returns{
		Columns: append([]string(nil), p.Columns...),
		values:  make(map[string][]float64, len(p.Columns)),
	}
	if n < 2 {
		return r, nil
	}
	r.Dates = append([]time.Time(nil), p.Dates[1:]...)

	for _, c := range p.Columns {
		prices := p.values[c]
		out := make([]float64, n-1)
		for i := 1; i < n; i++ {
			out[i-1] = logReturn(prices[i-1], prices[i])
		}
		r.values[c] = out
	}
	return r, nil
}

func logReturn(prev, cur float64) float64 {
	if math.IsNaN(prev) || math.IsNaN(cur) || prev <= 0 || cur <= 0 {
		return math.NaN()
	}
	return math.Log(cur / prev)
}

// Column returns the return series of a column
func (r *Returns) Column(name string) ([]float64, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Len is the number of return rows
func (r *Returns) Len() int { return len(r.Dates) }

// Defined returns the row positions where every named column has a return.
// This is the trading calendar used for window arithmetic.
func (r *Returns) Defined(columns ...string) []int {
	var rows []int
	for i := range r.Dates {
		ok := true
		for _, c := range columns {
			v, has := r.values[c]
			if !has || math.IsNaN(v[i]) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	return rows
}

// NewReturns builds a return table directly, for tests and synthetic data
func NewReturns(dates []time.Time, columns map[string][]float64, order []string) (*Returns, error) {
	r := &Returns{
		Dates:   append([]time.Time(nil), dates...),
		Columns: append([]string(nil), order...),
		values:  make(map[string][]float64, len(order)),
	}
	for _, c := range order {
		v, ok := columns[c]
		if !ok {
			return nil, fmt.Errorf("column %s not provided", c)
		}
		if len(v) != len(dates) {
			return nil, fmt.Errorf("column %s has %d values, want %d", c, len(v), len(dates))
		}
		r.values[c] = append([]float64(nil), v...)
	}
	return r, nil
}
