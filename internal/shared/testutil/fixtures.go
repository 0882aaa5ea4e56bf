package testutil

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// SyntheticParams describes a generated market: every security follows the
// market one-for-one (alpha 0, beta 1) plus idiosyncratic noise, and the
// affected securities receive an extra daily return of Shock for ShockDays
// trading days starting at ShockDay.
type SyntheticParams struct {
	Start     time.Time
	Days      int
	Market    string
	Tickers   []string
	Affected  map[string]bool
	Sectors   map[string]string
	ShockDay  int
	ShockDays int
	Shock     float64
	MarketVol float64
	Noise     float64
	Seed      uint64
}

// DefaultSyntheticParams is a 200-day market with three securities, two of
// them hit by a negative shock on day 150.
func DefaultSyntheticParams() SyntheticParams {
	return SyntheticParams{
		Start:     time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		Days:      200,
		Market:    "^MKT",
		Tickers:   []string{"AAA", "BBB", "CCC"},
		Affected:  map[string]bool{"AAA": true, "BBB": true},
		Sectors:   map[string]string{"AAA": "Energy", "BBB": "Metals", "CCC": "Pharma"},
		ShockDay:  150,
		ShockDays: 5,
		Shock:     -0.02,
		MarketVol: 0.01,
		Noise:     0.003,
		Seed:      7,
	}
}

// SyntheticMarket is a generated price panel
type SyntheticMarket struct {
	Params SyntheticParams
	Dates  []time.Time
	Order  []string
	Prices map[string][]float64
}

// NewSyntheticMarket generates prices starting at 100 on business days
func NewSyntheticMarket(params SyntheticParams) *SyntheticMarket {
	rng := rand.New(rand.NewPCG(params.Seed, params.Seed))

	m := &SyntheticMarket{
		Params: params,
		Order:  append([]string{params.Market}, params.Tickers...),
		Prices: make(map[string][]float64, len(params.Tickers)+1),
	}
	for d := params.Start; len(m.Dates) < params.Days; d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			m.Dates = append(m.Dates, d)
		}
	}

	for _, c := range m.Order {
		m.Prices[c] = make([]float64, params.Days)
		m.Prices[c][0] = 100
	}
	for i := 1; i < params.Days; i++ {
		rm := 0.0003 + params.MarketVol*rng.NormFloat64()
		m.Prices[params.Market][i] = m.Prices[params.Market][i-1] * math.Exp(rm)
		for _, t := range params.Tickers {
			r := rm + params.Noise*rng.NormFloat64()
			if params.Affected[t] && i >= params.ShockDay && i < params.ShockDay+params.ShockDays {
				r += params.Shock
			}
			m.Prices[t][i] = m.Prices[t][i-1] * math.Exp(r)
		}
	}
	return m
}

// EventDate is the date of the first shocked return
func (m *SyntheticMarket) EventDate() time.Time {
	return m.Dates[m.Params.ShockDay]
}

// WritePrices writes the panel in the merged price file layout
func (m *SyntheticMarket) WritePrices(path string) error {
	rows := [][]string{append([]string{"Date"}, m.Order...)}
	for i, d := range m.Dates {
		row := []string{d.Format("2006-01-02")}
		for _, c := range m.Order {
			row = append(row, strconv.FormatFloat(m.Prices[c][i], 'g', -1, 64))
		}
		rows = append(rows, row)
	}
	return writeCSV(path, rows)
}

// WriteSectorMeta writes ticker,sector rows for the generated securities
func (m *SyntheticMarket) WriteSectorMeta(path string) error {
	rows := [][]string{{"ticker", "sector", "industry", "source"}}
	for _, t := range m.Params.Tickers {
		rows = append(rows, []string{t, m.Params.Sectors[t], "", "synthetic"})
	}
	return writeCSV(path, rows)
}

// WriteCSVFile writes header and rows to path, creating directories
func WriteCSVFile(path string, header []string, rows [][]string) error {
	return writeCSV(path, append([][]string{header}, rows...))
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create fixture directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fixture: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}
