package inference

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"shockstudy/internal/classify"
	"shockstudy/internal/config"
	"shockstudy/internal/eventstudy"
	"shockstudy/internal/exporter"
	"shockstudy/internal/schema"
	"shockstudy/internal/stats"
)

// CARMetrics splits both CAR horizons of the summary by group. Only
// Treated and Defensive tickers are kept.
func CARMetrics(summary []eventstudy.SummaryRow, labels map[string]classify.Label, k1, k2 int) []*Metric {
	m1 := NewMetric(schema.CARColumn(k1))
	m2 := NewMetric(schema.CARColumn(k2))
	for _, s := range summary {
		l, ok := labels[s.Ticker]
		if !ok || (l.Group != config.GroupTreated && l.Group != config.GroupDefensive) {
			continue
		}
		m1.Add(l.Group, s.CARK1)
		m2.Add(l.Group, s.CARK2)
	}
	return []*Metric{m1, m2}
}

// SectorAggregate is the mean or median CAR of one sector
type SectorAggregate struct {
	Sector string
	CARK1  float64
	CARK2  float64
	N      int
}

// SectorAggregates groups the summary by sector and reduces both horizons
// with agg. The result is sorted by the second horizon, descending.
func SectorAggregates(summary []eventstudy.SummaryRow, labels map[string]classify.Label, agg func([]float64) float64) []SectorAggregate {
	k1 := map[string][]float64{}
	k2 := map[string][]float64{}
	for _, s := range summary {
		sector := config.UnmappedSector
		if l, ok := labels[s.Ticker]; ok {
			sector = l.Sector
		}
		k1[sector] = append(k1[sector], s.CARK1)
		k2[sector] = append(k2[sector], s.CARK2)
	}

	out := make([]SectorAggregate, 0, len(k1))
	for sector := range k1 {
		out = append(out, SectorAggregate{
			Sector: sector,
			CARK1:  agg(k1[sector]),
			CARK2:  agg(k2[sector]),
			N:      len(k1[sector]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CARK2, out[j].CARK2
		if math.IsNaN(a) != math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		if a != b {
			return a > b
		}
		return out[i].Sector < out[j].Sector
	})
	return out
}

// SectorTable renders sector aggregates
func SectorTable(name string, aggs []SectorAggregate, k1, k2 int) *exporter.Table {
	t := &exporter.Table{
		Name:    name,
		Headers: []string{schema.FieldSector, schema.CARColumn(k1), schema.CARColumn(k2), "n"},
	}
	for _, a := range aggs {
		t.AddRow(a.Sector, exporter.FormatFloat(a.CARK1), exporter.FormatFloat(a.CARK2), exporter.FormatInt(a.N))
	}
	return t
}

// TreatedNote is the plain-text Treated vs Defensive comparison of the
// second CAR horizon
func TreatedNote(eventDate string, u *config.Universe, metric *Metric) []string {
	w := metric.Welch()
	treated := append([]string(nil), u.TreatedSectors...)
	defensive := append([]string(nil), u.DefensiveSectors...)
	sort.Strings(treated)
	sort.Strings(defensive)
	return []string{
		fmt.Sprintf("Event: %s", eventDate),
		fmt.Sprintf("TREATED sectors: %s", strings.Join(treated, ", ")),
		fmt.Sprintf("DEFENSIVE sectors: %s", strings.Join(defensive, ", ")),
		fmt.Sprintf("Mean %s (treated)   = %s  (n=%d)", metric.Name, exporter.FormatFixed(w.MeanA, 4), w.NA),
		fmt.Sprintf("Mean %s (defensive) = %s  (n=%d)", metric.Name, exporter.FormatFixed(w.MeanB, 4), w.NB),
		fmt.Sprintf("Welch t-stat (treated - defensive) = %s  (df=%s, p=%s)",
			exporter.FormatFixed(w.T, 3), exporter.FormatFixed(w.DF, 1), exporter.FormatFixed(w.P, 3)),
		"Note: descriptive gap across tickers; see welch_tests and bootstrap_ci for the full comparison.",
	}
}

// Mean and Median are the aggregators for SectorAggregates
var (
	Mean   = stats.Mean
	Median = stats.Median
)
