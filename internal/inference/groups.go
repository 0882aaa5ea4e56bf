package inference

import (
	"sort"
	"strconv"

	"shockstudy/internal/config"
	"shockstudy/internal/exporter"
	"shockstudy/internal/stats"
)

// EventTimeTable averages AR by relative day for each group and adds the
// Treated minus Defensive difference
func EventTimeTable(rows []Row) *exporter.Table {
	type cell struct {
		sum float64
		n   int
	}
	cells := map[int]map[string]*cell{}
	for _, r := range rows {
		g, ok := cells[r.RelDay]
		if !ok {
			g = map[string]*cell{}
			cells[r.RelDay] = g
		}
		c, ok := g[r.Group]
		if !ok {
			c = &cell{}
			g[r.Group] = c
		}
		c.sum += r.AR
		c.n++
	}

	days := make([]int, 0, len(cells))
	for d := range cells {
		days = append(days, d)
	}
	sort.Ints(days)

	mean := func(c *cell) (float64, bool) {
		if c == nil || c.n == 0 {
			return 0, false
		}
		return c.sum / float64(c.n), true
	}

	t := &exporter.Table{
		Name:    config.TableDiDEventTime,
		Headers: []string{"rel_day", config.GroupTreated, config.GroupDefensive, "diff"},
	}
	for _, d := range days {
		tm, tok := mean(cells[d][config.GroupTreated])
		dm, dok := mean(cells[d][config.GroupDefensive])
		row := []string{strconv.Itoa(d), "", "", ""}
		if tok {
			row[1] = exporter.FormatFloat(tm)
		}
		if dok {
			row[2] = exporter.FormatFloat(dm)
		}
		if tok && dok {
			row[3] = exporter.FormatFloat(tm - dm)
		}
		t.AddRow(row...)
	}
	return t
}

// Metric holds one measure split by group
type Metric struct {
	Name   string
	Groups map[string][]float64
}

// NewMetric creates an empty metric
func NewMetric(name string) *Metric {
	return &Metric{Name: name, Groups: map[string][]float64{}}
}

// Add appends a value to a group
func (m *Metric) Add(group string, v float64) {
	m.Groups[group] = append(m.Groups[group], v)
}

// Welch compares the Treated and Defensive values
func (m *Metric) Welch() stats.WelchResult {
	return stats.Welch(m.Groups[config.GroupTreated], m.Groups[config.GroupDefensive])
}

// WelchTable tabulates Treated vs Defensive Welch tests, one row per metric
func WelchTable(metrics []*Metric) *exporter.Table {
	t := &exporter.Table{
		Name: config.TableWelch,
		Headers: []string{"Metric", "t_stat", "df", "pval",
			"mean_treated", "mean_defensive", "n_treated", "n_defensive"},
	}
	for _, m := range metrics {
		w := m.Welch()
		t.AddRow(m.Name,
			exporter.FormatFloat(w.T),
			exporter.FormatFloat(w.DF),
			exporter.FormatFloat(w.P),
			exporter.FormatFloat(w.MeanA),
			exporter.FormatFloat(w.MeanB),
			exporter.FormatInt(w.NA),
			exporter.FormatInt(w.NB))
	}
	return t
}

// BootstrapTable gives a percentile CI of the mean for each group and
// metric. Every cell draws from a fresh generator seeded with seed.
func BootstrapTable(metrics []*Metric, b int, seed uint64) *exporter.Table {
	t := &exporter.Table{
		Name:    config.TableBootstrap,
		Headers: []string{"Group", "Metric", "Mean", "Low_CI", "High_CI", "N"},
	}
	for _, g := range []string{config.GroupTreated, config.GroupDefensive} {
		for _, m := range metrics {
			r := stats.BootstrapMean(m.Groups[g], b, seed)
			t.AddRow(g, m.Name,
				exporter.FormatFloat(r.Mean),
				exporter.FormatFloat(r.Low),
				exporter.FormatFloat(r.High),
				exporter.FormatInt(r.N))
		}
	}
	return t
}
