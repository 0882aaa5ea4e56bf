package volatility

import (
	"shockstudy/internal/classify"
	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/stats"
)

// FillSectors sets the sector of records that have none from the
// classifier's metadata and fallback map
func FillSectors(records []SummaryRecord, c *classify.Classifier) {
	for i := range records {
		if records[i].Sector != "" && records[i].Sector != config.UnmappedSector {
			continue
		}
		if s, ok := c.SectorOf(records[i].Ticker); ok {
			records[i].Sector = s
		}
	}
}

// GroupComparison contrasts delta sigma between the Treated and Defensive
// buckets of a volatility summary
type GroupComparison struct {
	Treated   []float64
	Defensive []float64
	Welch     stats.WelchResult
	Bootstrap map[string]stats.BootstrapResult
}

// CompareGroups buckets the records by sector with c and runs the Welch
// test and a seeded bootstrap of each group mean. Records outside both
// buckets are ignored; an empty result is an InsufficientData error.
func CompareGroups(records []SummaryRecord, c *classify.Classifier, b int, seed uint64) (*GroupComparison, error) {
	out := &GroupComparison{Bootstrap: map[string]stats.BootstrapResult{}}
	for _, r := range records {
		switch c.Group(r.Sector) {
		case config.GroupTreated:
			out.Treated = append(out.Treated, r.DeltaSigma)
		case config.GroupDefensive:
			out.Defensive = append(out.Defensive, r.DeltaSigma)
		}
	}
	if len(out.Treated) == 0 && len(out.Defensive) == 0 {
		return nil, apperrors.NewInsufficientDataError(config.TableVolGroupSummary,
			"no rows in the Treated or Defensive sectors; check the sector buckets")
	}
	out.Welch = stats.Welch(out.Treated, out.Defensive)
	out.Bootstrap[config.GroupTreated] = stats.BootstrapMean(out.Treated, b, seed)
	out.Bootstrap[config.GroupDefensive] = stats.BootstrapMean(out.Defensive, b, seed)
	return out, nil
}

func (g *GroupComparison) values(group string) []float64 {
	if group == config.GroupTreated {
		return g.Treated
	}
	return g.Defensive
}

// SummaryTable gives mean, std and count of delta sigma per group
func (g *GroupComparison) SummaryTable() *exporter.Table {
	t := &exporter.Table{
		Name:    config.TableVolGroupSummary,
		Headers: []string{"Group", "mean", "std", "count"},
	}
	for _, group := range []string{config.GroupDefensive, config.GroupTreated} {
		v := g.values(group)
		if len(v) == 0 {
			continue
		}
		d := stats.Describe(v)
		t.AddRow(group,
			exporter.FormatFloat(d.Mean),
			exporter.FormatFloat(d.Std),
			exporter.FormatInt(d.Count))
	}
	return t
}

// TestsTable holds the bootstrap interval of each group mean and the Welch
// test of the difference
func (g *GroupComparison) TestsTable() *exporter.Table {
	t := &exporter.Table{
		Name:    config.TableVolGroupTests,
		Headers: []string{"Group", "Mean", "Low_CI", "High_CI", "N", "t_stat", "df", "pval"},
	}
	for _, group := range []string{config.GroupTreated, config.GroupDefensive} {
		b := g.Bootstrap[group]
		t.AddRow(group,
			exporter.FormatFloat(b.DrawMean),
			exporter.FormatFloat(b.Low),
			exporter.FormatFloat(b.High),
			exporter.FormatInt(b.N),
			"", "", "")
	}
	t.AddRow("Diff(T-D)",
		exporter.FormatFloat(g.Welch.MeanA-g.Welch.MeanB),
		"", "", "",
		exporter.FormatFloat(g.Welch.T),
		exporter.FormatFloat(g.Welch.DF),
		exporter.FormatFloat(g.Welch.P))
	return t
}
