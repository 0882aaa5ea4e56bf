package volatility

import (
	"fmt"
	"math"
	"sort"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/schema"
	"shockstudy/internal/stats"
)

// SummaryTable renders one row per ticker
func SummaryTable(res *Result) *exporter.Table {
	t := &exporter.Table{
		Name: config.TableVolSummary,
		Headers: []string{
			schema.FieldTicker, schema.FieldSector, schema.FieldExposureGroup,
			schema.FieldPreSigma, schema.FieldPostSigma, schema.FieldDeltaSigma,
			"Group", "TreatedFlag", "HighExposure",
			schema.FieldEstimator, "degraded", "n_pre", "n_post",
		},
	}
	for _, r := range res.Rows {
		t.AddRow(r.Ticker, r.Sector, r.ExposureGroup,
			exporter.FormatFloat(r.PreSigma),
			exporter.FormatFloat(r.PostSigma),
			exporter.FormatFloat(r.DeltaSigma),
			r.Group,
			exporter.FormatFlag(r.Treated()),
			exporter.FormatFlag(r.HighExposure),
			r.Estimator,
			exporter.FormatFlag(r.Degraded),
			exporter.FormatInt(r.NPre),
			exporter.FormatInt(r.NPost))
	}
	return t
}

// SectorStat is the distribution of delta sigma within a sector
type SectorStat struct {
	Sector string
	Mean   float64
	Median float64
	Count  int
}

// BySector aggregates delta sigma per sector, sorted by mean descending
func BySector(rows []Row) []SectorStat {
	values := map[string][]float64{}
	for _, r := range rows {
		values[r.Sector] = append(values[r.Sector], r.DeltaSigma)
	}
	out := make([]SectorStat, 0, len(values))
	for sector, v := range values {
		out = append(out, SectorStat{
			Sector: sector,
			Mean:   stats.Mean(v),
			Median: stats.Median(v),
			Count:  len(v),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Mean, out[j].Mean
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

// SectorTable renders BySector
func SectorTable(rows []Row) *exporter.Table {
	t := &exporter.Table{
		Name:    config.TableVolSector,
		Headers: []string{schema.FieldSector, "mean_delta", "median_delta", "count"},
	}
	for _, s := range BySector(rows) {
		t.AddRow(s.Sector, exporter.FormatFloat(s.Mean), exporter.FormatFloat(s.Median), exporter.FormatInt(s.Count))
	}
	return t
}

// Deltas splits delta sigma into the Treated and Defensive groups
func Deltas(rows []Row) (treated, defensive []float64) {
	for _, r := range rows {
		switch r.Group {
		case config.GroupTreated:
			treated = append(treated, r.DeltaSigma)
		case config.GroupDefensive:
			defensive = append(defensive, r.DeltaSigma)
		}
	}
	return treated, defensive
}

// GroupsTable compares the Treated and Defensive delta sigma. The t-test is
// only run when each group has at least two tickers.
func GroupsTable(rows []Row) *exporter.Table {
	treated, defensive := Deltas(rows)
	tstat, pval := math.NaN(), math.NaN()
	if len(treated) > 1 && len(defensive) > 1 {
		w := stats.Welch(treated, defensive)
		tstat, pval = w.T, w.P
	}

	mt, md := stats.Mean(treated), stats.Mean(defensive)
	t := &exporter.Table{
		Name:    config.TableVolGroups,
		Headers: []string{"group", "mean_delta", "median_delta", "n", "tstat_TminusD", "pval_TminusD"},
	}
	t.AddRow(config.GroupTreated, exporter.FormatFloat(mt), exporter.FormatFloat(stats.Median(treated)),
		exporter.FormatInt(len(stats.Finite(treated))), "", "")
	t.AddRow(config.GroupDefensive, exporter.FormatFloat(md), exporter.FormatFloat(stats.Median(defensive)),
		exporter.FormatInt(len(stats.Finite(defensive))), "", "")
	t.AddRow("Diff(T-D)", exporter.FormatFloat(mt-md), "", "",
		exporter.FormatFloat(tstat), exporter.FormatFloat(pval))
	return t
}

// SummaryRecord is one row of a persisted volatility summary after
// normalisation
type SummaryRecord struct {
	Ticker        string
	Sector        string
	ExposureGroup string
	PreSigma      float64
	PostSigma     float64
	DeltaSigma    float64
	Estimator     string
}

// LoadSummary reads a volatility summary. The delta column may be named
// delta_sigma or d_sigma; when it is absent it is computed from the pre and
// post levels. A file with neither is a MissingInput error.
func LoadSummary(path string) ([]SummaryRecord, error) {
	t, err := schema.ReadCSV(path, config.StageVolatility)
	if err != nil {
		return nil, err
	}
	m, err := t.Bind(schema.VolSummary())
	if err != nil {
		return nil, err
	}

	hasDelta := m.Has(schema.FieldDeltaSigma)
	hasLevels := m.Has(schema.FieldPreSigma) && m.Has(schema.FieldPostSigma)
	if !hasDelta && !hasLevels {
		return nil, apperrors.NewMissingInputError(
			fmt.Sprintf("%s column %q", config.TableVolSummary, schema.FieldDeltaSigma),
			config.StageVolatility, nil).
			WithContext("accepted", []string{"delta_sigma", "d_sigma", "pre_mean_sigma+post_mean_sigma"}).
			WithContext("path", path)
	}

	out := make([]SummaryRecord, 0, len(t.Rows))
	for i, rec := range t.Rows {
		r := SummaryRecord{
			Ticker:        m.String(rec, schema.FieldTicker),
			Sector:        m.String(rec, schema.FieldSector),
			ExposureGroup: m.String(rec, schema.FieldExposureGroup),
			Estimator:     m.String(rec, schema.FieldEstimator),
			PreSigma:      math.NaN(),
			PostSigma:     math.NaN(),
			DeltaSigma:    math.NaN(),
		}
		var errs [3]error
		if m.Has(schema.FieldPreSigma) {
			r.PreSigma, errs[0] = m.Float(rec, schema.FieldPreSigma)
		}
		if m.Has(schema.FieldPostSigma) {
			r.PostSigma, errs[1] = m.Float(rec, schema.FieldPostSigma)
		}
		if hasDelta {
			r.DeltaSigma, errs[2] = m.Float(rec, schema.FieldDeltaSigma)
		}
		for _, err := range errs {
			if err != nil {
				return nil, apperrors.NewParsingError(fmt.Sprintf("%s row %d", path, i+2), err)
			}
		}
		if math.IsNaN(r.DeltaSigma) && hasLevels {
			r.DeltaSigma = r.PostSigma - r.PreSigma
		}
		out = append(out, r)
	}
	return out, nil
}
