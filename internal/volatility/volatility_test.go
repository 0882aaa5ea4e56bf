package volatility

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shockstudy/internal/classify"
	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/eventstudy"
	"shockstudy/internal/exporter"
	"shockstudy/internal/panel"
	"shockstudy/internal/shared/testutil"
	"shockstudy/internal/stats"
)

var event = time.Date(2021, 3, 23, 0, 0, 0, 0, time.UTC)

// simulateGARCH draws n returns from a GARCH(1,1) with the given
// parameters on the percent scale
func simulateGARCH(n int, omega, alpha, beta float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	s2 := omega / (1 - alpha - beta)
	prev := 0.0
	for i := range out {
		s2 = omega + alpha*prev*prev + beta*s2
		e := math.Sqrt(s2) * rng.NormFloat64()
		out[i] = e / 100
		prev = e
	}
	return out
}

func TestFitGARCH(t *testing.T) {
	r := simulateGARCH(1500, 0.05, 0.1, 0.85, 7)

	fit, err := FitGARCH(r, DefaultMaxIterations)
	require.NoError(t, err)

	assert.Len(t, fit.Sigma, len(r))
	assert.Greater(t, fit.Omega, 0.0)
	assert.GreaterOrEqual(t, fit.Alpha, 0.0)
	assert.GreaterOrEqual(t, fit.Beta, 0.0)
	assert.Less(t, fit.Alpha+fit.Beta, 1.0)
	for _, s := range fit.Sigma {
		require.Greater(t, s, 0.0)
	}

	sd := stats.Std(r)
	assert.InDelta(t, sd, fit.MeanSigma(), 0.35*sd)
	assert.False(t, math.IsNaN(fit.LogL))
}

func TestFitGARCHErrors(t *testing.T) {
	tests := []struct {
		name    string
		returns []float64
	}{
		{"too short", []float64{0.01, -0.01}},
		{"nan", []float64{0.01, math.NaN(), 0.02, 0.01}},
		{"constant", []float64{0.01, 0.01, 0.01, 0.01, 0.01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitGARCH(tt.returns, 100)
			assert.Error(t, err)
		})
	}
}

func TestGARCHFailureIsConvergenceError(t *testing.T) {
	_, err := GARCH{}.MeanSigma([]float64{0.01, 0.01, 0.01})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConvergence))
}

func TestStdDev(t *testing.T) {
	v := []float64{0.01, -0.02, 0.03, math.NaN(), 0.0}
	s, err := StdDev{}.MeanSigma(v)
	require.NoError(t, err)
	assert.InDelta(t, stats.Std([]float64{0.01, -0.02, 0.03, 0.0}), s, 1e-15)

	_, err = StdDev{}.MeanSigma([]float64{0.01})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInsufficientData))
}

func TestSelectEstimator(t *testing.T) {
	tests := []struct {
		name    string
		want    []string
		wantErr bool
	}{
		{name: ModelStdDev, want: []string{ModelStdDev}},
		{name: ModelGARCH, want: []string{ModelGARCH}},
		{name: ModelAuto, want: []string{ModelGARCH, ModelStdDev}},
		{name: "", want: []string{ModelGARCH, ModelStdDev}},
		{name: "egarch", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := SelectEstimator(tt.name, slog.Default())
			if tt.wantErr {
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, tt.want, est.Name())
		})
	}
}

func TestSplit(t *testing.T) {
	rows := []eventstudy.PanelRow{
		{Date: event, Ticker: "B", AR: 0.3},
		{Date: event.AddDate(0, 0, -1), Ticker: "B", AR: 0.2},
		{Date: event.AddDate(0, 0, -2), Ticker: "B", AR: 0.1},
		{Date: event.AddDate(0, 0, 1), Ticker: "B", AR: math.NaN()},
		{Date: event.AddDate(0, 0, 1), Ticker: "A", AR: 0.5},
	}
	got := Split(rows, event)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Ticker)
	assert.Empty(t, got[0].Pre)
	assert.Equal(t, []float64{0.5}, got[0].Post)
	assert.Equal(t, []float64{0.1, 0.2}, got[1].Pre)
	assert.Equal(t, []float64{0.3}, got[1].Post)
}

// flakyEstimator doubles the standard deviation and fails with a
// convergence error when the segment starts with fail
type flakyEstimator struct {
	fail float64
}

func (flakyEstimator) Name() string { return "flaky" }

func (f flakyEstimator) MeanSigma(r []float64) (float64, error) {
	if len(r) > 0 && r[0] == f.fail {
		return math.NaN(), apperrors.NewConvergenceError("flaky", errors.New("no progress"))
	}
	return 2 * stats.Std(r), nil
}

func contrastPanel() ([]eventstudy.PanelRow, map[string]classify.Label) {
	var rows []eventstudy.PanelRow
	add := func(ticker string, pre, post []float64) {
		for i, v := range pre {
			rows = append(rows, eventstudy.PanelRow{Date: event.AddDate(0, 0, i-len(pre)), Ticker: ticker, AR: v})
		}
		for i, v := range post {
			rows = append(rows, eventstudy.PanelRow{Date: event.AddDate(0, 0, i), Ticker: ticker, AR: v})
		}
	}
	add("AAA", []float64{0.01, -0.01, 0.02, -0.02, 0.01}, []float64{0.03, -0.03, 0.04, -0.04, 0.02, -0.02})
	add("BBB", []float64{0.01, -0.01}, []float64{0.03, -0.03, 0.04, -0.04, 0.02})
	add("CCC", []float64{0.99, -0.01, 0.02, -0.02, 0.01}, []float64{0.01, -0.01, 0.01, -0.01, 0.0})

	labels := map[string]classify.Label{
		"AAA": {Ticker: "AAA", Sector: "Energy", Group: config.GroupTreated, HighExposure: true},
		"BBB": {Ticker: "BBB", Sector: "Pharma", Group: config.GroupDefensive},
		"CCC": {Ticker: "CCC", Sector: "Pharma", Group: config.GroupDefensive},
	}
	return rows, labels
}

func TestContrastRun(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	rows, labels := contrastPanel()

	c := NewContrast(flakyEstimator{fail: 0.99}, DefaultMinObs, logger)
	c.SetWorkers(2)
	res, err := c.Run(context.Background(), rows, labels, event)
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	a, cc := res.Rows[0], res.Rows[1]
	assert.Equal(t, "AAA", a.Ticker)
	assert.Equal(t, "CCC", cc.Ticker)

	pre := []float64{0.01, -0.01, 0.02, -0.02, 0.01}
	post := []float64{0.03, -0.03, 0.04, -0.04, 0.02, -0.02}
	assert.InDelta(t, 2*stats.Std(pre), a.PreSigma, 1e-15)
	assert.InDelta(t, 2*stats.Std(post), a.PostSigma, 1e-15)
	assert.InDelta(t, a.PostSigma-a.PreSigma, a.DeltaSigma, 1e-15)
	assert.False(t, a.Degraded)
	assert.True(t, a.Treated())
	assert.Equal(t, 5, a.NPre)
	assert.Equal(t, 6, a.NPost)
	assert.Equal(t, "flaky", a.Estimator)

	// CCC's pre segment fails and falls back; its post segment does not
	assert.True(t, cc.Degraded)
	assert.InDelta(t, stats.Std([]float64{0.99, -0.01, 0.02, -0.02, 0.01}), cc.PreSigma, 1e-15)
	assert.InDelta(t, 2*stats.Std([]float64{0.01, -0.01, 0.01, -0.01, 0.0}), cc.PostSigma, 1e-15)

	assert.Equal(t, []string{"BBB"}, res.Skips.Entities(apperrors.ErrTypeInsufficientData))
	assert.Equal(t, []string{"CCC"}, res.Skips.Entities(apperrors.ErrTypeConvergence))
	testutil.AssertLogContains(t, handler, slog.LevelInfo, "volatility contrast completed")
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "batch completed with skips")
}

func TestContrastNoQualifyingTicker(t *testing.T) {
	rows, labels := contrastPanel()
	c := NewContrast(StdDev{}, 10, slog.Default())
	_, err := c.Run(context.Background(), rows, labels, event)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInsufficientData))
}

func TestContrastCancelled(t *testing.T) {
	rows, labels := contrastPanel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewContrast(StdDev{}, DefaultMinObs, slog.Default()).Run(ctx, rows, labels, event)
	assert.ErrorIs(t, err, context.Canceled)
}

func sampleRows() []Row {
	return []Row{
		{Ticker: "A", Sector: "Energy", Group: config.GroupTreated, DeltaSigma: 0.5},
		{Ticker: "B", Sector: "Energy", Group: config.GroupTreated, DeltaSigma: 0.25},
		{Ticker: "C", Sector: "Metals", Group: config.GroupTreated, DeltaSigma: 0.75},
		{Ticker: "D", Sector: "Pharma", Group: config.GroupDefensive, DeltaSigma: -0.25},
		{Ticker: "E", Sector: "Pharma", Group: config.GroupDefensive, DeltaSigma: 0.25},
		{Ticker: "F", Sector: "Banks", Group: config.GroupOther, DeltaSigma: 0},
	}
}

func TestBySector(t *testing.T) {
	got := BySector(sampleRows())
	require.Len(t, got, 4)
	assert.Equal(t, SectorStat{Sector: "Metals", Mean: 0.75, Median: 0.75, Count: 1}, got[0])
	assert.Equal(t, SectorStat{Sector: "Energy", Mean: 0.375, Median: 0.375, Count: 2}, got[1])
	assert.Equal(t, "Banks", got[2].Sector)
	assert.Equal(t, SectorStat{Sector: "Pharma", Mean: 0, Median: 0, Count: 2}, got[3])
}

func TestGroupsTable(t *testing.T) {
	tbl := GroupsTable(sampleRows())
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, []string{config.GroupTreated, "0.5", "0.5", "3", "", ""}, tbl.Rows[0])
	assert.Equal(t, []string{config.GroupDefensive, "0", "0", "2", "", ""}, tbl.Rows[1])
	assert.Equal(t, "Diff(T-D)", tbl.Rows[2][0])
	assert.Equal(t, "0.5", tbl.Rows[2][1])
	assert.NotEmpty(t, tbl.Rows[2][4])
	assert.NotEmpty(t, tbl.Rows[2][5])

	// a group of one gives no test
	tbl = GroupsTable(sampleRows()[:4])
	assert.Equal(t, "", tbl.Rows[2][4])
}

func TestSummaryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.csv")
	res := &Result{Estimator: ModelStdDev, Rows: []Row{
		{Ticker: "A", Sector: "Energy", Group: config.GroupTreated, PreSigma: 0.01, PostSigma: 0.03, DeltaSigma: 0.02, Estimator: ModelStdDev, NPre: 5, NPost: 6},
		{Ticker: "B", Sector: "Pharma", Group: config.GroupDefensive, PreSigma: 0.02, PostSigma: 0.01, DeltaSigma: -0.01, Estimator: ModelStdDev, Degraded: true},
	}}
	tbl := SummaryTable(res)
	assert.Equal(t, "1", tbl.Rows[0][7])
	assert.Equal(t, "1", tbl.Rows[1][10])
	require.NoError(t, exporter.NewCSVWriter(slog.Default()).WriteTable(path, tbl))

	got, err := LoadSummary(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, SummaryRecord{Ticker: "A", Sector: "Energy", PreSigma: 0.01, PostSigma: 0.03, DeltaSigma: 0.02, Estimator: ModelStdDev}, got[0])
	assert.Equal(t, -0.01, got[1].DeltaSigma)
}

func TestLoadSummaryNormalisation(t *testing.T) {
	tests := []struct {
		name    string
		header  []string
		row     []string
		want    float64
		wantErr apperrors.ErrorType
	}{
		{name: "d_sigma alias", header: []string{"ticker", "sector", "d_sigma"}, row: []string{"A", "Energy", "0.5"}, want: 0.5},
		{name: "levels only", header: []string{"ticker", "sigma_pre", "post_mean_sigma"}, row: []string{"A", "0.25", "1"}, want: 0.75},
		{name: "no volatility columns", header: []string{"ticker", "sector"}, row: []string{"A", "Energy"}, wantErr: apperrors.ErrTypeMissingInput},
		{name: "no ticker", header: []string{"sector", "d_sigma"}, row: []string{"Energy", "0.5"}, wantErr: apperrors.ErrTypeMissingInput},
		{name: "bad number", header: []string{"ticker", "d_sigma"}, row: []string{"A", "abc"}, wantErr: apperrors.ErrTypeParsing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vol.csv")
			require.NoError(t, testutil.WriteCSVFile(path, tt.header, [][]string{tt.row}))
			got, err := LoadSummary(path)
			if tt.wantErr != "" {
				assert.True(t, apperrors.IsType(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.InDelta(t, tt.want, got[0].DeltaSigma, 1e-15)
		})
	}

	_, err := LoadSummary(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput))
}

func testClassifier() *classify.Classifier {
	u := &config.Universe{
		MarketTicker:     "^MKT",
		TreatedSectors:   []string{"Metals"},
		DefensiveSectors: []string{"FMCG"},
		SectorMap:        map[string]string{"Z": "Energy"},
		VolGroupSectors: config.GroupSectors{
			Treated:   []string{"Energy", "Metals"},
			Defensive: []string{"Pharma", "FMCG"},
		},
	}
	return classify.New(u, nil).WithGroups(u.VolGroups())
}

func TestCompareGroups(t *testing.T) {
	records := []SummaryRecord{
		{Ticker: "A", Sector: "Energy", DeltaSigma: 0.5},
		{Ticker: "B", Sector: "Metals", DeltaSigma: 0.25},
		{Ticker: "C", Sector: "Pharma", DeltaSigma: -0.25},
		{Ticker: "D", Sector: "FMCG", DeltaSigma: 0},
		{Ticker: "E", Sector: "Banks", DeltaSigma: 9},
		{Ticker: "Z", DeltaSigma: 0.75},
	}
	c := testClassifier()
	FillSectors(records, c)
	assert.Equal(t, "Energy", records[5].Sector)

	g, err := CompareGroups(records, c, 500, stats.DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25, 0.75}, g.Treated)
	assert.Equal(t, []float64{-0.25, 0}, g.Defensive)
	assert.InDelta(t, 0.5, g.Welch.MeanA, 1e-15)

	summary := g.SummaryTable()
	require.Len(t, summary.Rows, 2)
	assert.Equal(t, []string{config.GroupDefensive, "-0.125", exporter.FormatFloat(stats.Std(g.Defensive)), "2"}, summary.Rows[0])
	assert.Equal(t, config.GroupTreated, summary.Rows[1][0])

	tests := g.TestsTable()
	require.Len(t, tests.Rows, 3)
	assert.Equal(t, "3", tests.Rows[0][4])
	assert.Equal(t, "0.625", tests.Rows[2][1])

	again, err := CompareGroups(records, c, 500, stats.DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, g.Bootstrap, again.Bootstrap)

	_, err = CompareGroups([]SummaryRecord{{Ticker: "E", Sector: "Banks"}}, c, 10, 1)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInsufficientData))
}

func macroPrices(t *testing.T) *panel.Prices {
	t.Helper()
	dates := make([]time.Time, 10)
	for i := range dates {
		dates[i] = event.AddDate(0, 0, i-5)
	}
	p := panel.NewPrices(dates, []string{"BZ=F", "^VIX", "INR=X"})
	for i := range dates {
		p.Set(i, "BZ=F", float64(i+1))
		p.Set(i, "^VIX", 20)
		p.Set(i, "INR=X", 80)
	}
	p.Set(6, "INR=X", 88)
	return p
}

var symbols = config.MacroSymbols{Brent: "BZ=F", VIX: "^VIX", INR: "INR=X"}

func TestComputeMacroShocks(t *testing.T) {
	m, err := ComputeMacroShocks(macroPrices(t), symbols, event, 3, 2)
	require.NoError(t, err)

	// pre rows 2..4 (3,4,5), post rows 5..6 (6,7)
	assert.InDelta(t, 4.0, m.Brent.PreMean, 1e-12)
	assert.InDelta(t, 6.5, m.Brent.PostMean, 1e-12)
	assert.InDelta(t, 0.625, m.Brent.Change, 1e-12)
	assert.Equal(t, 0.0, m.VIX.Change)
	assert.InDelta(t, 0.05, m.INR.Change, 1e-12)

	tbl := ShocksTable(m)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, []string{"brent", "BZ=F", "4", "6.5", "0.625", "3", "2"}, tbl.Rows[0])
}

func TestComputeMacroShocksErrors(t *testing.T) {
	p := macroPrices(t)

	_, err := ComputeMacroShocks(p, symbols, event.AddDate(0, 0, -30), 5, 5)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput), "empty pre window")

	_, err = ComputeMacroShocks(p, symbols, event.AddDate(0, 0, 30), 5, 5)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput), "empty post window")

	_, err = ComputeMacroShocks(p, config.MacroSymbols{Brent: "BZ=F", VIX: "^VIX", INR: "EUR=X"}, event, 5, 5)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput), "missing column")

	for i := range p.Dates {
		p.Set(i, "^VIX", math.NaN())
	}
	_, err = ComputeMacroShocks(p, symbols, event, 5, 5)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput), "all NaN series")
}

func TestFitLinkages(t *testing.T) {
	shocks := MacroShocks{
		Brent: Shock{Change: 0.2},
		VIX:   Shock{Change: 0.5},
		INR:   Shock{Change: 0.1},
	}
	// delta = 0.01 + 0.02·Treated + 0.5·Energy·dBrent + 0.3·Risk·dVIX + 0.1·FX·dINR
	truth := func(e classify.Exposure) float64 {
		return 0.01 + 0.02*flag(e.Treated) + 0.5*flag(e.Energy)*0.2 + 0.3*flag(e.Risk)*0.5 + 0.1*flag(e.FX)*0.1
	}
	var records []SummaryRecord
	for i, sector := range []string{"Pharma", "Metals", "Energy", "Banks", "IT", "Pharma", "Metals", "Energy", "Banks", "IT"} {
		records = append(records, SummaryRecord{
			Ticker:     string(rune('A' + i)),
			Sector:     sector,
			DeltaSigma: truth(classify.MacroExposure(sector)),
		})
	}
	records = append(records, SummaryRecord{Ticker: "N", Sector: "IT", DeltaSigma: math.NaN()})

	logger, handler := testutil.NewTestLogger(t)
	l, err := FitLinkages(context.Background(), logger, records, shocks)
	require.NoError(t, err)
	assert.Equal(t, 10, l.N)
	assert.Empty(t, l.Dropped)

	want := map[string]float64{TermConst: 0.01, TermTreat: 0.02, TermEnergy: 0.5, TermRisk: 0.3, TermFX: 0.1}
	require.Len(t, l.Terms, 5)
	for _, term := range l.Terms {
		assert.InDelta(t, want[term.Name], term.Coef, 1e-9, term.Name)
	}
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "volatility rows without delta sigma left out")

	tbl := l.Table()
	assert.Equal(t, []string{"term", "coef", "std_err", "t", "pval"}, tbl.Headers)
	assert.Equal(t, TermConst, tbl.Rows[0][0])
}

func TestFitLinkagesUnidentifiedExposure(t *testing.T) {
	shocks := MacroShocks{Brent: Shock{Change: 0.2}, VIX: Shock{Change: 0.5}, INR: Shock{Change: 0.1}}
	records := []SummaryRecord{
		{Ticker: "A", Sector: "Pharma", DeltaSigma: 0.01},
		{Ticker: "B", Sector: "Pharma", DeltaSigma: 0.02},
		{Ticker: "C", Sector: "Metals", DeltaSigma: 0.05},
		{Ticker: "D", Sector: "Metals", DeltaSigma: 0.04},
		{Ticker: "E", Sector: "Energy", DeltaSigma: 0.09},
		{Ticker: "F", Sector: "Energy", DeltaSigma: 0.08},
	}
	l, err := FitLinkages(context.Background(), slog.Default(), records, shocks)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{TermRisk, TermFX}, l.Dropped)

	fx, ok := stats.FindTerm(l.Terms, TermFX)
	require.True(t, ok)
	assert.True(t, math.IsNaN(fx.Coef))
	assert.Equal(t, "", l.Table().Rows[4][1])

	_, err = FitLinkages(context.Background(), slog.Default(), records[:1], shocks)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInsufficientData))
}
