package eventstudy

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/panel"
	"shockstudy/internal/shared/testutil"
	"shockstudy/internal/stats"
)

func date(m time.Month, d int) time.Time {
	return time.Date(2021, m, d, 0, 0, 0, 0, time.UTC)
}

func syntheticReturns(t *testing.T, params testutil.SyntheticParams) (*panel.Returns, *testutil.SyntheticMarket) {
	t.Helper()
	m := testutil.NewSyntheticMarket(params)
	p := panel.NewPrices(m.Dates, m.Order)
	for _, c := range m.Order {
		for i, v := range m.Prices[c] {
			p.Set(i, c, v)
		}
	}
	r, err := panel.LogReturns(p, params.Market)
	require.NoError(t, err)
	return r, m
}

func TestAlignEventDate(t *testing.T) {
	cal := []time.Time{date(3, 1), date(3, 2), date(3, 4), date(3, 5)}

	tests := []struct {
		name       string
		event      time.Time
		wantIndex  int
		degenerate bool
	}{
		{"exact trading day", date(3, 2), 1, false},
		{"holiday rolls forward", date(3, 3), 2, false},
		{"before calendar", date(2, 1), 0, false},
		{"after calendar", date(3, 9), 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := AlignEventDate(cal, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIndex, a.Index)
			assert.Equal(t, cal[tt.wantIndex], a.Date)
			assert.Equal(t, tt.degenerate, a.Degenerate)
		})
	}

	_, err := AlignEventDate(nil, date(3, 1))
	assert.Error(t, err)
}

func TestComputeWindowsClipsToCalendar(t *testing.T) {
	cal := make([]time.Time, 30)
	for i := range cal {
		cal[i] = date(1, 1).AddDate(0, 0, i)
	}
	p := Params{PreDays: 10, PostDays: 20, GapDays: 3, LeadDays: 5, CARK1: 1, CARK2: 50, CAROrigin: OriginWindow}

	w, err := ComputeWindows(cal, cal[8], p)
	require.NoError(t, err)
	assert.Equal(t, 0, w.EstStart)
	assert.Equal(t, 5, w.EstEnd)
	assert.Equal(t, 3, w.EvStart)
	assert.Equal(t, 28, w.EvEnd)
	assert.Equal(t, cal[29], w.HorizonDate(cal, p.CARK2))

	w, err = ComputeWindows(cal, cal[1], p)
	require.NoError(t, err)
	assert.Equal(t, 0, w.EstStart)
	assert.Equal(t, 0, w.EstEnd, "estimation window empty near the start")
	assert.Equal(t, 0, w.EvStart)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.CAROrigin = "midpoint"
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.PreDays = 0
	assert.Error(t, p.Validate())
}

func TestFit(t *testing.T) {
	x := []float64{-0.02, -0.01, 0, 0.01, 0.03, math.NaN()}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 0.001 + 1.5*v
	}
	y[len(y)-1] = 0.5

	m, err := Fit(y, x)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, m.Alpha, 1e-12)
	assert.InDelta(t, 1.5, m.Beta, 1e-12)
	assert.Equal(t, 5, m.N)
	assert.Equal(t, 2, m.Rank)

	_, err = Fit([]float64{math.NaN()}, []float64{0.1})
	assert.ErrorIs(t, err, stats.ErrEmptySample)

	_, err = Fit([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestFitConstantMarket(t *testing.T) {
	m, err := Fit([]float64{0.01, 0.03}, []float64{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.02, m.Alpha, 1e-12)
	assert.InDelta(t, 0, m.Beta, 1e-12)
	assert.Equal(t, 1, m.Rank)
}

func TestAbnormalReturns(t *testing.T) {
	m := MarketModel{Alpha: 0.001, Beta: 1}
	dates := []time.Time{date(3, 1), date(3, 2), date(3, 3), date(3, 4)}
	ticker := []float64{0.011, math.NaN(), -0.019, 0.001}
	market := []float64{0.01, 0.02, -0.01, 0}

	obs := AbnormalReturns(m, dates, ticker, market, OriginWindow, date(3, 3))
	require.Len(t, obs, 3)
	assert.InDelta(t, 0, obs[0].AR, 1e-12)
	assert.Equal(t, obs[0].AR, obs[0].CAR)
	assert.InDelta(t, -0.01, obs[1].AR, 1e-12)

	var sum float64
	for _, o := range obs {
		sum += o.AR
		assert.InDelta(t, sum, o.CAR, 1e-15)
	}

	reset := AbnormalReturns(m, dates, ticker, market, OriginEvent, date(3, 3))
	require.Len(t, reset, 3)
	assert.Equal(t, reset[1].AR, reset[1].CAR, "accumulation restarts on the event date")
}

func TestCARAt(t *testing.T) {
	obs := []Observation{
		{Date: date(3, 2), AR: 0.1, CAR: 0.1},
		{Date: date(3, 4), AR: 0.2, CAR: 0.3},
	}
	assert.True(t, math.IsNaN(CARAt(obs, date(3, 1))))
	assert.Equal(t, 0.1, CARAt(obs, date(3, 3)))
	assert.Equal(t, 0.3, CARAt(obs, date(3, 9)))
	assert.True(t, math.IsNaN(CARAt(nil, date(3, 9))))
}

func TestEngineSyntheticShock(t *testing.T) {
	params := testutil.DefaultSyntheticParams()
	r, m := syntheticReturns(t, params)

	logger, _ := testutil.NewTestLogger(t)
	res, err := NewEngine(DefaultParams(), logger).Run(context.Background(), r, params.Market, params.Tickers, m.EventDate())
	require.NoError(t, err)
	require.Len(t, res.Securities, 3)
	assert.Equal(t, m.EventDate(), res.Windows.Event.Date)
	assert.False(t, res.Windows.Event.Degenerate)

	byTicker := map[string]Security{}
	for _, s := range res.Securities {
		byTicker[s.Ticker] = s
		assert.InDelta(t, 1, s.Model.Beta, 0.15, s.Ticker)
		assert.InDelta(t, 0, s.Model.Alpha, 0.002, s.Ticker)
		assert.Len(t, s.Series, 26, s.Ticker)
		assert.Equal(t, s.Series[0].AR, s.Series[0].CAR)
	}

	assert.InDelta(t, 0, byTicker["CCC"].CARK2, 0.05)
	assert.Less(t, byTicker["AAA"].CARK2, -0.05)
	assert.Less(t, byTicker["BBB"].CARK2, -0.05)
	assert.Less(t, byTicker["AAA"].CARK1, -0.05)
}

func TestEngineDeterministic(t *testing.T) {
	params := testutil.DefaultSyntheticParams()
	r, m := syntheticReturns(t, params)

	e := NewEngine(DefaultParams(), slog.Default())
	e.SetConfiguration(1, time.Minute)
	a, err := e.Run(context.Background(), r, params.Market, params.Tickers, m.EventDate())
	require.NoError(t, err)

	e.SetConfiguration(8, time.Minute)
	b, err := e.Run(context.Background(), r, params.Market, params.Tickers, m.EventDate())
	require.NoError(t, err)

	require.Len(t, b.Securities, len(a.Securities))
	for i := range a.Securities {
		assert.Equal(t, a.Securities[i].Ticker, b.Securities[i].Ticker)
		assert.Equal(t, a.Securities[i].Model.Alpha, b.Securities[i].Model.Alpha)
		assert.Equal(t, a.Securities[i].Model.Beta, b.Securities[i].Model.Beta)
	}
}

func TestEngineSkipsTickerWithoutEstimationData(t *testing.T) {
	params := testutil.DefaultSyntheticParams()
	m := testutil.NewSyntheticMarket(params)
	order := append(append([]string(nil), m.Order...), "NEW")
	p := panel.NewPrices(m.Dates, order)
	for _, c := range m.Order {
		for i, v := range m.Prices[c] {
			p.Set(i, c, v)
		}
	}
	// listed after the estimation window closes
	for i := 140; i < params.Days; i++ {
		p.Set(i, "NEW", 50)
	}
	r, err := panel.LogReturns(p, params.Market)
	require.NoError(t, err)

	logger, handler := testutil.NewTestLogger(t)
	tickers := append(append([]string(nil), params.Tickers...), "NEW", "GONE")
	res, err := NewEngine(DefaultParams(), logger).Run(context.Background(), r, params.Market, tickers, m.EventDate())
	require.NoError(t, err)

	assert.Len(t, res.Securities, 3)
	assert.Equal(t, []string{"GONE", "NEW"}, res.Skips.Entities(apperrors.ErrTypeInsufficientData))
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "entity skipped")
}

func TestEngineAllSkippedFails(t *testing.T) {
	params := testutil.DefaultSyntheticParams()
	r, m := syntheticReturns(t, params)

	_, err := NewEngine(DefaultParams(), slog.Default()).Run(context.Background(), r, params.Market, []string{"NOPE"}, m.EventDate())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInsufficientData))

	_, err = NewEngine(DefaultParams(), slog.Default()).Run(context.Background(), r, "^NONE", params.Tickers, m.EventDate())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput))
}

func TestEngineCancelled(t *testing.T) {
	params := testutil.DefaultSyntheticParams()
	r, m := syntheticReturns(t, params)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(DefaultParams(), slog.Default()).Run(ctx, r, params.Market, params.Tickers, m.EventDate())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPersistRoundTrip(t *testing.T) {
	params := testutil.DefaultSyntheticParams()
	r, m := syntheticReturns(t, params)
	res, err := NewEngine(DefaultParams(), slog.Default()).Run(context.Background(), r, params.Market, params.Tickers, m.EventDate())
	require.NoError(t, err)

	dir := t.TempDir()
	w := exporter.NewCSVWriter(slog.Default())

	panelPath := filepath.Join(dir, "panel.csv")
	require.NoError(t, SavePanel(w, panelPath, res))
	rows, err := LoadPanel(panelPath)
	require.NoError(t, err)
	assert.Len(t, rows, 3*26)
	assert.Equal(t, res.Securities[0].Ticker, rows[0].Ticker)
	assert.Equal(t, res.Securities[0].Series[0].AR, rows[0].AR)

	summary := SummaryTable(res)
	assert.Equal(t, []string{"ticker", "alpha", "beta", "CAR_5d", "CAR_10d"}, summary.Headers)
	assert.Equal(t, "CCC", summary.Rows[0][0], "unaffected ticker has the highest CAR")

	summaryPath := filepath.Join(dir, "summary.csv")
	require.NoError(t, w.WriteTable(summaryPath, summary))
	loaded, err := LoadSummary(summaryPath, 5, 10)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Greater(t, loaded[0].CARK2, loaded[2].CARK2)

	meanAR := MeanARTable(res)
	assert.Len(t, meanAR.Rows, 26)
	assert.Equal(t, "3", meanAR.Rows[0][2])
}

func TestLoadSummaryAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	require.NoError(t, testutil.WriteCSVFile(path,
		[]string{"Ticker", "CAR5", "car_10"},
		[][]string{{"AAA", "-0.1", "-0.2"}, {"BBB", "", "0.05"}}))

	rows, err := LoadSummary(path, 5, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, -0.2, rows[0].CARK2)
	assert.True(t, math.IsNaN(rows[1].CARK1))
	assert.True(t, math.IsNaN(rows[0].Alpha))

	_, err = LoadSummary(filepath.Join(t.TempDir(), "missing.csv"), 5, 10)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput))
}

func TestDescNaNLast(t *testing.T) {
	assert.True(t, descNaNLast(2, 1))
	assert.True(t, descNaNLast(1, math.NaN()))
	assert.False(t, descNaNLast(math.NaN(), 1))
	assert.False(t, descNaNLast(math.NaN(), math.NaN()))
}
