package classify

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/shared/testutil"
)

func testUniverse() *config.Universe {
	return &config.Universe{
		MarketTicker:        "^MKT",
		TreatedSectors:      []string{"Energy", "Metals"},
		DefensiveSectors:    []string{"Pharma", "IT"},
		HighExposureTickers: []string{"AAA"},
		HighExposureGroups:  []string{"high", "Shipping"},
		SectorMap:           map[string]string{"AAA": "Energy", "DDD": "IT"},
		VolGroupSectors: config.GroupSectors{
			Treated:   []string{"Energy", "Industrials"},
			Defensive: []string{"Pharma"},
		},
	}
}

func TestGroup(t *testing.T) {
	c := New(testUniverse(), nil)
	tests := []struct {
		sector string
		want   string
	}{
		{"Energy", config.GroupTreated},
		{"Pharma", config.GroupDefensive},
		{"Banks", config.GroupOther},
		{"", config.GroupOther},
		{"energy", config.GroupOther},
	}
	for _, tt := range tests {
		t.Run(tt.sector, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Group(tt.sector))
		})
	}

	vg := c.WithGroups(testUniverse().VolGroups())
	assert.Equal(t, config.GroupTreated, vg.Group("Industrials"))
	assert.Equal(t, config.GroupOther, vg.Group("IT"))
	assert.Equal(t, config.GroupDefensive, c.Group("IT"), "original unchanged")
}

func TestHighExposure(t *testing.T) {
	c := New(testUniverse(), nil)
	assert.True(t, c.HighExposure("AAA", ""))
	assert.False(t, c.HighExposure("BBB", ""))
	assert.True(t, c.HighExposure("BBB", "shipping"))
	assert.True(t, c.HighExposure("BBB", " HIGH "))
	assert.False(t, c.HighExposure("AAA", "none"), "recorded group wins over the ticker list")
}

func TestSectorOfSource(t *testing.T) {
	meta := NewMetaTable([]Meta{
		{Ticker: "AAA", Sector: "Metals"},
		{Ticker: "DDD", Sector: config.UnmappedSector},
		{Ticker: "EEE", Sector: "Pharma", ExposureGroup: "high"},
	})

	tests := []struct {
		name   string
		source SectorSource
		ticker string
		want   string
		ok     bool
	}{
		{name: "study map wins", source: StudyMapFirst, ticker: "AAA", want: "Energy", ok: true},
		{name: "metadata wins", source: MetadataFirst, ticker: "AAA", want: "Metals", ok: true},
		{name: "unmapped metadata falls back to the map", source: MetadataFirst, ticker: "DDD", want: "IT", ok: true},
		{name: "map miss falls back to metadata", source: StudyMapFirst, ticker: "EEE", want: "Pharma", ok: true},
		{name: "unknown everywhere", source: StudyMapFirst, ticker: "ZZZ", want: config.UnmappedSector},
		{name: "unknown everywhere with metadata first", source: MetadataFirst, ticker: "ZZZ", want: config.UnmappedSector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(testUniverse(), meta, WithSectorSource(tt.source))
			s, ok := c.SectorOf(tt.ticker)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, s)
		})
	}

	l := New(testUniverse(), meta).Label("EEE")
	assert.Equal(t, config.GroupDefensive, l.Group)
	assert.True(t, l.HighExposure)
	assert.Equal(t, StudyMapFirst, New(testUniverse(), nil).Source())
}

func TestProviderSectorsKeepStudyGroups(t *testing.T) {
	u, err := config.DefaultUniverse()
	require.NoError(t, err)
	meta := NewMetaTable([]Meta{
		{Ticker: "TATASTEEL.NS", Sector: "Basic Materials"},
		{Ticker: "MARUTI.NS", Sector: "Consumer Cyclical"},
		{Ticker: "HDFCBANK.NS", Sector: "Financial Services"},
		{Ticker: "TCS.NS", Sector: "Technology"},
	})

	c := New(u, meta)
	for _, ticker := range []string{"TATASTEEL.NS", "MARUTI.NS", "HDFCBANK.NS", "TCS.NS"} {
		l := c.Label(ticker)
		assert.Equal(t, u.SectorMap[ticker], l.Sector, ticker)
		assert.Equal(t, c.Group(u.SectorMap[ticker]), l.Group, ticker)
		assert.NotEqual(t, config.GroupOther, l.Group, ticker)
	}

	vol := New(u, meta, WithSectorSource(MetadataFirst)).WithGroups(u.VolGroups())
	steel := vol.Label("TATASTEEL.NS")
	assert.Equal(t, "Basic Materials", steel.Sector)
	assert.Equal(t, config.GroupTreated, steel.Group)
	assert.Equal(t, config.GroupDefensive, vol.Label("TCS.NS").Group)
}

func TestLabelAllReportsUnmapped(t *testing.T) {
	c := New(testUniverse(), nil)
	report := &apperrors.SkipReport{}
	labels := c.LabelAll([]string{"AAA", "ZZZ", "DDD", "ZZZ"}, report)

	require.Len(t, labels, 3)
	assert.Equal(t, config.GroupOther, labels["ZZZ"].Group)
	assert.Equal(t, config.UnmappedSector, labels["ZZZ"].Sector)
	assert.True(t, labels["AAA"].Treated())
	assert.Equal(t, []string{"ZZZ"}, report.Entities(apperrors.ErrTypeUnmapped))

	counts := Counts(labels)
	assert.Equal(t, 1, counts[config.GroupTreated])
	assert.Equal(t, 1, counts[config.GroupDefensive])
	assert.Equal(t, 1, counts[config.GroupOther])
}

func TestMacroExposure(t *testing.T) {
	tests := []struct {
		sector string
		want   Exposure
	}{
		{"Energy", Exposure{Treated: true, Energy: true}},
		{"Oil & Gas", Exposure{Treated: true, Energy: true}},
		{"Basic Materials", Exposure{Treated: true}},
		{"Financial Services", Exposure{Treated: true, Risk: true}},
		{"Banks", Exposure{Treated: true, Risk: true}},
		{"IT", Exposure{FX: true}},
		{"Technology", Exposure{FX: true}},
		{"Utilities", Exposure{}},
		{"Pharma", Exposure{}},
		{"Consumer Defensive", Exposure{}},
		{"", Exposure{}},
	}
	for _, tt := range tests {
		t.Run(tt.sector, func(t *testing.T) {
			assert.Equal(t, tt.want, MacroExposure(tt.sector))
		})
	}
}

func TestLoadSectorMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.SectorMetaFile)
	require.NoError(t, testutil.WriteCSVFile(path,
		[]string{"Ticker", "Sector", "exposure_group"},
		[][]string{{"AAA", "Energy", "high"}, {"BBB", "Pharma", ""}, {"AAA", "Metals", ""}}))

	meta, err := LoadSectorMeta(path)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Len())
	assert.True(t, meta.HasExposure)
	m, ok := meta.Get("AAA")
	require.True(t, ok)
	assert.Equal(t, "Energy", m.Sector)

	out := filepath.Join(dir, "copy.csv")
	require.NoError(t, meta.Save(exporter.NewCSVWriter(nil), out))
	again, err := LoadSectorMeta(out)
	require.NoError(t, err)
	assert.Equal(t, meta.Tickers(), again.Tickers())

	_, err = LoadSectorMeta(filepath.Join(dir, "missing.csv"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput))

	none, err := LoadOptionalSectorMeta(filepath.Join(dir, "missing.csv"))
	assert.NoError(t, err)
	assert.Nil(t, none)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, testutil.WriteCSVFile(bad, []string{"ticker", "industry"}, [][]string{{"AAA", "x"}}))
	_, err = LoadSectorMeta(bad)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput))
}
