package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.Study.PreDays)
	assert.Equal(t, 20, cfg.Study.PostDays)
	assert.Equal(t, 21, cfg.Study.GapDays)
	assert.Equal(t, 5, cfg.Study.LeadDays)
	assert.Equal(t, uint64(42), cfg.Study.BootstrapSeed)
	assert.Equal(t, 3000, cfg.Study.BootstrapCAR)
	assert.Equal(t, 2000, cfg.Study.BootstrapVol)
	assert.Equal(t, "window", cfg.Study.CAROrigin)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
study:
  pre_days: 90
  post_days: 40
  event_date: "2021-03-23"
logging:
  level: debug
`)

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 90, cfg.Study.PreDays)
		assert.Equal(t, 40, cfg.Study.PostDays)
		assert.Equal(t, 21, cfg.Study.GapDays, "unset keys keep defaults")
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("SHOCK_STUDY_PRE_DAYS", "60")
		t.Setenv("SHOCK_SERVER_READ_TIMEOUT", "3s")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 60, cfg.Study.PreDays)
		assert.Equal(t, 40, cfg.Study.PostDays)
		assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	})
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad car origin", "study:\n  car_origin: middle\n"},
		{"bad event date", "study:\n  event_date: 23/03/2021\n"},
		{"zero pre days", "study:\n  pre_days: 0\n"},
		{"one sided donut", "study:\n  drop_start: \"2021-03-25\"\n"},
		{"inverted did window", "study:\n  did_rel_min: 5\n  did_rel_max: -5\n"},
		{"bad log level", "logging:\n  level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.yaml)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestStudyConfigDates(t *testing.T) {
	s := Default().Study

	_, err := s.EventTime()
	assert.Error(t, err, "event date is required")

	s.EventDate = "2021-03-23"
	ev, err := s.EventTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 3, 23, 0, 0, 0, 0, time.UTC), ev)

	_, _, ok, err := s.Donut()
	require.NoError(t, err)
	assert.False(t, ok)

	s.DropStart, s.DropEnd = "2021-03-25", "2021-03-29"
	start, end, ok, err := s.Donut()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, start.Before(end))

	s.DropStart, s.DropEnd = "2021-03-29", "2021-03-25"
	_, _, _, err = s.Donut()
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	base := t.TempDir()
	p, err := NewPaths(base)
	require.NoError(t, err)
	require.NoError(t, p.EnsureDirectories())

	assert.DirExists(t, p.RawDir)
	assert.DirExists(t, p.TablesDir)
	assert.DirExists(t, p.ReportsDir)

	assert.Equal(t, filepath.Join(p.TablesDir, "event_study_panel_2021-03-23.csv"),
		p.TablePath(TableEventPanel, "2021-03-23"))
	assert.Equal(t, filepath.Join(p.TablesDir, "treated_vs_defensive_2021-03-23.txt"),
		p.TablePath(TableTreatedNote, "2021-03-23"))
	assert.Equal(t, filepath.Join(p.RawDir, MergedPricesFile), p.MergedPricesPath())

	assert.True(t, IsSubPath(p.ResultsDir, p.TablePath(TableDiD, "x")))
	assert.False(t, IsSubPath(p.TablesDir, filepath.Join(p.TablesDir, "..", "..", "secret")))
}

func TestDefaultUniverse(t *testing.T) {
	u, err := DefaultUniverse()
	require.NoError(t, err)

	assert.Equal(t, "^NSEI", u.MarketTicker)
	assert.Equal(t, "BZ=F", u.Macro.Brent)
	assert.Contains(t, u.HighExposureTickers, "ADANIPORTS.NS")
	assert.Contains(t, u.DefensiveSectors, "Consumer")
	assert.Equal(t, "Energy", u.SectorMap["RELIANCE.NS"])
	assert.True(t, u.NonEquityColumns()["^VIX"])
	assert.False(t, u.NonEquityColumns()["TCS.NS"])
	assert.Contains(t, u.VolGroups().Treated, "Basic Materials")
	assert.Contains(t, u.VolGroups().Defensive, "Technology")
}

func TestUniverseVolGroupsDefault(t *testing.T) {
	path := writeFile(t, t.TempDir(), "u.yaml", `
market_ticker: "^MKT"
treated_sectors: [Energy]
defensive_sectors: [Pharma]
`)
	u, err := LoadUniverse(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Energy"}, u.VolGroups().Treated)
	assert.Equal(t, []string{"Pharma"}, u.VolGroups().Defensive)
}

func TestUniverseValidation(t *testing.T) {
	path := writeFile(t, t.TempDir(), "u.yaml", `
market_ticker: "^NSEI"
treated_sectors: [Energy]
defensive_sectors: [Energy]
`)
	_, err := LoadUniverse(path)
	assert.Error(t, err)

	path = writeFile(t, t.TempDir(), "u.yaml", "treated_sectors: [Energy]\n")
	_, err = LoadUniverse(path)
	assert.Error(t, err)
}
