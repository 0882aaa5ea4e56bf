package schema

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
)

func TestResolveAliases(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		field  string
		col    int
	}{
		{"canonical", []string{"ticker", "CAR_5d", "CAR_10d"}, "CAR_5d", 1},
		{"short_alias", []string{"ticker", "CAR10", "CAR5"}, "CAR_5d", 2},
		{"lowercase", []string{"ticker", "car_5d", "car_10d"}, "CAR_5d", 1},
		{"lowercase_short", []string{"car10", "car5", "Symbol"}, "CAR_5d", 1},
		{"ticker_alias", []string{"car10", "car5", "Symbol"}, FieldTicker, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Summary(5, 10).Resolve(tt.header)
			require.NoError(t, err)
			assert.Equal(t, tt.col, m.Column(tt.field))
		})
	}
}

func TestResolvePrefersExactOverFolded(t *testing.T) {
	m, err := Panel().Resolve([]string{"date", "ticker", "AR", "ar"})
	require.NoError(t, err)
	assert.Equal(t, 3, m.Column(FieldAR))
}

func TestResolveMissingRequired(t *testing.T) {
	_, err := Panel().Resolve([]string{"date", "ticker", "car"})
	require.Error(t, err)

	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput))
	assert.Contains(t, err.Error(), `column "ar"`)
	assert.Contains(t, err.Error(), config.StageEventStudy)
}

func TestResolveOptional(t *testing.T) {
	m, err := SectorMeta().Resolve([]string{"ticker", "sector"})
	require.NoError(t, err)
	assert.False(t, m.Has(FieldExposureGroup))
	assert.Equal(t, "", m.String([]string{"A", "Energy"}, FieldExposureGroup))
}

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panel.csv")
	content := "\xEF\xBB\xBFDate,Ticker,AR\n2021-03-23,AAA.NS,0.01\n2021-03-24 00:00:00,AAA.NS,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	tbl, err := ReadCSV(path, config.StageEventStudy)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)

	m, err := tbl.Bind(Panel())
	require.NoError(t, err)

	d, err := m.Date(tbl.Rows[1], FieldDate)
	require.NoError(t, err)
	assert.Equal(t, "2021-03-24", d.Format(config.DateLayout))

	v, err := m.Float(tbl.Rows[0], FieldAR)
	require.NoError(t, err)
	assert.Equal(t, 0.01, v)

	v, err = m.Float(tbl.Rows[1], FieldAR)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "absent.csv"), config.StageDownload)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMissingInput))
	assert.True(t, strings.Contains(err.Error(), "run the download stage first"))
}

func TestParseHelpers(t *testing.T) {
	_, err := ParseFloat("abc")
	assert.Error(t, err)

	_, err = ParseDate("23/03/2021")
	assert.Error(t, err)

	m, err := (&Schema{Fields: []Field{{Name: "flag"}}}).Resolve([]string{"flag"})
	require.NoError(t, err)
	for in, want := range map[string]bool{"1": true, "0": false, "true": true, "": false, "1.0": true} {
		got, err := m.Bool([]string{in}, "flag")
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
