package classify

import (
	"fmt"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/schema"
)

// Meta is one row of the ticker metadata file
type Meta struct {
	Ticker        string
	Sector        string
	Industry      string
	ExposureGroup string
	Source        string
}

// MetaTable is the ticker metadata keyed by ticker, first row wins
type MetaTable struct {
	order []string
	rows  map[string]Meta
	// HasExposure is set when the file carried an exposure_group column
	HasExposure bool
}

// NewMetaTable builds a table from rows
func NewMetaTable(rows []Meta) *MetaTable {
	t := &MetaTable{rows: make(map[string]Meta, len(rows))}
	for _, r := range rows {
		t.add(r)
	}
	return t
}

func (t *MetaTable) add(m Meta) {
	if _, dup := t.rows[m.Ticker]; dup || m.Ticker == "" {
		return
	}
	t.order = append(t.order, m.Ticker)
	t.rows[m.Ticker] = m
	if m.ExposureGroup != "" {
		t.HasExposure = true
	}
}

// Get returns the metadata of a ticker
func (t *MetaTable) Get(ticker string) (Meta, bool) {
	m, ok := t.rows[ticker]
	return m, ok
}

// Tickers returns tickers in file order
func (t *MetaTable) Tickers() []string {
	return append([]string(nil), t.order...)
}

// Len is the number of tickers
func (t *MetaTable) Len() int { return len(t.order) }

// LoadSectorMeta reads ticker_sectors.csv. A missing file is a
// MissingInput error naming the download stage.
func LoadSectorMeta(path string) (*MetaTable, error) {
	tbl, err := schema.ReadCSV(path, config.StageDownload)
	if err != nil {
		return nil, err
	}
	m, err := tbl.Bind(schema.SectorMeta())
	if err != nil {
		return nil, err
	}

	out := &MetaTable{rows: make(map[string]Meta, len(tbl.Rows))}
	for _, rec := range tbl.Rows {
		out.add(Meta{
			Ticker:        m.String(rec, schema.FieldTicker),
			Sector:        m.String(rec, schema.FieldSector),
			Industry:      m.String(rec, schema.FieldIndustry),
			ExposureGroup: m.String(rec, schema.FieldExposureGroup),
			Source:        m.String(rec, schema.FieldSource),
		})
	}
	out.HasExposure = m.Has(schema.FieldExposureGroup)
	return out, nil
}

// LoadOptionalSectorMeta is LoadSectorMeta that treats a missing file as
// "no metadata"
func LoadOptionalSectorMeta(path string) (*MetaTable, error) {
	if !config.FileExists(path) {
		return nil, nil
	}
	return LoadSectorMeta(path)
}

// Table renders the metadata in the ticker_sectors.csv layout
func (t *MetaTable) Table() *exporter.Table {
	out := &exporter.Table{
		Name:    "ticker_sectors",
		Headers: []string{schema.FieldTicker, schema.FieldSector, schema.FieldIndustry, schema.FieldSource},
	}
	if t.HasExposure {
		out.Headers = append(out.Headers, schema.FieldExposureGroup)
	}
	for _, tk := range t.order {
		m := t.rows[tk]
		row := []string{m.Ticker, m.Sector, m.Industry, m.Source}
		if t.HasExposure {
			row = append(row, m.ExposureGroup)
		}
		out.AddRow(row...)
	}
	return out
}

// Save writes the metadata file
func (t *MetaTable) Save(w *exporter.CSVWriter, path string) error {
	if err := w.WriteTable(path, t.Table()); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save %s", config.SectorMetaFile), err)
	}
	return nil
}
