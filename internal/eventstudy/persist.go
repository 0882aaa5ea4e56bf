package eventstudy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/schema"
)

// PanelHeaders is the column layout of the AR/CAR panel
var PanelHeaders = []string{schema.FieldDate, schema.FieldTicker, schema.FieldAR, schema.FieldCAR}

// SavePanel streams the long AR/CAR panel to path, one row per ticker-day
func SavePanel(w *exporter.CSVWriter, path string, res *Result) error {
	sw, err := w.CreateStreamWriter(path, PanelHeaders)
	if err != nil {
		return apperrors.NewStorageError("create event panel", err)
	}
	for _, s := range res.Securities {
		for _, o := range s.Series {
			rec := []string{
				exporter.FormatDate(o.Date),
				s.Ticker,
				exporter.FormatFloat(o.AR),
				exporter.FormatFloat(o.CAR),
			}
			if err := sw.WriteRecord(rec); err != nil {
				sw.Close()
				return apperrors.NewStorageError(fmt.Sprintf("write event panel row for %s", s.Ticker), err)
			}
		}
	}
	if err := sw.Close(); err != nil {
		return apperrors.NewStorageError("close event panel", err)
	}
	return nil
}

// SummaryTable lists alpha, beta and both CAR horizons per ticker, sorted
// by the second horizon descending with NaN last.
func SummaryTable(res *Result) *exporter.Table {
	secs := append([]Security(nil), res.Securities...)
	sort.SliceStable(secs, func(i, j int) bool {
		return descNaNLast(secs[i].CARK2, secs[j].CARK2)
	})

	t := &exporter.Table{
		Name: config.TableEventSummary,
		Headers: []string{
			schema.FieldTicker, schema.FieldAlpha, schema.FieldBeta,
			schema.CARColumn(res.Params.CARK1), schema.CARColumn(res.Params.CARK2),
		},
	}
	for _, s := range secs {
		t.AddRow(s.Ticker,
			exporter.FormatFloat(s.Model.Alpha),
			exporter.FormatFloat(s.Model.Beta),
			exporter.FormatFloat(s.CARK1),
			exporter.FormatFloat(s.CARK2))
	}
	return t
}

// MeanARTable is the cross-sectional mean AR per event-window date
func MeanARTable(res *Result) *exporter.Table {
	sums := map[time.Time]float64{}
	counts := map[time.Time]int{}
	for _, s := range res.Securities {
		for _, o := range s.Series {
			sums[o.Date] += o.AR
			counts[o.Date]++
		}
	}
	dates := make([]time.Time, 0, len(sums))
	for d := range sums {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	t := &exporter.Table{Name: config.TableMeanAR, Headers: []string{schema.FieldDate, "mean_ar", "n"}}
	for _, d := range dates {
		t.AddRow(exporter.FormatDate(d),
			exporter.FormatFloat(sums[d]/float64(counts[d])),
			exporter.FormatInt(counts[d]))
	}
	return t
}

func descNaNLast(a, b float64) bool {
	switch {
	case math.IsNaN(a):
		return false
	case math.IsNaN(b):
		return true
	}
	return a > b
}

// PanelRow is one row of a persisted AR/CAR panel
type PanelRow struct {
	Date   time.Time
	Ticker string
	AR     float64
	CAR    float64
}

// LoadPanel reads an AR/CAR panel. Rows with an unparsable AR are kept as NaN.
func LoadPanel(path string) ([]PanelRow, error) {
	t, err := schema.ReadCSV(path, config.StageEventStudy)
	if err != nil {
		return nil, err
	}
	m, err := t.Bind(schema.Panel())
	if err != nil {
		return nil, err
	}

	rows := make([]PanelRow, 0, len(t.Rows))
	for i, rec := range t.Rows {
		d, err := m.Date(rec, schema.FieldDate)
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s row %d", path, i+2), err)
		}
		row := PanelRow{Date: d, Ticker: m.String(rec, schema.FieldTicker), CAR: math.NaN()}
		if row.AR, err = m.Float(rec, schema.FieldAR); err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s row %d", path, i+2), err)
		}
		if m.Has(schema.FieldCAR) {
			if row.CAR, err = m.Float(rec, schema.FieldCAR); err != nil {
				return nil, apperrors.NewParsingError(fmt.Sprintf("%s row %d", path, i+2), err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SummaryRow is one row of a persisted event-study summary
type SummaryRow struct {
	Ticker string
	Alpha  float64
	Beta   float64
	CARK1  float64
	CARK2  float64
}

// LoadSummary reads an event-study summary with CAR horizons k1 and k2
func LoadSummary(path string, k1, k2 int) ([]SummaryRow, error) {
	t, err := schema.ReadCSV(path, config.StageEventStudy)
	if err != nil {
		return nil, err
	}
	m, err := t.Bind(schema.Summary(k1, k2))
	if err != nil {
		return nil, err
	}

	c1, c2 := schema.CARColumn(k1), schema.CARColumn(k2)
	rows := make([]SummaryRow, 0, len(t.Rows))
	for i, rec := range t.Rows {
		row := SummaryRow{Ticker: m.String(rec, schema.FieldTicker), Alpha: math.NaN(), Beta: math.NaN()}
		var errs [4]error
		if m.Has(schema.FieldAlpha) {
			row.Alpha, errs[0] = m.Float(rec, schema.FieldAlpha)
		}
		if m.Has(schema.FieldBeta) {
			row.Beta, errs[1] = m.Float(rec, schema.FieldBeta)
		}
		row.CARK1, errs[2] = m.Float(rec, c1)
		row.CARK2, errs[3] = m.Float(rec, c2)
		for _, err := range errs {
			if err != nil {
				return nil, apperrors.NewParsingError(fmt.Sprintf("%s row %d", path, i+2), err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
