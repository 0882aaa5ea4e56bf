package exporter

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteTable(t *testing.T) {
	w := NewCSVWriter(nil)
	path := filepath.Join(t.TempDir(), "tables", "did_summary_2021-03-23.csv")

	tbl := &Table{Name: "did_summary", Headers: []string{"term", "coef", "std_err", "pval"}}
	tbl.AddRow("TreatedFlag:Post", FormatFloat(-0.0042), FormatFloat(0.0011), FormatFloat(math.NaN()))
	require.NoError(t, w.WriteTable(path, tbl))

	records := readCSV(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"term", "coef", "std_err", "pval"}, records[0])
	assert.Equal(t, []string{"TreatedFlag:Post", "-0.0042", "0.0011", ""}, records[1])
}

func TestWriteCSVAppend(t *testing.T) {
	w := NewCSVWriter(nil)
	path := filepath.Join(t.TempDir(), "out.csv")

	require.NoError(t, w.WriteCSV(path, WriteOptions{Headers: []string{"a"}, Records: [][]string{{"1"}}}))
	require.NoError(t, w.WriteCSV(path, WriteOptions{Headers: []string{"a"}, Records: [][]string{{"2"}}, Append: true}))

	assert.Equal(t, [][]string{{"a"}, {"1"}, {"2"}}, readCSV(t, path))
}

func TestStreamWriter(t *testing.T) {
	w := NewCSVWriter(nil)
	path := filepath.Join(t.TempDir(), "panel.csv")

	s, err := w.CreateStreamWriter(path, []string{"date", "ticker", "ar", "car"})
	require.NoError(t, err)
	require.NoError(t, s.WriteRecord([]string{"2021-03-23", "AAA", "0.01", "0.01"}))
	require.NoError(t, s.WriteRecord([]string{"2021-03-24", "AAA", "0.02", "0.03"}))
	assert.Equal(t, 2, s.Rows())
	require.NoError(t, s.Close())

	assert.Len(t, readCSV(t, path), 3)
}

func TestWriteText(t *testing.T) {
	w := NewCSVWriter(nil)
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, w.WriteText(path, []string{"Event: 2021-03-23", "n=3"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Event: 2021-03-23\nn=3", string(data))
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "0.1", FormatFloat(0.1))
	assert.Equal(t, "", FormatFloat(math.NaN()))
	assert.Equal(t, "-1.235", FormatFixed(-1.23456, 3))
	assert.Equal(t, "nan", FormatFixed(math.NaN(), 3))
	assert.Equal(t, "1", FormatFlag(true))
	assert.Equal(t, "false", FormatBool(false))
	assert.Equal(t, "2021-03-23", FormatDate(time.Date(2021, 3, 23, 0, 0, 0, 0, time.UTC)))
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "did_summary", sheetName("did_summary", used))
	assert.Equal(t, "did_summary_2", sheetName("did_summary", used))
	assert.Equal(t, "a_b", sheetName("a/b", used))

	long := strings.Repeat("x", 40)
	first := sheetName(long, used)
	second := sheetName(long, used)
	assert.Len(t, first, maxSheetName)
	assert.Len(t, second, maxSheetName)
	assert.NotEqual(t, first, second)
}

func TestWorkbookExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "report.xlsx")
	tables := []*Table{
		{Name: "event_study_summary", Headers: []string{"ticker", "CAR_5d"}, Rows: [][]string{{"AAA", "0.05"}}},
		{Name: "did_summary", Headers: []string{"term", "coef"}, Rows: [][]string{{"TreatedFlag:Post", "-0.004"}}},
	}
	require.NoError(t, NewWorkbookExporter(nil).Export(path, tables))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"event_study_summary", "did_summary"}, f.GetSheetList())
	v, err := f.GetCellValue("did_summary", "A2")
	require.NoError(t, err)
	assert.Equal(t, "TreatedFlag:Post", v)
	v, err = f.GetCellValue("event_study_summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, "0.05", v)

	assert.Error(t, NewWorkbookExporter(nil).Export(path, nil))
}
