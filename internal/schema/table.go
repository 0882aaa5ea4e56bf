package schema

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a CSV file held in memory
type Table struct {
	Path   string
	Header []string
	Rows   [][]string
}

// ReadCSV loads a CSV file with a header row. A missing file is a
// MissingInput error pointing at producedBy.
func ReadCSV(path, producedBy string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewMissingInputError(path, producedBy, err)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("read %s", path), err)
	}
	t, err := ParseCSV(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("parse %s", path), err)
	}
	if len(t.Header) == 0 {
		return nil, apperrors.NewMissingInputError(fmt.Sprintf("%s header", path), producedBy, nil)
	}
	t.Path = path
	return t, nil
}

// ParseCSV reads a header row followed by records
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	t := &Table{}
	if len(records) == 0 {
		return t, nil
	}
	t.Header = records[0]
	for _, rec := range records[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// Bind resolves s against the table header
func (t *Table) Bind(s *Schema) (*Mapping, error) {
	m, err := s.Resolve(t.Header)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			appErr.WithContext("path", t.Path)
		}
		return nil, err
	}
	return m, nil
}

// String returns the trimmed cell of field, or "" when the field or cell is absent
func (m *Mapping) String(row []string, field string) string {
	i := m.Column(field)
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Float parses the cell of field. Empty and NaN-like cells are NaN.
func (m *Mapping) Float(row []string, field string) (float64, error) {
	return ParseFloat(m.String(row, field))
}

// Bool parses 1/0 and true/false cells; empty is false
func (m *Mapping) Bool(row []string, field string) (bool, error) {
	s := strings.ToLower(m.String(row, field))
	switch s {
	case "", "0", "false", "no":
		return false, nil
	case "1", "true", "yes":
		return true, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, fmt.Errorf("field %s: invalid boolean %q", field, s)
	}
	return f != 0, nil
}

// Date parses the cell of field as a calendar date
func (m *Mapping) Date(row []string, field string) (time.Time, error) {
	return ParseDate(m.String(row, field))
}

// ParseFloat parses a numeric cell; "", "nan", "NA", "null" give NaN
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "n/a", "null", "none":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

var dateLayouts = []string{
	config.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
	"2006/01/02",
}

// ParseDate accepts ISO dates with or without a time part; the result is
// truncated to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
