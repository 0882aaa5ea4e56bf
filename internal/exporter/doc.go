// Package exporter writes result tables.
//
// CSVWriter writes a Table (headers plus string rows) to CSV, streams large
// tables through StreamWriter, and writes the plain-text notes some stages
// produce. WorkbookExporter gathers every table of an event date into a
// single xlsx workbook with one sheet per table.
//
// Cells are pre-formatted strings; FormatFloat writes NaN as an empty cell
// so the files read back as missing values.
package exporter
