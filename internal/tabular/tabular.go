// Package tabular reads and writes the row files processed by the enricher.
// The format is chosen by file extension: .xlsx and .xlsm are spreadsheets,
// anything else is CSV.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEmpty is returned for files without a header row.
var ErrEmpty = errors.New("file has no header row")

// Table is a header row plus data rows. Data rows are padded or truncated to
// the header width.
type Table struct {
	Headers []string
	Rows    [][]string
}

// IsSpreadsheet reports whether path is read and written as XLSX.
func IsSpreadsheet(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

// Read loads the table stored at path.
func Read(path string) (*Table, error) {
	if IsSpreadsheet(path) {
		return ReadXLSX(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// Write stores t at path, replacing any existing file.
func Write(path string, t *Table) error {
	if IsSpreadsheet(path) {
		return WriteXLSX(path, t)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV parses CSV input. A leading byte order mark is honoured and stripped.
// Blank rows are skipped.
func ReadCSV(r io.Reader) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	all, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromRows(all)
}

// WriteCSV writes t as UTF-8 CSV with a byte order mark so spreadsheet
// applications detect the encoding.
func WriteCSV(w io.Writer, t *Table) error {
	encoded := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(encoded)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return encoded.Close()
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fromRows(rows)
}

// WriteXLSX writes t to the first sheet of a new workbook.
func WriteXLSX(path string, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	if err := writeXLSXRow(sw, 1, t.Headers); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := writeXLSXRow(sw, i+2, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func writeXLSXRow(sw *excelize.StreamWriter, n int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	return sw.SetRow(cell, values)
}

func fromRows(all [][]string) (*Table, error) {
	var rows [][]string
	for _, r := range all {
		if !blank(r) {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}

	t := &Table{Headers: trimAll(rows[0])}
	width := len(t.Headers)
	for _, r := range rows[1:] {
		row := make([]string, width)
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
