package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"incomes/internal/core"
)

// Upload is one fully buffered uploaded file.
type Upload struct {
	Name string
	Data []byte
}

// Table is a parsed source: a header row and the data rows below it.
// Lines, when set, holds the 1-based source line of each row in Rows.
type Table struct {
	Header []string
	Rows   [][]any
	Lines  []int
}

// Supported upload formats, keyed by lowercase extension.
const (
	extCSV  = "csv"
	extXLSX = "xlsx"
)

// ReadUpload parses an upload according to its file extension.
func ReadUpload(u Upload) (Table, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(u.Name), "."))
	switch ext {
	case extCSV:
		return readCSV(u.Data)
	case extXLSX:
		return readXLSX(u.Data)
	default:
		return Table{}, &core.FormatError{File: u.Name, Extension: ext}
	}
}

func readCSV(data []byte) (Table, error) {
	// Spreadsheet tools often prepend a UTF-8 BOM, which would otherwise
	// end up glued to the first header name.
	r := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	// encoding/csv drops blank lines, so each record's line is taken from
	// the reader rather than its position.
	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("reading CSV: %w", err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}

	t := tableFromStrings(records)
	if len(lines) > 1 {
		t.Lines = lines[1:]
	}
	return t, nil
}

func readXLSX(data []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Table{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("no sheets found in xlsx file")
	}

	// Raw values keep date cells as serial numbers instead of whatever
	// display format the author picked.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	t := tableFromStrings(rows)
	if err := numericCells(f, sheets[0], t); err != nil {
		return Table{}, err
	}
	return t, nil
}

// numericCells turns number cells back into float64 so that date serials
// are told apart from text that merely looks numeric.
func numericCells(f *excelize.File, sheet string, t Table) error {
	for i, row := range t.Rows {
		for j, c := range row {
			s, ok := c.(string)
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			typ, err := f.GetCellType(sheet, cell)
			if err != nil {
				return fmt.Errorf("read sheet %s: %w", sheet, err)
			}
			if typ == excelize.CellTypeUnset || typ == excelize.CellTypeNumber {
				row[j] = v
			}
		}
	}
	return nil
}

func tableFromStrings(records [][]string) Table {
	if len(records) == 0 {
		return Table{}
	}
	t := Table{Header: make([]string, len(records[0]))}
	for i, h := range records[0] {
		t.Header[i] = strings.TrimSpace(h)
	}
	for _, rec := range records[1:] {
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// RawRows maps each data row onto the header. Cells missing at the end of
// a short row are treated as empty; blank rows are skipped. The returned
// line numbers are 1-based source rows (the header is row 1).
func (t Table) RawRows() ([]core.RawRow, []int) {
	var (
		rows  []core.RawRow
		lines []int
	)
	for i, cells := range t.Rows {
		if blankRow(cells) {
			continue
		}
		row := make(core.RawRow, len(t.Header))
		for j, col := range t.Header {
			if col == "" {
				continue
			}
			if j < len(cells) {
				row[col] = cells[j]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
		if len(t.Lines) == len(t.Rows) {
			lines = append(lines, t.Lines[i])
		} else {
			lines = append(lines, i+2)
		}
	}
	return rows, lines
}

func blankRow(cells []any) bool {
	for _, c := range cells {
		switch v := c.(type) {
		case nil:
		case string:
			if strings.TrimSpace(v) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}
