package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"incomes/internal/core"
)

// ExportFormat names a wire format for exported records.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
	FormatJSON ExportFormat = "json"
)

// ExportSheet is the worksheet name used in xlsx exports.
const ExportSheet = "income_data"

// Export column order mirrors the table: date, total, name, company. Header
// names match the upload columns so exports can be uploaded again.
var exportHeader = []string{core.ColDate, core.ColTotal, core.ColName, core.ColCompany}

// ParseExportFormat maps a user supplied format name, defaulting to CSV.
func ParseExportFormat(s string) ExportFormat {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatXLSX:
		return FormatXLSX
	case FormatJSON:
		return FormatJSON
	default:
		return FormatCSV
	}
}

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv"
	}
}

// Encode serializes records in the given format.
func Encode(format ExportFormat, records []core.IncomeRecord) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return encodeXLSX(records)
	case FormatJSON:
		return encodeJSON(records)
	default:
		return encodeCSV(records)
	}
}

func encodeCSV(records []core.IncomeRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range records {
		row := []string{r.Date.String(), strconv.FormatFloat(r.Total, 'f', -1, 64), r.Name, r.Company}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeXLSX(records []core.IncomeRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{r.Date.String(), r.Total, r.Name, r.Company}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write xlsx row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// jsonRecord fixes the JSON shape: an array of row objects ("records"
// orientation) with lowercase keys in table column order.
type jsonRecord struct {
	Date    core.Date `json:"date"`
	Total   float64   `json:"total"`
	Name    string    `json:"name"`
	Company string    `json:"company"`
}

func encodeJSON(records []core.IncomeRecord) ([]byte, error) {
	out := make([]jsonRecord, len(records))
	for i, r := range records {
		out[i] = jsonRecord{Date: r.Date, Total: r.Total, Name: r.Name, Company: r.Company}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return b, nil
}
