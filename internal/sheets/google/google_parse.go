package google

import (
	"fmt"
	"strings"

	"incomes/internal/ingest"
)

// parseTable converts a values matrix (as returned by Sheets API) into a
// table. The API drops trailing empty cells, so rows may be shorter than
// the header; numbers arrive as float64.
func parseTable(values [][]interface{}) ingest.Table {
	if len(values) == 0 {
		return ingest.Table{}
	}
	header := toStrings(values[0])
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	t := ingest.Table{Header: header}
	for _, row := range values[1:] {
		cells := make([]any, len(row))
		copy(cells, row)
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}
