package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawRow is one parsed source row: column name to raw cell value. Values
// are strings for CSV input and may be float64, int, time.Time or nil for
// spreadsheet sources.
type RawRow map[string]any

// Normalizer turns raw rows into canonical records.
type Normalizer struct {
	// StrictDates rejects rows whose non-empty Date cannot be parsed
	// instead of storing them with a null date.
	StrictDates bool
}

// Normalize converts one raw row. It never mutates the row.
func (n Normalizer) Normalize(row RawRow) (IncomeRecord, error) {
	if missing := MissingColumns(keysOf(row)); len(missing) > 0 {
		return IncomeRecord{}, &SchemaError{Missing: missing, Required: RequiredColumns}
	}

	total, err := normalizeTotal(row[ColTotal])
	if err != nil {
		return IncomeRecord{}, err
	}

	date, ok := ParseDate(row[ColDate])
	if !ok && n.StrictDates && !isBlank(row[ColDate]) {
		return IncomeRecord{}, &ParseError{Column: ColDate, Value: stringify(row[ColDate])}
	}

	rec := IncomeRecord{
		Name:    strings.TrimSpace(stringify(row[ColName])),
		Company: strings.TrimSpace(stringify(row[ColCompany])),
		Date:    date,
		Total:   total,
	}
	if err := rec.Validate(); err != nil {
		col := ColName
		if err == ErrEmptyCompany {
			col = ColCompany
		}
		return IncomeRecord{}, &ParseError{Column: col, Value: "", Err: err}
	}
	return rec, nil
}

// MissingColumns returns the required columns absent from columns, in
// RequiredColumns order.
func MissingColumns(columns []string) []string {
	have := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		have[c] = struct{}{}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func normalizeTotal(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case float64:
		f, err = RoundCents(x)
	case float32:
		f, err = RoundCents(float64(x))
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		f, err = ParseTotal(x)
	case nil:
		err = errEmptyAmount
	default:
		f, err = ParseTotal(fmt.Sprint(x))
	}
	if err != nil {
		return 0, &ParseError{Column: ColTotal, Value: stringify(v), Err: err}
	}
	return f, nil
}

// stringify renders a raw value as text. Numbers print without exponent
// or trailing zeros so numeric-looking names keep their written form.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(DateLayout)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func isBlank(v any) bool {
	return strings.TrimSpace(stringify(v)) == ""
}

func keysOf(row RawRow) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	return keys
}
