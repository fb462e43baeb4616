package core

import (
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	DateLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"2006/01/02",
	"02-Jan-2006",
	"2-Jan-2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

// Spreadsheet serial day numbers accepted as dates (1900-01-01 .. 9999-12-31).
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// ParseDate coerces a raw cell value into a calendar date. The boolean is
// false when the value cannot be understood as a date. Only numeric values
// are read as spreadsheet serials; numeric text such as "2024" is not.
func ParseDate(v any) (Date, bool) {
	switch x := v.(type) {
	case nil:
		return Date{}, false
	case time.Time:
		return DateOf(x), !x.IsZero()
	case Date:
		return x, !x.IsNull()
	case float64:
		return fromSerial(x)
	case int:
		return fromSerial(float64(x))
	case int64:
		return fromSerial(float64(x))
	case string:
		return parseDateText(x)
	default:
		return Date{}, false
	}
}

func parseDateText(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), true
		}
	}
	return Date{}, false
}

func fromSerial(f float64) (Date, bool) {
	if f < minExcelSerial || f > maxExcelSerial {
		return Date{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return Date{}, false
	}
	return DateOf(t), true
}
