package core

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Required input columns. Names are case-sensitive.
const (
	ColName    = "Name"
	ColCompany = "Company"
	ColDate    = "Date"
	ColTotal   = "Total"
)

// RequiredColumns lists every column an uploaded file must carry.
var RequiredColumns = []string{ColName, ColCompany, ColDate, ColTotal}

// DateLayout is the canonical textual form of a Date.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar date without time component. The zero value is
	// the null date, used when a source value could not be parsed.
	Date struct {
		time.Time
	}

	// IncomeRecord is the canonical unit stored and reported on.
	IncomeRecord struct {
		Name    string
		Company string
		Date    Date
		Total   float64
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// IsNull reports whether the date is the null date.
func (d Date) IsNull() bool {
	return d.IsZero()
}

// String returns the date as YYYY-MM-DD, or an empty string for the null date.
func (d Date) String() string {
	if d.IsNull() {
		return ""
	}
	return d.Format(DateLayout)
}

// Value implements driver.Valuer. The null date is stored as NULL.
func (d Date) Value() (driver.Value, error) {
	if d.IsNull() {
		return nil, nil
	}
	return d.Format(DateLayout), nil
}

// Scan implements sql.Scanner. The sqlite driver may hand back DATE
// columns either as text or as an already parsed time.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		*d = DateOf(v)
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
	return nil
}

func (d *Date) scanText(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = Date{}
		return nil
	}
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("scan date %q: %w", s, err)
	}
	*d = Date{Time: t}
	return nil
}

// MarshalJSON renders the date as "YYYY-MM-DD" or null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsNull() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

// UnmarshalJSON accepts null or a "YYYY-MM-DD" string.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = Date{}
		return nil
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if unquoted == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(DateLayout, unquoted)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	*d = Date{Time: t}
	return nil
}

// Validate checks the invariants every stored record must hold.
func (r IncomeRecord) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(r.Company) == "" {
		return ErrEmptyCompany
	}
	return nil
}

// Key returns the full-tuple identity used for deduplication.
func (r IncomeRecord) Key() string {
	return strings.Join([]string{
		r.Name,
		r.Company,
		r.Date.String(),
		formatFloat(r.Total),
	}, "\x1f")
}

func (r IncomeRecord) String() string {
	return fmt.Sprintf("(%s, %s, %s, %s)", r.Name, r.Company, r.Date, formatFloat(r.Total))
}
