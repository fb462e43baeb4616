package storage

import (
	"strings"

	"incomes/internal/core"
)

// Filter is a structured predicate over record fields. Zero fields are
// ignored; a zero Filter matches every record. Values are always bound as
// statement parameters, never spliced into SQL text.
type Filter struct {
	Company string
	Name    string
	From    core.Date // inclusive
	To      core.Date // inclusive
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Company != "" {
		conds = append(conds, "company = ?")
		args = append(args, f.Company)
	}
	if f.Name != "" {
		conds = append(conds, "name = ?")
		args = append(args, f.Name)
	}
	if !f.From.IsNull() {
		conds = append(conds, "date >= ?")
		args = append(args, dateArg(f.From))
	}
	if !f.To.IsNull() {
		conds = append(conds, "date <= ?")
		args = append(args, dateArg(f.To))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
