// Package report aggregates stored records for dashboards and the CLI.
package report

import (
	"cmp"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"incomes/internal/core"
)

// NameTotal is the income of one name within a company.
type NameTotal struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Total float64 `json:"total"`
	Label string  `json:"label"`
}

// CompanyTotal is the income of one company, broken down by name.
type CompanyTotal struct {
	Company string      `json:"company"`
	Count   int         `json:"count"`
	Total   float64     `json:"total"`
	Label   string      `json:"label"`
	Names   []NameTotal `json:"names"`
}

type Summary struct {
	Count      int            `json:"count"`
	Total      float64        `json:"total"`
	TotalLabel string         `json:"total_label"`
	NullDates  int            `json:"null_dates"`
	First      core.Date      `json:"first"`
	Last       core.Date      `json:"last"`
	Companies  []CompanyTotal `json:"companies"`
}

// Summarize totals records overall, per company and per company/name pair.
// Sums are accumulated in decimal and rounded to cents. Companies and names
// are ordered alphabetically.
func Summarize(records []core.IncomeRecord) Summary {
	type acc struct {
		count int
		sum   decimal.Decimal
	}
	var (
		grand     decimal.Decimal
		companies = map[string]*acc{}
		names     = map[string]map[string]*acc{}
		s         = Summary{Count: len(records), Companies: []CompanyTotal{}}
	)

	for _, r := range records {
		amount := decimal.NewFromFloat(r.Total)
		grand = grand.Add(amount)

		c, ok := companies[r.Company]
		if !ok {
			c = &acc{}
			companies[r.Company] = c
			names[r.Company] = map[string]*acc{}
		}
		c.count++
		c.sum = c.sum.Add(amount)

		n, ok := names[r.Company][r.Name]
		if !ok {
			n = &acc{}
			names[r.Company][r.Name] = n
		}
		n.count++
		n.sum = n.sum.Add(amount)

		if r.Date.IsNull() {
			s.NullDates++
			continue
		}
		if s.First.IsNull() || r.Date.Before(s.First.Time) {
			s.First = r.Date
		}
		if s.Last.IsNull() || r.Date.After(s.Last.Time) {
			s.Last = r.Date
		}
	}

	s.Total = cents(grand)
	s.TotalLabel = FormatMoney(s.Total)

	for company, c := range companies {
		ct := CompanyTotal{Company: company, Count: c.count, Total: cents(c.sum)}
		ct.Label = FormatMoney(ct.Total)
		for name, n := range names[company] {
			total := cents(n.sum)
			ct.Names = append(ct.Names, NameTotal{Name: name, Count: n.count, Total: total, Label: FormatMoney(total)})
		}
		slices.SortFunc(ct.Names, func(a, b NameTotal) int { return cmp.Compare(a.Name, b.Name) })
		s.Companies = append(s.Companies, ct)
	}
	slices.SortFunc(s.Companies, func(a, b CompanyTotal) int { return cmp.Compare(a.Company, b.Company) })

	return s
}

// SortByDate returns a copy of records ordered by date, oldest first, with
// undated records last. Records on the same date keep their stored order.
func SortByDate(records []core.IncomeRecord) []core.IncomeRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b core.IncomeRecord) int {
		switch {
		case a.Date.IsNull() && b.Date.IsNull():
			return 0
		case a.Date.IsNull():
			return 1
		case b.Date.IsNull():
			return -1
		}
		return a.Date.Compare(b.Date.Time)
	})
	return out
}

// FormatMoney renders an amount as dollars with thousands separators,
// e.g. 1234.5 -> "$1,234.50" and -3 -> "-$3.00".
func FormatMoney(amount float64) string {
	if amount < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -amount)
	}
	return "$" + humanize.FormatFloat("#,###.##", amount)
}

func cents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
