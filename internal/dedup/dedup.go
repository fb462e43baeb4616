// Package dedup reconciles freshly normalized records against the
// canonical dataset by exact full-tuple equality.
package dedup

import "incomes/internal/core"

// Filter returns the records of batch whose (name, company, date, total)
// tuple does not appear in current. Input order is preserved. Totals are
// compared exactly, so both sides must already be rounded to cents.
func Filter(current, batch []core.IncomeRecord) []core.IncomeRecord {
	if len(current) == 0 {
		return batch
	}
	if len(batch) == 0 {
		return []core.IncomeRecord{}
	}

	seen := make(map[string]struct{}, len(current))
	for _, r := range current {
		seen[r.Key()] = struct{}{}
	}

	out := make([]core.IncomeRecord, 0, len(batch))
	for _, r := range batch {
		if _, ok := seen[r.Key()]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Unique drops repeated tuples inside a single batch, keeping the first
// occurrence.
func Unique(batch []core.IncomeRecord) []core.IncomeRecord {
	seen := make(map[string]struct{}, len(batch))
	out := make([]core.IncomeRecord, 0, len(batch))
	for _, r := range batch {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
