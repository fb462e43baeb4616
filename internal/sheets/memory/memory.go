// Package memory provides an in-process spreadsheet source that stands in
// for Google Sheets when no credentials are available.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"incomes/internal/ingest"
	ports "incomes/internal/sheets"
)

var _ ports.TableReader = (*Store)(nil)

type Store struct {
	mu     sync.Mutex
	ranges map[string]ingest.Table
}

func New() *Store {
	return &Store{ranges: map[string]ingest.Table{}}
}

// Put registers the table returned for rng.
func (s *Store) Put(rng string, t ingest.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges[rng] = cloneTable(t)
}

// ReadTable returns a copy of the table stored under rng.
func (s *Store) ReadTable(_ context.Context, rng string) (ingest.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ranges[rng]
	if !ok {
		return ingest.Table{}, fmt.Errorf("range %q not found", rng)
	}
	return cloneTable(t), nil
}

func cloneTable(t ingest.Table) ingest.Table {
	out := ingest.Table{Header: slices.Clone(t.Header)}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, slices.Clone(r))
	}
	return out
}
