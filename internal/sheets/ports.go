package sheets

import (
	"context"

	"incomes/internal/ingest"
)

// Ports for inbound spreadsheet sources.
type (
	// TableReader reads a range whose first row is the header.
	TableReader interface {
		ReadTable(ctx context.Context, rng string) (ingest.Table, error)
	}
)
