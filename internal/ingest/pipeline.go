// Package ingest turns uploaded files into committed store rows: read,
// normalize each row, deduplicate against the store, append.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"incomes/internal/core"
	"incomes/internal/dedup"
	"incomes/internal/log"
)

// Store is the part of the persistent store the pipeline needs.
type Store interface {
	LoadAll(ctx context.Context) ([]core.IncomeRecord, error)
	AppendBatch(ctx context.Context, records []core.IncomeRecord) error
}

// RowError is a row that failed normalization and was not stored.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// FileResult summarizes the ingestion of one source.
type FileResult struct {
	File       string
	Rows       int // non-blank data rows read
	Inserted   int
	Duplicates int // rows already stored or repeated within the file
	NullDates  int // inserted rows whose date could not be parsed
	RowErrors  []RowError
	Err        error // format, schema or storage failure; nothing was stored
}

// Report is the outcome of one Ingest call.
type Report struct {
	BatchID string
	Files   []FileResult
}

// Inserted is the number of new records committed across all files.
func (r Report) Inserted() int {
	n := 0
	for _, f := range r.Files {
		n += f.Inserted
	}
	return n
}

// Failed reports whether any file was rejected or had bad rows.
func (r Report) Failed() bool {
	for _, f := range r.Files {
		if f.Err != nil || len(f.RowErrors) > 0 {
			return true
		}
	}
	return false
}

type Pipeline struct {
	store      Store
	normalizer core.Normalizer
	workers    int
}

func NewPipeline(store Store, normalizer core.Normalizer, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{store: store, normalizer: normalizer, workers: workers}
}

type prepared struct {
	result  FileResult
	records []core.IncomeRecord
}

// Ingest processes uploads. Parsing runs concurrently; store work runs
// one file at a time in upload order, each file in its own transaction.
// File and row problems are reported in the Report; storage failures are
// also returned joined as the error.
func (p *Pipeline) Ingest(ctx context.Context, uploads ...Upload) (Report, error) {
	report := Report{BatchID: uuid.NewString(), Files: make([]FileResult, len(uploads))}
	batches := make([]prepared, len(uploads))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, u := range uploads {
		g.Go(func() error {
			table, err := ReadUpload(u)
			if err != nil {
				batches[i] = prepared{result: FileResult{File: u.Name, Err: err}}
				return nil
			}
			batches[i] = p.prepare(u.Name, table)
			return nil
		})
	}
	_ = g.Wait()

	var storeErrs []error
	for i := range batches {
		report.Files[i] = p.commit(ctx, report.BatchID, batches[i])
		if errors.Is(report.Files[i].Err, core.ErrStorage) {
			storeErrs = append(storeErrs, fmt.Errorf("%s: %w", report.Files[i].File, report.Files[i].Err))
		}
	}

	log.FromContext(ctx).WithComponent(log.ComponentIngest).InfoContext(ctx, "Ingestion finished",
		log.FieldBatchID, report.BatchID,
		"files", len(uploads),
		log.FieldInserted, report.Inserted())

	return report, errors.Join(storeErrs...)
}

// IngestTable runs an already parsed table (for example a spreadsheet
// range fetched over an API) through the same path as an uploaded file.
func (p *Pipeline) IngestTable(ctx context.Context, source string, t Table) (FileResult, error) {
	res := p.commit(ctx, uuid.NewString(), p.prepare(source, t))
	if errors.Is(res.Err, core.ErrStorage) {
		return res, res.Err
	}
	return res, nil
}

func (p *Pipeline) prepare(source string, t Table) prepared {
	res := FileResult{File: source}
	if missing := core.MissingColumns(t.Header); len(missing) > 0 {
		res.Err = &core.SchemaError{Missing: missing, Required: core.RequiredColumns}
		return prepared{result: res}
	}

	rows, lines := t.RawRows()
	res.Rows = len(rows)
	records := make([]core.IncomeRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := p.normalizer.Normalize(row)
		if err != nil {
			res.RowErrors = append(res.RowErrors, RowError{Row: lines[i], Err: err})
			continue
		}
		records = append(records, rec)
	}
	return prepared{result: res, records: records}
}

func (p *Pipeline) commit(ctx context.Context, batchID string, b prepared) FileResult {
	logger := log.FromContext(ctx).WithComponent(log.ComponentIngest)
	res := b.result
	if res.Err != nil {
		logger.WarnContext(ctx, "File rejected", log.FieldBatchID, batchID, log.FieldFile, res.File, log.FieldError, res.Err)
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = &core.StorageError{Op: "ingest", Row: -1, Err: err}
		return res
	}

	current, err := p.store.LoadAll(ctx)
	if err != nil {
		res.Err = err
		return res
	}

	fresh := dedup.Filter(current, dedup.Unique(b.records))
	if err := p.store.AppendBatch(ctx, fresh); err != nil {
		res.Err = err
		log.NewStructuredLogger(logger).LogError(ctx, "File not stored", err, log.ComponentStorage, log.OpImport,
			log.NewFields().WithIngestion(batchID, res.File, res.Rows, 0, 0, 0, len(res.RowErrors)))
		return res
	}

	res.Inserted = len(fresh)
	res.Duplicates = len(b.records) - len(fresh)
	for _, r := range fresh {
		if r.Date.IsNull() {
			res.NullDates++
		}
	}

	log.NewStructuredLogger(logger).LogFileIngested(ctx, batchID, res.File,
		res.Rows, res.Inserted, res.Duplicates, res.NullDates, len(res.RowErrors))
	return res
}
