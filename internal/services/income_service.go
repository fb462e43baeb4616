package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"incomes/internal/amqp"
	"incomes/internal/cache"
	"incomes/internal/core"
	"incomes/internal/ingest"
	"incomes/internal/log"
	"incomes/internal/report"
	"incomes/internal/sheets"
	"incomes/internal/storage"
)

// Store is the persistent store behind the service.
type Store interface {
	ingest.Store
	Query(ctx context.Context, f storage.Filter) ([]core.IncomeRecord, error)
	Companies(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	DeleteByCompany(ctx context.Context, company string) (int64, error)
	Clear(ctx context.Context) (int64, error)
	ExportFiltered(ctx context.Context, format string, f storage.Filter) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// Publisher announces committed store changes.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.Event) error
	Close() error
}

type Options struct {
	Normalizer core.Normalizer
	Workers    int
	// Publisher is optional; events are skipped when nil.
	Publisher Publisher
	// Sheets is optional; sheet imports fail when nil.
	Sheets sheets.TableReader
	// SummaryTTL bounds how long a summary is reused between writes.
	// Zero means five minutes.
	SummaryTTL time.Duration
}

// IncomeService orchestrates income operations across SQLite, the ingestion
// pipeline and AMQP.
type IncomeService struct {
	store     Store
	pipeline  *ingest.Pipeline
	publisher Publisher
	sheets    sheets.TableReader

	summaries *cache.LRUCache[report.Summary]
	caches    *cache.Manager
}

func NewIncomeService(store Store, opts Options) *IncomeService {
	ttl := opts.SummaryTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s := &IncomeService{
		store:     store,
		pipeline:  ingest.NewPipeline(store, opts.Normalizer, opts.Workers),
		publisher: opts.Publisher,
		sheets:    opts.Sheets,
		summaries: cache.NewLRUCache[report.Summary](100, ttl),
		caches:    cache.NewManager(),
	}
	s.caches.Register(s.summaries)
	s.caches.StartCleanup(10 * time.Minute)
	return s
}

// Import ingests uploaded files and announces the batch when it stored
// anything.
func (s *IncomeService) Import(ctx context.Context, uploads ...ingest.Upload) (ingest.Report, error) {
	rep, err := s.pipeline.Ingest(ctx, uploads...)
	if rep.Inserted() > 0 {
		s.summaries.Purge()
		s.publish(ctx, amqp.NewImportCompleted(rep.BatchID, len(rep.Files), rep.Inserted()))
	}
	if err != nil {
		return rep, fmt.Errorf("import: %w", err)
	}
	return rep, nil
}

// ImportSheet ingests a spreadsheet range through the same pipeline as
// uploaded files.
func (s *IncomeService) ImportSheet(ctx context.Context, rng string) (ingest.FileResult, error) {
	if s.sheets == nil {
		return ingest.FileResult{}, errors.New("no spreadsheet source configured")
	}
	tbl, err := s.sheets.ReadTable(ctx, rng)
	if err != nil {
		return ingest.FileResult{}, fmt.Errorf("read sheet: %w", err)
	}

	res, err := s.pipeline.IngestTable(ctx, "sheet:"+rng, tbl)
	if res.Inserted > 0 {
		s.summaries.Purge()
		s.publish(ctx, amqp.NewImportCompleted(res.File, 1, res.Inserted))
	}
	if err != nil {
		return res, fmt.Errorf("import sheet: %w", err)
	}
	return res, nil
}

// Records returns the matching records ordered by date.
func (s *IncomeService) Records(ctx context.Context, f storage.Filter) ([]core.IncomeRecord, error) {
	recs, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	return report.SortByDate(recs), nil
}

func (s *IncomeService) Companies(ctx context.Context) ([]string, error) {
	return s.store.Companies(ctx)
}

// Summary aggregates the matching records. Results are cached per filter
// until the next write.
func (s *IncomeService) Summary(ctx context.Context, f storage.Filter) (report.Summary, error) {
	key := strings.Join([]string{f.Company, f.Name, f.From.String(), f.To.String()}, "\x00")
	return cache.GetOrLoad[report.Summary](ctx, s.summaries, key, func(ctx context.Context) (report.Summary, error) {
		recs, err := s.store.Query(ctx, f)
		if err != nil {
			return report.Summary{}, err
		}
		return report.Summarize(recs), nil
	})
}

// Export encodes the matching records. Unknown formats fall back to CSV;
// the returned format is the one actually used.
func (s *IncomeService) Export(ctx context.Context, format string, f storage.Filter) ([]byte, storage.ExportFormat, error) {
	ef := storage.ParseExportFormat(format)
	b, err := s.store.ExportFiltered(ctx, string(ef), f)
	if err != nil {
		return nil, ef, fmt.Errorf("export: %w", err)
	}
	log.FromContext(ctx).WithComponent(log.ComponentStorage).DebugContext(ctx, "Records exported",
		log.FieldFormat, string(ef), log.FieldOperation, log.OpExport, "bytes", len(b))
	return b, ef, nil
}

// DeleteCompany removes every record of company. Removing an absent
// company succeeds with a zero count.
func (s *IncomeService) DeleteCompany(ctx context.Context, company string) (int64, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return 0, core.ErrEmptyCompany
	}
	n, err := s.store.DeleteByCompany(ctx, company)
	if err != nil {
		return 0, fmt.Errorf("delete company: %w", err)
	}
	s.summaries.Purge()
	log.FromContext(ctx).WithComponent(log.ComponentStorage).InfoContext(ctx, "Company deleted",
		log.FieldCompany, company, log.FieldCount, n, log.FieldOperation, log.OpDelete)
	s.publish(ctx, amqp.NewCompanyDeleted(company, n))
	return n, nil
}

// Clear removes every record.
func (s *IncomeService) Clear(ctx context.Context) (int64, error) {
	n, err := s.store.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	s.summaries.Purge()
	log.FromContext(ctx).WithComponent(log.ComponentStorage).InfoContext(ctx, "Store cleared",
		log.FieldCount, n, log.FieldOperation, log.OpClear)
	s.publish(ctx, amqp.NewStoreCleared(n))
	return n, nil
}

// Ping checks the store is reachable.
func (s *IncomeService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// publish never fails the caller: the store change is already committed.
func (s *IncomeService) publish(ctx context.Context, ev *amqp.Event) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAMQP)
	if s.publisher == nil {
		logger.DebugContext(ctx, "AMQP publisher not configured, skipping event", "type", ev.Type)
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.NewStructuredLogger(logger).LogError(ctx, "Failed to publish event", err, log.ComponentAMQP, log.OpPublish,
			log.LogFields{"event_type": string(ev.Type)})
	}
}

// Close closes both storage and AMQP connections
func (s *IncomeService) Close() error {
	var errs []error

	if s.caches != nil {
		s.caches.Stop()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close income service: %w", errors.Join(errs...))
	}

	return nil
}
