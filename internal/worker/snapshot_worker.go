package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"incomes/internal/amqp"
	"incomes/internal/core"
	"incomes/internal/log"
	"incomes/internal/storage"
)

// Exporter is the read side of the store the worker needs.
type Exporter interface {
	Query(ctx context.Context, f storage.Filter) ([]core.IncomeRecord, error)
}

// SnapshotWorker keeps an export of the whole store on disk, rewritten
// after every committed change announced over AMQP.
type SnapshotWorker struct {
	store  Exporter
	dir    string
	format storage.ExportFormat
}

func NewSnapshotWorker(store Exporter, dir, format string) *SnapshotWorker {
	return &SnapshotWorker{
		store:  store,
		dir:    dir,
		format: storage.ParseExportFormat(format),
	}
}

// Path is the snapshot file the worker maintains.
func (w *SnapshotWorker) Path() string {
	return filepath.Join(w.dir, storage.ExportSheet+"."+string(w.format))
}

// HandleEvent re-reads the store and replaces the snapshot. The event only
// says that something changed; its counters are logged, not trusted.
func (w *SnapshotWorker) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAMQP)
	logger.InfoContext(ctx, "Processing store event",
		"type", ev.Type,
		log.FieldBatchID, ev.BatchID,
		log.FieldCompany, ev.Company,
		log.FieldInserted, ev.Inserted,
		"removed", ev.Removed)

	n, err := w.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh snapshot after %s: %w", ev.Type, err)
	}
	logger.InfoContext(ctx, "Snapshot refreshed", log.FieldCount, n, log.FieldFile, w.Path())
	return nil
}

// Refresh writes the snapshot and returns the number of records in it.
// The file is replaced atomically.
func (w *SnapshotWorker) Refresh(ctx context.Context) (int, error) {
	// One read feeds both the file and the reported count.
	records, err := w.store.Query(ctx, storage.Filter{})
	if err != nil {
		return 0, fmt.Errorf("read records: %w", err)
	}
	data, err := storage.Encode(w.format, records)
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return 0, fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(w.dir, ".snapshot-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.Path()); err != nil {
		return 0, fmt.Errorf("replace snapshot: %w", err)
	}

	log.FromContext(ctx).WithComponent(log.ComponentStorage).DebugContext(ctx, "Snapshot written",
		log.FieldFile, w.Path(), "size", humanize.Bytes(uint64(len(data))))
	return len(records), nil
}

// Consumer delivers events until its context ends.
type Consumer interface {
	ConsumeEvents(ctx context.Context, handler func(*amqp.Event) error) error
}

// Run writes an initial snapshot and then refreshes it for every event.
func (w *SnapshotWorker) Run(ctx context.Context, c Consumer) error {
	if _, err := w.Refresh(ctx); err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}
	return c.ConsumeEvents(ctx, func(ev *amqp.Event) error {
		return w.HandleEvent(ctx, ev)
	})
}
