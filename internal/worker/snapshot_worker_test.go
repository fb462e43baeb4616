package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incomes/internal/amqp"
	"incomes/internal/core"
	"incomes/internal/storage"
)

func newStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "incomes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSnapshotWorker_HandleEvent(t *testing.T) {
	repo := newStore(t)
	ctx := context.Background()
	require.NoError(t, repo.AppendBatch(ctx, []core.IncomeRecord{
		{Name: "Salary", Company: "Acme", Date: core.NewDate(2024, 1, 31), Total: 2000},
	}))

	dir := filepath.Join(t.TempDir(), "snapshots")
	w := NewSnapshotWorker(repo, dir, "CSV")
	assert.Equal(t, filepath.Join(dir, "income_data.csv"), w.Path())

	require.NoError(t, w.HandleEvent(ctx, amqp.NewImportCompleted("b-1", 1, 1)))
	got, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, "Date,Total,Name,Company\n2024-01-31,2000,Salary,Acme\n", string(got))

	_, err = repo.DeleteByCompany(ctx, "Acme")
	require.NoError(t, err)
	require.NoError(t, w.HandleEvent(ctx, amqp.NewCompanyDeleted("Acme", 1)))
	got, err = os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, "Date,Total,Name,Company\n", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

// growingStore gains a record between any two reads.
type growingStore struct {
	records []core.IncomeRecord
}

func (g *growingStore) Query(context.Context, storage.Filter) ([]core.IncomeRecord, error) {
	out := append([]core.IncomeRecord(nil), g.records...)
	g.records = append(g.records, core.IncomeRecord{Name: "Late", Company: "Acme", Total: 1})
	return out, nil
}

func TestSnapshotWorker_CountMatchesSnapshot(t *testing.T) {
	store := &growingStore{records: []core.IncomeRecord{
		{Name: "Salary", Company: "Acme", Date: core.NewDate(2024, 1, 31), Total: 2000},
	}}
	w := NewSnapshotWorker(store, t.TempDir(), "json")

	n, err := w.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Contains(t, string(got), "Salary")
	assert.NotContains(t, string(got), "Late")
}

func TestSnapshotWorker_UnknownFormatFallsBackToCSV(t *testing.T) {
	w := NewSnapshotWorker(newStore(t), t.TempDir(), "parquet")
	assert.Equal(t, ".csv", filepath.Ext(w.Path()))
}

type brokenStore struct{}

func (brokenStore) Query(context.Context, storage.Filter) ([]core.IncomeRecord, error) {
	return nil, errors.New("database is locked")
}

func TestSnapshotWorker_StoreErrors(t *testing.T) {
	w := NewSnapshotWorker(brokenStore{}, t.TempDir(), "json")
	err := w.HandleEvent(context.Background(), amqp.NewStoreCleared(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.cleared")
}

type fakeConsumer struct {
	events []*amqp.Event
}

func (f fakeConsumer) ConsumeEvents(ctx context.Context, handler func(*amqp.Event) error) error {
	for _, ev := range f.events {
		if err := handler(ev); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func TestSnapshotWorker_Run(t *testing.T) {
	repo := newStore(t)
	dir := t.TempDir()
	w := NewSnapshotWorker(repo, dir, "json")

	err := w.Run(context.Background(), fakeConsumer{events: []*amqp.Event{amqp.NewStoreCleared(0)}})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "income_data.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(got))
}
