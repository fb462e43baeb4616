package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"incomes/internal/core"

	_ "modernc.org/sqlite"
)

const (
	insertRecordSQL = `INSERT INTO income_data (date, total, name, company) VALUES (?, ?, ?, ?)`
	selectRecordSQL = `SELECT date, total, name, company FROM income_data`
)

// SQLiteRepository is the persistent store for canonical income records.
// One instance owns one database handle; it is created at startup and
// passed to whoever needs it.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single local writer. The one connection is never recycled, which also
	// keeps a ":memory:" database alive for the life of the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db, path: dbPath}
	if err := repo.Initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// Initialize creates the schema if absent. Safe to call on every startup.
func (r *SQLiteRepository) Initialize() error {
	version, err := RunMigrations(r.db)
	if err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	slog.Debug("Schema ready", "path", r.path, "version", version)
	return nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadAll returns every stored record in insertion order.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]core.IncomeRecord, error) {
	return r.Query(ctx, Filter{})
}

// Query returns the records matching f in insertion order.
func (r *SQLiteRepository) Query(ctx context.Context, f Filter) ([]core.IncomeRecord, error) {
	where, args := f.where()
	rows, err := r.db.QueryContext(ctx, selectRecordSQL+where+" ORDER BY id ASC", args...)
	if err != nil {
		return nil, &core.StorageError{Op: "query", Row: -1, Err: err}
	}
	defer rows.Close()

	records := []core.IncomeRecord{}
	for rows.Next() {
		var rec core.IncomeRecord
		if err := rows.Scan(&rec.Date, &rec.Total, &rec.Name, &rec.Company); err != nil {
			return nil, &core.StorageError{Op: "scan", Row: len(records), Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "query", Row: -1, Err: err}
	}
	return records, nil
}

// Count returns the number of stored records.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM income_data`).Scan(&n); err != nil {
		return 0, &core.StorageError{Op: "count", Row: -1, Err: err}
	}
	return n, nil
}

// Companies returns the distinct company names, sorted.
func (r *SQLiteRepository) Companies(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT company FROM income_data ORDER BY company ASC`)
	if err != nil {
		return nil, &core.StorageError{Op: "companies", Row: -1, Err: err}
	}
	defer rows.Close()

	companies := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, &core.StorageError{Op: "companies", Row: -1, Err: err}
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "companies", Row: -1, Err: err}
	}
	return companies, nil
}

// AppendBatch inserts records in a single transaction. If any row fails
// the whole batch is rolled back and nothing is stored.
func (r *SQLiteRepository) AppendBatch(ctx context.Context, records []core.IncomeRecord) error {
	if len(records) == 0 {
		return nil
	}

	return r.withTx(ctx, "append", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
		if err != nil {
			return &core.StorageError{Op: "append", Row: -1, Err: err}
		}
		defer stmt.Close()

		for i, rec := range records {
			if err := rec.Validate(); err != nil {
				return &core.StorageError{Op: "append", Row: i, Err: err}
			}
			if _, err := stmt.ExecContext(ctx, dateArg(rec.Date), rec.Total, rec.Name, rec.Company); err != nil {
				return &core.StorageError{Op: "append", Row: i, Err: err}
			}
		}

		slog.InfoContext(ctx, "Income records appended", "count", len(records))
		return nil
	})
}

// DeleteByCompany removes every record of company and returns how many
// rows were removed.
func (r *SQLiteRepository) DeleteByCompany(ctx context.Context, company string) (int64, error) {
	var removed int64
	err := r.withTx(ctx, "delete", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM income_data WHERE company = ?`, company)
		if err != nil {
			return &core.StorageError{Op: "delete", Row: -1, Err: err}
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return &core.StorageError{Op: "delete", Row: -1, Err: err}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Company records deleted", "company", company, "removed", removed)
	return removed, nil
}

// Clear removes every record.
func (r *SQLiteRepository) Clear(ctx context.Context) (int64, error) {
	var removed int64
	err := r.withTx(ctx, "clear", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM income_data`)
		if err != nil {
			return &core.StorageError{Op: "clear", Row: -1, Err: err}
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return &core.StorageError{Op: "clear", Row: -1, Err: err}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.WarnContext(ctx, "Income store cleared", "removed", removed)
	return removed, nil
}

// ExportFiltered serializes the records matching f. Unknown formats fall
// back to CSV.
func (r *SQLiteRepository) ExportFiltered(ctx context.Context, format string, f Filter) ([]byte, error) {
	records, err := r.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	return Encode(ParseExportFormat(format), records)
}

// withTx runs fn in a transaction, committing on success and rolling back
// on any error.
func (r *SQLiteRepository) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StorageError{Op: op, Row: -1, Err: fmt.Errorf("begin transaction: %w", err)}
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "operation", op, "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return &core.StorageError{Op: op, Row: -1, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func dateArg(d core.Date) any {
	if d.IsNull() {
		return nil
	}
	return d.Format(core.DateLayout)
}
