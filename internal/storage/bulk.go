package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"receiptledger/internal/core"
)

// ExportAll reads every collection in one transaction so the dataset is a
// consistent point-in-time view.
func (s *SQLStore) ExportAll(ctx context.Context) (ds core.Dataset, err error) {
	var opts *sql.TxOptions
	if s.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("begin export: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if ds.Users, err = s.listUsers(ctx, tx); err != nil {
		return core.Dataset{}, err
	}
	if ds.Tasks, err = s.listTasks(ctx, tx); err != nil {
		return core.Dataset{}, err
	}
	if ds.ExpenseTypes, err = s.listExpenseTypes(ctx, tx); err != nil {
		return core.Dataset{}, err
	}
	if ds.ReceiptBooks, err = s.listBooks(ctx, tx); err != nil {
		return core.Dataset{}, err
	}
	if ds.Receipts, err = s.listReceipts(ctx, tx, receiptSelect+` ORDER BY id`); err != nil {
		return core.Dataset{}, err
	}
	if ds.Expenses, err = s.listExpenses(ctx, tx); err != nil {
		return core.Dataset{}, err
	}
	if ds.PublishedReports, err = s.listReports(ctx, tx); err != nil {
		return core.Dataset{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Dataset{}, fmt.Errorf("commit export: %w", err)
	}
	return ds, nil
}

// ReplaceAll swaps the whole dataset inside one transaction: leaves are
// deleted first, roots are inserted first. Any failure rolls everything back.
func (s *SQLStore) ReplaceAll(ctx context.Context, ds core.Dataset) error {
	tables, err := DatasetRows(ds)
	if err != nil {
		return err
	}

	var opts *sql.TxOptions
	if s.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, phase := range DeletePhases {
		for _, table := range phase {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, mapDBError(err))
			}
		}
	}

	for _, t := range tables {
		if err := s.insertRows(ctx, tx, t); err != nil {
			return err
		}
	}

	if s.dialect == DialectPostgres {
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, SequenceResetSQL(t.Table)); err != nil {
				return fmt.Errorf("reset %s sequence: %w", t.Table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", mapDBError(err))
	}
	return nil
}

func (s *SQLStore) insertRows(ctx context.Context, tx *sql.Tx, t TableRows) error {
	if len(t.Rows) == 0 {
		return nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	query := s.rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Table, strings.Join(t.Columns, ", "), marks))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", t.Table, err)
	}
	defer stmt.Close()
	for i, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", t.Table, i, mapDBError(err))
		}
	}
	return nil
}

// SequenceResetSQL moves the postgres serial sequence of table past its
// highest id so inserts after a bulk load do not collide.
func SequenceResetSQL(table string) string {
	return fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE((SELECT MAX(id) FROM %[1]s), 0) + 1, false)`, table)
}
