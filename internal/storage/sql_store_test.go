package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptledger/internal/core"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLStore(context.Background(), DialectSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fixture struct {
	admin core.User
	task  core.Task
	book  core.ReceiptBook
	etype core.ExpenseType
}

func seed(t *testing.T, s *SQLStore) fixture {
	t.Helper()
	ctx := context.Background()
	admin, err := s.CreateUser(ctx, core.User{Username: "admin", DisplayName: "Admin", Role: core.RoleAdmin})
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, core.Task{Name: "Building fund", CreatedBy: &admin.ID})
	require.NoError(t, err)
	book, err := s.CreateReceiptBook(ctx, core.ReceiptBook{BookNumber: "B-1", TaskID: task.ID, StartingReceiptNumber: 1, EndingReceiptNumber: 3})
	require.NoError(t, err)
	et, err := s.CreateExpenseType(ctx, core.ExpenseType{Name: "Printing", CreatedBy: &admin.ID})
	require.NoError(t, err)
	return fixture{admin: admin, task: task, book: book, etype: et}
}

func receipt(f fixture, n, cents int64) core.Receipt {
	return core.Receipt{
		ReceiptNumber: n, ReceiptBookID: f.book.ID, TaskID: f.task.ID,
		GiverName: "Giver", Address: "1 Main St", Amount: core.Money{Cents: cents}, EnteredBy: f.admin.ID,
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	lite := &SQLStore{dialect: DialectSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestNormalizePostgresURL(t *testing.T) {
	assert.Equal(t, "postgres://u@h/db?sslmode=disable", normalizePostgresURL("postgresql://u@h/db"))
	assert.Equal(t, "postgres://u@h/db?x=1&sslmode=disable", normalizePostgresURL("postgres://u@h/db?x=1"))
	assert.Equal(t, "postgres://u@h/db?sslmode=require", normalizePostgresURL("postgres://u@h/db?sslmode=require"))
}

func TestDBTimeScan(t *testing.T) {
	var d dbTime
	require.NoError(t, d.Scan("2025-03-01 10:20:30.5+00:00"))
	assert.Equal(t, time.Date(2025, 3, 1, 10, 20, 30, 500000000, time.UTC), d.Time)
	require.NoError(t, d.Scan([]byte("2025-03-01")))
	assert.Equal(t, 2025, d.Time.Year())
	assert.Error(t, d.Scan("yesterday"))
}

func TestSQLStoreReceiptUniqueness(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	_, err := s.CreateReceipt(ctx, receipt(f, 1, 100))
	require.NoError(t, err)
	_, err = s.CreateReceipt(ctx, receipt(f, 1, 200))
	assert.ErrorIs(t, err, core.ErrDuplicateNumber)

	used, err := s.UsedReceiptNumbers(ctx, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, used)
}

func TestSQLStoreDeleteFreesNumber(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	r, err := s.CreateReceipt(ctx, receipt(f, 2, 100))
	require.NoError(t, err)
	require.NoError(t, s.DeleteReceipt(ctx, r.ID))
	assert.ErrorIs(t, s.DeleteReceipt(ctx, r.ID), core.ErrNotFound)

	_, err = s.CreateReceipt(ctx, receipt(f, 2, 100))
	assert.NoError(t, err)
}

func TestSQLStoreLatestPublishedReport(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	_, err := s.LatestPublishedReport(ctx)
	require.ErrorIs(t, err, core.ErrNotFound)

	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	first, err := s.CreatePublishedReport(ctx, core.PublishedReport{
		ReportData: core.LedgerSnapshot{TotalIncome: core.Money{Cents: 100}}, PublishedAt: at, PublishedBy: f.admin.ID,
	})
	require.NoError(t, err)
	second, err := s.CreatePublishedReport(ctx, core.PublishedReport{
		ReportData: core.LedgerSnapshot{TotalIncome: core.Money{Cents: 200}}, PublishedAt: at, PublishedBy: f.admin.ID,
	})
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)

	latest, err := s.LatestPublishedReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, int64(200), latest.ReportData.TotalIncome.Cents)
	assert.True(t, latest.PublishedAt.Equal(at))
}

func TestSQLStoreExportReplaceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	_, err := s.CreateReceipt(ctx, receipt(f, 1, 10000))
	require.NoError(t, err)
	_, err = s.CreateExpense(ctx, core.Expense{ExpenseTypeID: f.etype.ID, Amount: core.Money{Cents: 7525}, ExpenseDate: core.NewDate(2025, 2, 3), EnteredBy: &f.admin.ID})
	require.NoError(t, err)

	before, err := s.ExportAll(ctx)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceAll(ctx, before))
	after, err := s.ExportAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	require.Len(t, after.Expenses, 1)
	assert.Equal(t, "2025-02-03", after.Expenses[0].ExpenseDate.String())
}

func TestSQLStoreReplaceAllRollsBackOnDanglingReference(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()
	_, err := s.CreateReceipt(ctx, receipt(f, 1, 100))
	require.NoError(t, err)

	before, err := s.ExportAll(ctx)
	require.NoError(t, err)

	bad := before
	bad.Receipts = []core.Receipt{{
		ID: 99, ReceiptNumber: 1, ReceiptBookID: 4242, TaskID: f.task.ID,
		GiverName: "x", Address: "y", Amount: core.Money{Cents: 1}, EnteredBy: f.admin.ID,
	}}
	err = s.ReplaceAll(ctx, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConflict)

	after, err := s.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSQLStoreIDsContinueAfterReplace(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	ds, err := s.ExportAll(ctx)
	require.NoError(t, err)
	ds.Receipts = append(ds.Receipts, core.Receipt{
		ID: 50, ReceiptNumber: 3, ReceiptBookID: f.book.ID, TaskID: f.task.ID,
		GiverName: "x", Address: "y", Amount: core.Money{Cents: 1}, EnteredBy: f.admin.ID, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, s.ReplaceAll(ctx, ds))

	r, err := s.CreateReceipt(ctx, receipt(f, 1, 5))
	require.NoError(t, err)
	assert.Greater(t, r.ID, int64(50))
}

func TestDatasetRowsOrder(t *testing.T) {
	tables, err := DatasetRows(core.Dataset{})
	require.NoError(t, err)
	var names []string
	for _, tr := range tables {
		names = append(names, tr.Table)
	}
	assert.Equal(t, []string{"users", "tasks", "expense_types", "receipt_books", "receipts", "expenses", "published_reports"}, names)
}
