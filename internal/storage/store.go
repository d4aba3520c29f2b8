package storage

import (
	"context"

	"receiptledger/internal/core"
)

// Ports implemented by every storage backend. Services receive a Store at
// construction; nothing below this package knows which backend is in use.
type (
	UserStore interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
		ListUsers(ctx context.Context) ([]core.User, error)
	}

	TaskStore interface {
		CreateTask(ctx context.Context, t core.Task) (core.Task, error)
		GetTask(ctx context.Context, id int64) (core.Task, error)
		// UpdateTask persists the mutable task fields (status, description).
		UpdateTask(ctx context.Context, t core.Task) error
		ListTasks(ctx context.Context) ([]core.Task, error)
	}

	ReceiptBookStore interface {
		CreateReceiptBook(ctx context.Context, b core.ReceiptBook) (core.ReceiptBook, error)
		GetReceiptBook(ctx context.Context, id int64) (core.ReceiptBook, error)
		// UpdateReceiptBook persists assignment and status; range and task are fixed.
		UpdateReceiptBook(ctx context.Context, b core.ReceiptBook) error
		ListReceiptBooks(ctx context.Context) ([]core.ReceiptBook, error)
	}

	ReceiptStore interface {
		// UsedReceiptNumbers returns the numbers held by live receipts of a book.
		UsedReceiptNumbers(ctx context.Context, bookID int64) ([]int64, error)
		// CreateReceipt fails with core.ErrDuplicateNumber when the
		// (book, number) pair is already taken.
		CreateReceipt(ctx context.Context, r core.Receipt) (core.Receipt, error)
		GetReceipt(ctx context.Context, id int64) (core.Receipt, error)
		DeleteReceipt(ctx context.Context, id int64) error
		ListReceipts(ctx context.Context) ([]core.Receipt, error)
		ListReceiptsByBook(ctx context.Context, bookID int64) ([]core.Receipt, error)
	}

	ExpenseStore interface {
		CreateExpenseType(ctx context.Context, et core.ExpenseType) (core.ExpenseType, error)
		GetExpenseType(ctx context.Context, id int64) (core.ExpenseType, error)
		ListExpenseTypes(ctx context.Context) ([]core.ExpenseType, error)
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, id int64) error
		ListExpenses(ctx context.Context) ([]core.Expense, error)
	}

	ReportStore interface {
		CreatePublishedReport(ctx context.Context, r core.PublishedReport) (core.PublishedReport, error)
		// LatestPublishedReport returns core.ErrNotFound when nothing was published.
		LatestPublishedReport(ctx context.Context) (core.PublishedReport, error)
		ListPublishedReports(ctx context.Context) ([]core.PublishedReport, error)
	}

	BulkStore interface {
		// ExportAll reads every collection inside one read transaction.
		ExportAll(ctx context.Context) (core.Dataset, error)
		// ReplaceAll deletes every row and inserts ds as one atomic unit.
		ReplaceAll(ctx context.Context, ds core.Dataset) error
	}

	Store interface {
		UserStore
		TaskStore
		ReceiptBookStore
		ReceiptStore
		ExpenseStore
		ReportStore
		BulkStore
		Close() error
	}
)
