package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"receiptledger/internal/core"
)

// DeletePhases lists tables leaves first. Tables inside one phase do not
// reference each other; a phase only starts once the previous one is done.
var DeletePhases = [][]string{
	{"receipts", "expenses", "published_reports"},
	{"receipt_books", "expense_types"},
	{"tasks"},
	{"users"},
}

// TableRows is one table's worth of rows in column order.
type TableRows struct {
	Table   string
	Columns []string
	Rows    [][]any
}

var (
	userColumns        = []string{"id", "username", "display_name", "role", "password_hash", "created_at"}
	taskColumns        = []string{"id", "name", "description", "status", "created_by", "created_at"}
	expenseTypeColumns = []string{"id", "name", "status", "created_by"}
	bookColumns        = []string{"id", "book_number", "task_id", "assigned_to", "starting_receipt_number", "ending_receipt_number", "total_receipts", "status", "created_at"}
	receiptColumns     = []string{"id", "receipt_number", "receipt_book_id", "task_id", "giver_name", "address", "phone_number", "amount_cents", "entered_by", "created_at"}
	expenseColumns     = []string{"id", "expense_type_id", "amount_cents", "expense_date", "description", "entered_by", "created_at"}
	reportColumns      = []string{"id", "report_data", "published_at", "published_by"}
)

// DatasetRows flattens ds into per-table rows, roots before leaves: users,
// tasks, expense types, receipt books, receipts, expenses, published reports.
// Values are int64, string, time.Time or nil.
func DatasetRows(ds core.Dataset) ([]TableRows, error) {
	users := TableRows{Table: "users", Columns: userColumns}
	for _, u := range ds.Users {
		users.Rows = append(users.Rows, []any{u.ID, u.Username, u.DisplayName, string(u.Role), u.PasswordHash, utc(u.CreatedAt)})
	}

	tasks := TableRows{Table: "tasks", Columns: taskColumns}
	for _, t := range ds.Tasks {
		tasks.Rows = append(tasks.Rows, []any{t.ID, t.Name, t.Description, string(t.Status), nullable(t.CreatedBy), utc(t.CreatedAt)})
	}

	types := TableRows{Table: "expense_types", Columns: expenseTypeColumns}
	for _, et := range ds.ExpenseTypes {
		types.Rows = append(types.Rows, []any{et.ID, et.Name, string(et.Status), nullable(et.CreatedBy)})
	}

	books := TableRows{Table: "receipt_books", Columns: bookColumns}
	for _, b := range ds.ReceiptBooks {
		total := core.TotalReceiptsFor(b.StartingReceiptNumber, b.EndingReceiptNumber)
		books.Rows = append(books.Rows, []any{b.ID, b.BookNumber, b.TaskID, nullable(b.AssignedTo), b.StartingReceiptNumber, b.EndingReceiptNumber, total, string(b.Status), utc(b.CreatedAt)})
	}

	receipts := TableRows{Table: "receipts", Columns: receiptColumns}
	for _, r := range ds.Receipts {
		receipts.Rows = append(receipts.Rows, []any{r.ID, r.ReceiptNumber, r.ReceiptBookID, r.TaskID, r.GiverName, r.Address, r.PhoneNumber, r.Amount.Cents, r.EnteredBy, utc(r.CreatedAt)})
	}

	expenses := TableRows{Table: "expenses", Columns: expenseColumns}
	for _, e := range ds.Expenses {
		expenses.Rows = append(expenses.Rows, []any{e.ID, e.ExpenseTypeID, e.Amount.Cents, e.ExpenseDate.Time, e.Description, nullable(e.EnteredBy), utc(e.CreatedAt)})
	}

	reports := TableRows{Table: "published_reports", Columns: reportColumns}
	for _, p := range ds.PublishedReports {
		data, err := json.Marshal(p.ReportData)
		if err != nil {
			return nil, fmt.Errorf("encode report %d: %w", p.ID, err)
		}
		reports.Rows = append(reports.Rows, []any{p.ID, string(data), utc(p.PublishedAt), p.PublishedBy})
	}

	return []TableRows{users, tasks, types, books, receipts, expenses, reports}, nil
}

func nullable(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t.UTC()
}
