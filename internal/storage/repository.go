package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"receiptledger/internal/core"
)

// Users

func (s *SQLStore) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	id, err := s.insertID(ctx, s.db,
		`INSERT INTO users (username, display_name, role, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.DisplayName, string(u.Role), u.PasswordHash, u.CreatedAt.UTC())
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return u, nil
}

const userSelect = `SELECT id, username, display_name, role, password_hash, created_at FROM users`

func scanUser(sc interface{ Scan(...any) error }) (core.User, error) {
	var u core.User
	var role string
	var created dbTime
	if err := sc.Scan(&u.ID, &u.Username, &u.DisplayName, &role, &u.PasswordHash, &created); err != nil {
		return core.User{}, err
	}
	u.Role = core.Role(role)
	u.CreatedAt = created.Time
	return u, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(s.queryRow(ctx, s.db, userSelect+` WHERE id = ?`, id))
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, mapDBError(err))
	}
	return u, nil
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.listUsers(ctx, s.db)
}

func (s *SQLStore) listUsers(ctx context.Context, q querier) ([]core.User, error) {
	rows, err := s.query(ctx, q, userSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Tasks

func (s *SQLStore) CreateTask(ctx context.Context, t core.Task) (core.Task, error) {
	if t.Status == "" {
		t.Status = core.TaskActive
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	id, err := s.insertID(ctx, s.db,
		`INSERT INTO tasks (name, description, status, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.Name, t.Description, string(t.Status), nullable(t.CreatedBy), t.CreatedAt.UTC())
	if err != nil {
		return core.Task{}, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	return t, nil
}

const taskSelect = `SELECT id, name, description, status, created_by, created_at FROM tasks`

func scanTask(sc interface{ Scan(...any) error }) (core.Task, error) {
	var t core.Task
	var status string
	var createdBy sql.NullInt64
	var created dbTime
	if err := sc.Scan(&t.ID, &t.Name, &t.Description, &status, &createdBy, &created); err != nil {
		return core.Task{}, err
	}
	t.Status = core.TaskStatus(status)
	t.CreatedBy = int64Ptr(createdBy)
	t.CreatedAt = created.Time
	return t, nil
}

func (s *SQLStore) GetTask(ctx context.Context, id int64) (core.Task, error) {
	t, err := scanTask(s.queryRow(ctx, s.db, taskSelect+` WHERE id = ?`, id))
	if err != nil {
		return core.Task{}, fmt.Errorf("get task %d: %w", id, mapDBError(err))
	}
	return t, nil
}

func (s *SQLStore) UpdateTask(ctx context.Context, t core.Task) error {
	res, err := s.exec(ctx, s.db, `UPDATE tasks SET description = ?, status = ? WHERE id = ?`,
		t.Description, string(t.Status), t.ID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, mapDBError(err))
	}
	return requireAffected(res, "task", t.ID)
}

func (s *SQLStore) ListTasks(ctx context.Context) ([]core.Task, error) {
	return s.listTasks(ctx, s.db)
}

func (s *SQLStore) listTasks(ctx context.Context, q querier) ([]core.Task, error) {
	rows, err := s.query(ctx, q, taskSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var out []core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Receipt books

func (s *SQLStore) CreateReceiptBook(ctx context.Context, b core.ReceiptBook) (core.ReceiptBook, error) {
	if b.Status == "" {
		b.Status = core.BookActive
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.TotalReceipts = core.TotalReceiptsFor(b.StartingReceiptNumber, b.EndingReceiptNumber)
	id, err := s.insertID(ctx, s.db,
		`INSERT INTO receipt_books (book_number, task_id, assigned_to, starting_receipt_number, ending_receipt_number, total_receipts, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BookNumber, b.TaskID, nullable(b.AssignedTo), b.StartingReceiptNumber, b.EndingReceiptNumber,
		b.TotalReceipts, string(b.Status), b.CreatedAt.UTC())
	if err != nil {
		return core.ReceiptBook{}, fmt.Errorf("insert receipt book: %w", err)
	}
	b.ID = id
	return b, nil
}

const bookSelect = `SELECT id, book_number, task_id, assigned_to, starting_receipt_number, ending_receipt_number, total_receipts, status, created_at FROM receipt_books`

func scanBook(sc interface{ Scan(...any) error }) (core.ReceiptBook, error) {
	var b core.ReceiptBook
	var status string
	var assigned sql.NullInt64
	var created dbTime
	if err := sc.Scan(&b.ID, &b.BookNumber, &b.TaskID, &assigned, &b.StartingReceiptNumber,
		&b.EndingReceiptNumber, &b.TotalReceipts, &status, &created); err != nil {
		return core.ReceiptBook{}, err
	}
	b.Status = core.BookStatus(status)
	b.AssignedTo = int64Ptr(assigned)
	b.CreatedAt = created.Time
	return b, nil
}

func (s *SQLStore) GetReceiptBook(ctx context.Context, id int64) (core.ReceiptBook, error) {
	b, err := scanBook(s.queryRow(ctx, s.db, bookSelect+` WHERE id = ?`, id))
	if err != nil {
		return core.ReceiptBook{}, fmt.Errorf("get receipt book %d: %w", id, mapDBError(err))
	}
	return b, nil
}

func (s *SQLStore) UpdateReceiptBook(ctx context.Context, b core.ReceiptBook) error {
	res, err := s.exec(ctx, s.db, `UPDATE receipt_books SET assigned_to = ?, status = ? WHERE id = ?`,
		nullable(b.AssignedTo), string(b.Status), b.ID)
	if err != nil {
		return fmt.Errorf("update receipt book %d: %w", b.ID, mapDBError(err))
	}
	return requireAffected(res, "receipt book", b.ID)
}

func (s *SQLStore) ListReceiptBooks(ctx context.Context) ([]core.ReceiptBook, error) {
	return s.listBooks(ctx, s.db)
}

func (s *SQLStore) listBooks(ctx context.Context, q querier) ([]core.ReceiptBook, error) {
	rows, err := s.query(ctx, q, bookSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list receipt books: %w", err)
	}
	defer rows.Close()
	var out []core.ReceiptBook
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt book: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Receipts

func (s *SQLStore) UsedReceiptNumbers(ctx context.Context, bookID int64) ([]int64, error) {
	rows, err := s.query(ctx, s.db, `SELECT receipt_number FROM receipts WHERE receipt_book_id = ? ORDER BY receipt_number`, bookID)
	if err != nil {
		return nil, fmt.Errorf("used numbers for book %d: %w", bookID, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateReceipt(ctx context.Context, r core.Receipt) (core.Receipt, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.queryRow(ctx, s.db,
		`INSERT INTO receipts (receipt_number, receipt_book_id, task_id, giver_name, address, phone_number, amount_cents, entered_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		r.ReceiptNumber, r.ReceiptBookID, r.TaskID, r.GiverName, r.Address, r.PhoneNumber,
		r.Amount.Cents, r.EnteredBy, r.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Receipt{}, fmt.Errorf("receipt %d in book %d: %w", r.ReceiptNumber, r.ReceiptBookID, core.ErrDuplicateNumber)
		}
		return core.Receipt{}, fmt.Errorf("insert receipt: %w", mapDBError(err))
	}
	r.ID = id
	return r, nil
}

const receiptSelect = `SELECT id, receipt_number, receipt_book_id, task_id, giver_name, address, phone_number, amount_cents, entered_by, created_at FROM receipts`

func scanReceipt(sc interface{ Scan(...any) error }) (core.Receipt, error) {
	var r core.Receipt
	var created dbTime
	if err := sc.Scan(&r.ID, &r.ReceiptNumber, &r.ReceiptBookID, &r.TaskID, &r.GiverName, &r.Address,
		&r.PhoneNumber, &r.Amount.Cents, &r.EnteredBy, &created); err != nil {
		return core.Receipt{}, err
	}
	r.CreatedAt = created.Time
	return r, nil
}

func (s *SQLStore) GetReceipt(ctx context.Context, id int64) (core.Receipt, error) {
	r, err := scanReceipt(s.queryRow(ctx, s.db, receiptSelect+` WHERE id = ?`, id))
	if err != nil {
		return core.Receipt{}, fmt.Errorf("get receipt %d: %w", id, mapDBError(err))
	}
	return r, nil
}

func (s *SQLStore) DeleteReceipt(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM receipts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete receipt %d: %w", id, mapDBError(err))
	}
	return requireAffected(res, "receipt", id)
}

func (s *SQLStore) ListReceipts(ctx context.Context) ([]core.Receipt, error) {
	return s.listReceipts(ctx, s.db, receiptSelect+` ORDER BY id`)
}

func (s *SQLStore) ListReceiptsByBook(ctx context.Context, bookID int64) ([]core.Receipt, error) {
	return s.listReceipts(ctx, s.db, receiptSelect+` WHERE receipt_book_id = ? ORDER BY receipt_number`, bookID)
}

func (s *SQLStore) listReceipts(ctx context.Context, q querier, query string, args ...any) ([]core.Receipt, error) {
	rows, err := s.query(ctx, q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()
	var out []core.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Expense types and expenses

func (s *SQLStore) CreateExpenseType(ctx context.Context, et core.ExpenseType) (core.ExpenseType, error) {
	if et.Status == "" {
		et.Status = core.ExpenseTypeActive
	}
	id, err := s.insertID(ctx, s.db, `INSERT INTO expense_types (name, status, created_by) VALUES (?, ?, ?)`,
		et.Name, string(et.Status), nullable(et.CreatedBy))
	if err != nil {
		return core.ExpenseType{}, fmt.Errorf("insert expense type: %w", err)
	}
	et.ID = id
	return et, nil
}

const expenseTypeSelect = `SELECT id, name, status, created_by FROM expense_types`

func scanExpenseType(sc interface{ Scan(...any) error }) (core.ExpenseType, error) {
	var et core.ExpenseType
	var status string
	var createdBy sql.NullInt64
	if err := sc.Scan(&et.ID, &et.Name, &status, &createdBy); err != nil {
		return core.ExpenseType{}, err
	}
	et.Status = core.ExpenseTypeStatus(status)
	et.CreatedBy = int64Ptr(createdBy)
	return et, nil
}

func (s *SQLStore) GetExpenseType(ctx context.Context, id int64) (core.ExpenseType, error) {
	et, err := scanExpenseType(s.queryRow(ctx, s.db, expenseTypeSelect+` WHERE id = ?`, id))
	if err != nil {
		return core.ExpenseType{}, fmt.Errorf("get expense type %d: %w", id, mapDBError(err))
	}
	return et, nil
}

func (s *SQLStore) ListExpenseTypes(ctx context.Context) ([]core.ExpenseType, error) {
	return s.listExpenseTypes(ctx, s.db)
}

func (s *SQLStore) listExpenseTypes(ctx context.Context, q querier) ([]core.ExpenseType, error) {
	rows, err := s.query(ctx, q, expenseTypeSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list expense types: %w", err)
	}
	defer rows.Close()
	var out []core.ExpenseType
	for rows.Next() {
		et, err := scanExpenseType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense type: %w", err)
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	id, err := s.insertID(ctx, s.db,
		`INSERT INTO expenses (expense_type_id, amount_cents, expense_date, description, entered_by, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ExpenseTypeID, e.Amount.Cents, e.ExpenseDate.Time, e.Description, nullable(e.EnteredBy), e.CreatedAt.UTC())
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	e.ID = id
	return e, nil
}

func (s *SQLStore) DeleteExpense(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, mapDBError(err))
	}
	return requireAffected(res, "expense", id)
}

func (s *SQLStore) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	return s.listExpenses(ctx, s.db)
}

func (s *SQLStore) listExpenses(ctx context.Context, q querier) ([]core.Expense, error) {
	rows, err := s.query(ctx, q, `SELECT id, expense_type_id, amount_cents, expense_date, description, entered_by, created_at FROM expenses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()
	var out []core.Expense
	for rows.Next() {
		var e core.Expense
		var date, created dbTime
		var enteredBy sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ExpenseTypeID, &e.Amount.Cents, &date, &e.Description, &enteredBy, &created); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.ExpenseDate = core.NewDate(date.Time.Year(), int(date.Time.Month()), date.Time.Day())
		e.EnteredBy = int64Ptr(enteredBy)
		e.CreatedAt = created.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

// Published reports

func (s *SQLStore) CreatePublishedReport(ctx context.Context, p core.PublishedReport) (core.PublishedReport, error) {
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p.ReportData)
	if err != nil {
		return core.PublishedReport{}, fmt.Errorf("encode report: %w", err)
	}
	id, err := s.insertID(ctx, s.db, `INSERT INTO published_reports (report_data, published_at, published_by) VALUES (?, ?, ?)`,
		string(data), p.PublishedAt.UTC(), p.PublishedBy)
	if err != nil {
		return core.PublishedReport{}, fmt.Errorf("insert published report: %w", err)
	}
	p.ID = id
	return p, nil
}

const reportSelect = `SELECT id, report_data, published_at, published_by FROM published_reports`

func scanReport(sc interface{ Scan(...any) error }) (core.PublishedReport, error) {
	var p core.PublishedReport
	var data string
	var published dbTime
	if err := sc.Scan(&p.ID, &data, &published, &p.PublishedBy); err != nil {
		return core.PublishedReport{}, err
	}
	if err := json.Unmarshal([]byte(data), &p.ReportData); err != nil {
		return core.PublishedReport{}, fmt.Errorf("decode report %d: %w", p.ID, err)
	}
	p.PublishedAt = published.Time
	return p, nil
}

func (s *SQLStore) LatestPublishedReport(ctx context.Context) (core.PublishedReport, error) {
	p, err := scanReport(s.queryRow(ctx, s.db, reportSelect+` ORDER BY published_at DESC, id DESC LIMIT 1`))
	if err != nil {
		return core.PublishedReport{}, fmt.Errorf("latest published report: %w", mapDBError(err))
	}
	return p, nil
}

func (s *SQLStore) ListPublishedReports(ctx context.Context) ([]core.PublishedReport, error) {
	return s.listReports(ctx, s.db)
}

func (s *SQLStore) listReports(ctx context.Context, q querier) ([]core.PublishedReport, error) {
	rows, err := s.query(ctx, q, reportSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list published reports: %w", err)
	}
	defer rows.Close()
	var out []core.PublishedReport
	for rows.Next() {
		p, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan published report: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d rows affected: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
	}
	return nil
}
