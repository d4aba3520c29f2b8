// Package memory is an in-process Store used by tests and the memory backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"receiptledger/internal/core"
	"receiptledger/internal/storage"
)

type state struct {
	users        map[int64]core.User
	tasks        map[int64]core.Task
	books        map[int64]core.ReceiptBook
	receipts     map[int64]core.Receipt
	expenseTypes map[int64]core.ExpenseType
	expenses     map[int64]core.Expense
	reports      map[int64]core.PublishedReport
	nextID       int64
}

func newState() *state {
	return &state{
		users:        map[int64]core.User{},
		tasks:        map[int64]core.Task{},
		books:        map[int64]core.ReceiptBook{},
		receipts:     map[int64]core.Receipt{},
		expenseTypes: map[int64]core.ExpenseType{},
		expenses:     map[int64]core.Expense{},
		reports:      map[int64]core.PublishedReport{},
	}
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

// Store keeps every collection in maps guarded by one mutex. ReplaceAll
// builds a fresh state and swaps it in, so readers never see a mix.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Close() error { return nil }

func sortedValues[T any](m map[int64]T) []T {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
}

func (s *Store) userExists(id *int64) bool {
	if id == nil {
		return true
	}
	_, ok := s.st.users[*id]
	return ok
}

// Users

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.users {
		if existing.Username == u.Username {
			return core.User{}, fmt.Errorf("%w: username %q taken", core.ErrConflict, u.Username)
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.ID = s.st.id()
	s.st.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.users[id]
	if !ok {
		return core.User{}, notFound("user", id)
	}
	return u, nil
}

func (s *Store) ListUsers(context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.st.users), nil
}

// Tasks

func (s *Store) CreateTask(_ context.Context, t core.Task) (core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.userExists(t.CreatedBy) {
		return core.Task{}, fmt.Errorf("%w: unknown creator", core.ErrConflict)
	}
	if t.Status == "" {
		t.Status = core.TaskActive
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.ID = s.st.id()
	s.st.tasks[t.ID] = t
	return t, nil
}

func (s *Store) GetTask(_ context.Context, id int64) (core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.st.tasks[id]
	if !ok {
		return core.Task{}, notFound("task", id)
	}
	return t, nil
}

func (s *Store) UpdateTask(_ context.Context, t core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.st.tasks[t.ID]
	if !ok {
		return notFound("task", t.ID)
	}
	cur.Description = t.Description
	cur.Status = t.Status
	s.st.tasks[t.ID] = cur
	return nil
}

func (s *Store) ListTasks(context.Context) ([]core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.st.tasks), nil
}

// Receipt books

func (s *Store) CreateReceiptBook(_ context.Context, b core.ReceiptBook) (core.ReceiptBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.tasks[b.TaskID]; !ok {
		return core.ReceiptBook{}, fmt.Errorf("%w: unknown task %d", core.ErrConflict, b.TaskID)
	}
	if !s.userExists(b.AssignedTo) {
		return core.ReceiptBook{}, fmt.Errorf("%w: unknown assignee", core.ErrConflict)
	}
	for _, existing := range s.st.books {
		if existing.BookNumber == b.BookNumber {
			return core.ReceiptBook{}, fmt.Errorf("%w: book number %q taken", core.ErrConflict, b.BookNumber)
		}
	}
	if b.Status == "" {
		b.Status = core.BookActive
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.TotalReceipts = core.TotalReceiptsFor(b.StartingReceiptNumber, b.EndingReceiptNumber)
	b.ID = s.st.id()
	s.st.books[b.ID] = b
	return b, nil
}

func (s *Store) GetReceiptBook(_ context.Context, id int64) (core.ReceiptBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.books[id]
	if !ok {
		return core.ReceiptBook{}, notFound("receipt book", id)
	}
	return b, nil
}

func (s *Store) UpdateReceiptBook(_ context.Context, b core.ReceiptBook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.st.books[b.ID]
	if !ok {
		return notFound("receipt book", b.ID)
	}
	if !s.userExists(b.AssignedTo) {
		return fmt.Errorf("%w: unknown assignee", core.ErrConflict)
	}
	cur.AssignedTo = b.AssignedTo
	cur.Status = b.Status
	s.st.books[b.ID] = cur
	return nil
}

func (s *Store) ListReceiptBooks(context.Context) ([]core.ReceiptBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.st.books), nil
}

// Receipts

func (s *Store) UsedReceiptNumbers(_ context.Context, bookID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for _, r := range s.st.receipts {
		if r.ReceiptBookID == bookID {
			out = append(out, r.ReceiptNumber)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) CreateReceipt(_ context.Context, r core.Receipt) (core.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.books[r.ReceiptBookID]; !ok {
		return core.Receipt{}, fmt.Errorf("%w: unknown receipt book %d", core.ErrConflict, r.ReceiptBookID)
	}
	if _, ok := s.st.tasks[r.TaskID]; !ok {
		return core.Receipt{}, fmt.Errorf("%w: unknown task %d", core.ErrConflict, r.TaskID)
	}
	for _, existing := range s.st.receipts {
		if existing.ReceiptBookID == r.ReceiptBookID && existing.ReceiptNumber == r.ReceiptNumber {
			return core.Receipt{}, fmt.Errorf("receipt %d in book %d: %w", r.ReceiptNumber, r.ReceiptBookID, core.ErrDuplicateNumber)
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.ID = s.st.id()
	s.st.receipts[r.ID] = r
	return r, nil
}

func (s *Store) GetReceipt(_ context.Context, id int64) (core.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.st.receipts[id]
	if !ok {
		return core.Receipt{}, notFound("receipt", id)
	}
	return r, nil
}

func (s *Store) DeleteReceipt(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.receipts[id]; !ok {
		return notFound("receipt", id)
	}
	delete(s.st.receipts, id)
	return nil
}

func (s *Store) ListReceipts(context.Context) ([]core.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.st.receipts), nil
}

func (s *Store) ListReceiptsByBook(_ context.Context, bookID int64) ([]core.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Receipt
	for _, r := range sortedValues(s.st.receipts) {
		if r.ReceiptBookID == bookID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceiptNumber < out[j].ReceiptNumber })
	return out, nil
}

// Expenses

func (s *Store) CreateExpenseType(_ context.Context, et core.ExpenseType) (core.ExpenseType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.expenseTypes {
		if existing.Name == et.Name {
			return core.ExpenseType{}, fmt.Errorf("%w: expense type %q exists", core.ErrConflict, et.Name)
		}
	}
	if et.Status == "" {
		et.Status = core.ExpenseTypeActive
	}
	et.ID = s.st.id()
	s.st.expenseTypes[et.ID] = et
	return et, nil
}

func (s *Store) GetExpenseType(_ context.Context, id int64) (core.ExpenseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	et, ok := s.st.expenseTypes[id]
	if !ok {
		return core.ExpenseType{}, notFound("expense type", id)
	}
	return et, nil
}

func (s *Store) ListExpenseTypes(context.Context) ([]core.ExpenseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.st.expenseTypes), nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.expenseTypes[e.ExpenseTypeID]; !ok {
		return core.Expense{}, fmt.Errorf("%w: unknown expense type %d", core.ErrConflict, e.ExpenseTypeID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.ID = s.st.id()
	s.st.expenses[e.ID] = e
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.expenses[id]; !ok {
		return notFound("expense", id)
	}
	delete(s.st.expenses, id)
	return nil
}

func (s *Store) ListExpenses(context.Context) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.st.expenses), nil
}

// Published reports

func (s *Store) CreatePublishedReport(_ context.Context, p core.PublishedReport) (core.PublishedReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	p.ID = s.st.id()
	s.st.reports[p.ID] = p
	return p, nil
}

func (s *Store) LatestPublishedReport(context.Context) (core.PublishedReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest core.PublishedReport
	found := false
	for _, p := range s.st.reports {
		if !found || p.PublishedAt.After(latest.PublishedAt) ||
			(p.PublishedAt.Equal(latest.PublishedAt) && p.ID > latest.ID) {
			latest = p
			found = true
		}
	}
	if !found {
		return core.PublishedReport{}, fmt.Errorf("latest published report: %w", core.ErrNotFound)
	}
	return latest, nil
}

func (s *Store) ListPublishedReports(context.Context) ([]core.PublishedReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.st.reports), nil
}

// Bulk

func (s *Store) ExportAll(context.Context) (core.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.Dataset{
		Users:            sortedValues(s.st.users),
		Tasks:            sortedValues(s.st.tasks),
		ReceiptBooks:     sortedValues(s.st.books),
		Receipts:         sortedValues(s.st.receipts),
		Expenses:         sortedValues(s.st.expenses),
		ExpenseTypes:     sortedValues(s.st.expenseTypes),
		PublishedReports: sortedValues(s.st.reports),
	}, nil
}

// ReplaceAll checks references the way the SQL schema would, then swaps.
func (s *Store) ReplaceAll(_ context.Context, ds core.Dataset) error {
	next := newState()
	track := func(id int64) {
		if id > next.nextID {
			next.nextID = id
		}
	}
	ref := func(m map[int64]bool, id *int64) bool { return id == nil || m[*id] }

	userIDs := map[int64]bool{}
	for _, u := range ds.Users {
		if userIDs[u.ID] {
			return fmt.Errorf("%w: duplicate user id %d", core.ErrConflict, u.ID)
		}
		userIDs[u.ID] = true
		next.users[u.ID] = u
		track(u.ID)
	}
	for _, t := range ds.Tasks {
		if !ref(userIDs, t.CreatedBy) {
			return fmt.Errorf("%w: task %d creator", core.ErrConflict, t.ID)
		}
		next.tasks[t.ID] = t
		track(t.ID)
	}
	for _, et := range ds.ExpenseTypes {
		if !ref(userIDs, et.CreatedBy) {
			return fmt.Errorf("%w: expense type %d creator", core.ErrConflict, et.ID)
		}
		next.expenseTypes[et.ID] = et
		track(et.ID)
	}
	for _, b := range ds.ReceiptBooks {
		if _, ok := next.tasks[b.TaskID]; !ok || !ref(userIDs, b.AssignedTo) {
			return fmt.Errorf("%w: receipt book %d references", core.ErrConflict, b.ID)
		}
		b.TotalReceipts = core.TotalReceiptsFor(b.StartingReceiptNumber, b.EndingReceiptNumber)
		next.books[b.ID] = b
		track(b.ID)
	}
	type slot struct{ book, number int64 }
	slots := map[slot]bool{}
	for _, r := range ds.Receipts {
		_, bookOK := next.books[r.ReceiptBookID]
		_, taskOK := next.tasks[r.TaskID]
		if !bookOK || !taskOK || !userIDs[r.EnteredBy] {
			return fmt.Errorf("%w: receipt %d references", core.ErrConflict, r.ID)
		}
		k := slot{r.ReceiptBookID, r.ReceiptNumber}
		if slots[k] {
			return fmt.Errorf("receipt %d: %w", r.ID, core.ErrDuplicateNumber)
		}
		slots[k] = true
		next.receipts[r.ID] = r
		track(r.ID)
	}
	for _, e := range ds.Expenses {
		if _, ok := next.expenseTypes[e.ExpenseTypeID]; !ok || !ref(userIDs, e.EnteredBy) {
			return fmt.Errorf("%w: expense %d references", core.ErrConflict, e.ID)
		}
		next.expenses[e.ID] = e
		track(e.ID)
	}
	for _, p := range ds.PublishedReports {
		if !userIDs[p.PublishedBy] {
			return fmt.Errorf("%w: report %d publisher", core.ErrConflict, p.ID)
		}
		next.reports[p.ID] = p
		track(p.ID)
	}

	s.mu.Lock()
	s.st = next
	s.mu.Unlock()
	return nil
}
