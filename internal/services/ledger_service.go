package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"receiptledger/internal/amqp"
	"receiptledger/internal/cache"
	"receiptledger/internal/core"
	"receiptledger/internal/log"
	"receiptledger/internal/storage"
)

// LedgerService orchestrates receipts, expenses and published reports over
// an injected Store. Every method runs inside the restore gate.
type LedgerService struct {
	store  storage.Store
	gate   *RestoreGate
	locks  *BookLocks
	cache  cache.ReportCache
	events EventPublisher
	logger *log.Logger
	audit  *log.StructuredLogger
	now    func() time.Time

	flight singleflight.Group
	// reportMu orders publish against cache refills so a stale report is
	// never written back after an invalidation.
	reportMu sync.RWMutex
}

// NewReceipt is the caller-supplied part of a receipt. Number is optional;
// when nil the lowest free number of the book is used.
type NewReceipt struct {
	BookID    int64
	Number    *int64
	GiverName string
	Address   string
	Phone     string
	Amount    core.Money
}

// BookUsage summarizes how much of a book is consumed.
type BookUsage struct {
	Book       core.ReceiptBook
	Used       int64
	Free       int64
	NextNumber *int64
}

func NewLedgerService(store storage.Store, gate *RestoreGate, opts Options) *LedgerService {
	opts = opts.withDefaults()
	logger := opts.Logger.WithComponent(log.ComponentLedger)
	return &LedgerService{
		store:  store,
		gate:   gate,
		locks:  NewBookLocks(),
		cache:  opts.Cache,
		events: opts.Events,
		logger: logger,
		audit:  log.NewStructuredLogger(logger),
		now:    opts.Now,
	}
}

// ResolveActor turns a user id into an Actor carrying the stored role.
func (s *LedgerService) ResolveActor(ctx context.Context, userID int64) (core.Actor, error) {
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.Actor{}, err
	}
	defer leave()
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return core.Actor{}, fmt.Errorf("resolve actor: %w", err)
	}
	return core.Actor{UserID: u.ID, Role: u.Role}, nil
}

// AllocateReceiptNumber reports the lowest free number of a book. It does
// not reserve it; CreateReceipt allocates under the book lock.
func (s *LedgerService) AllocateReceiptNumber(ctx context.Context, bookID int64) (int64, error) {
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return 0, err
	}
	defer leave()

	book, err := s.store.GetReceiptBook(ctx, bookID)
	if err != nil {
		return 0, fmt.Errorf("allocate: %w", err)
	}
	return s.nextNumber(ctx, book)
}

func (s *LedgerService) nextNumber(ctx context.Context, book core.ReceiptBook) (int64, error) {
	used, err := s.store.UsedReceiptNumbers(ctx, book.ID)
	if err != nil {
		return 0, err
	}
	return core.NextReceiptNumber(book, core.NumberSet(used))
}

// CreateReceipt records a donation in a book. The number is checked or
// allocated while the book lock is held; the unique constraint in storage
// backs this up across processes, and an allocated number that loses that
// race is re-allocated once.
func (s *LedgerService) CreateReceipt(ctx context.Context, actor core.Actor, in NewReceipt) (core.Receipt, error) {
	if !actor.Role.IsValid() {
		return core.Receipt{}, fmt.Errorf("create receipt: %w", core.ErrForbidden)
	}
	draft := core.Receipt{
		ReceiptBookID: in.BookID,
		GiverName:     strings.TrimSpace(in.GiverName),
		Address:       strings.TrimSpace(in.Address),
		PhoneNumber:   strings.TrimSpace(in.Phone),
		Amount:        in.Amount,
		EnteredBy:     actor.UserID,
	}
	if err := draft.Validate(); err != nil {
		return core.Receipt{}, err
	}

	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.Receipt{}, err
	}
	defer leave()

	// The book is read under its lock so status and assignment cannot change
	// before the insert.
	unlock, err := s.locks.Lock(ctx, in.BookID)
	if err != nil {
		return core.Receipt{}, err
	}
	defer unlock()

	book, err := s.store.GetReceiptBook(ctx, in.BookID)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("create receipt: %w", err)
	}
	if actor.Role == core.RoleCollector && (book.AssignedTo == nil || *book.AssignedTo != actor.UserID) {
		return core.Receipt{}, fmt.Errorf("book %d is not assigned to user %d: %w", book.ID, actor.UserID, core.ErrForbidden)
	}
	if book.Status == core.BookCompleted {
		return core.Receipt{}, fmt.Errorf("book %d is completed: %w", book.ID, core.ErrConflict)
	}
	draft.TaskID = book.TaskID

	created, err := s.insertReceipt(ctx, book, draft, in.Number)
	if err != nil {
		return core.Receipt{}, err
	}

	s.audit.LogReceiptCreated(ctx, created.ID, book.ID, created.ReceiptNumber, created.Amount.Cents, in.Number == nil)
	publish(ctx, s.events, s.logger, amqp.NewLedgerEvent(amqp.EventReceiptCreated, created.ID, actor.UserID))
	return created, nil
}

func (s *LedgerService) insertReceipt(ctx context.Context, book core.ReceiptBook, draft core.Receipt, explicit *int64) (core.Receipt, error) {
	attempts := 2
	if explicit != nil {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		used, err := s.store.UsedReceiptNumbers(ctx, book.ID)
		if err != nil {
			return core.Receipt{}, fmt.Errorf("create receipt: %w", err)
		}
		set := core.NumberSet(used)
		if explicit != nil {
			if err := core.CheckReceiptNumber(book, *explicit, set); err != nil {
				return core.Receipt{}, fmt.Errorf("receipt number %d in book %d: %w", *explicit, book.ID, err)
			}
			draft.ReceiptNumber = *explicit
		} else {
			n, err := core.NextReceiptNumber(book, set)
			if err != nil {
				return core.Receipt{}, err
			}
			draft.ReceiptNumber = n
		}

		created, err := s.store.CreateReceipt(ctx, draft)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, core.ErrDuplicateNumber) {
			return core.Receipt{}, fmt.Errorf("create receipt: %w", err)
		}
		lastErr = err
		s.logger.WarnContext(ctx, "Receipt number taken concurrently",
			log.FieldBookID, book.ID, log.FieldReceiptNo, draft.ReceiptNumber)
	}
	return core.Receipt{}, lastErr
}

// DeleteReceipt removes a receipt; its number becomes free again.
func (s *LedgerService) DeleteReceipt(ctx context.Context, actor core.Actor, id int64) error {
	if !actor.CanManage() {
		return fmt.Errorf("delete receipt: %w", core.ErrForbidden)
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	r, err := s.store.GetReceipt(ctx, id)
	if err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	unlock, err := s.locks.Lock(ctx, r.ReceiptBookID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.DeleteReceipt(ctx, id); err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	s.logger.InfoContext(ctx, "Receipt deleted",
		log.FieldReceiptID, id, log.FieldBookID, r.ReceiptBookID, log.FieldReceiptNo, r.ReceiptNumber, log.FieldActor, actor.UserID)
	publish(ctx, s.events, s.logger, amqp.NewLedgerEvent(amqp.EventReceiptDeleted, id, actor.UserID))
	return nil
}

// GetFinancials computes the live snapshot. Concurrent callers share one
// computation, which runs detached from any single caller's cancellation;
// each caller stops waiting when its own ctx ends.
func (s *LedgerService) GetFinancials(ctx context.Context) (core.LedgerSnapshot, error) {
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.LedgerSnapshot{}, err
	}
	defer leave()

	key := fmt.Sprintf("financials/%d", s.gate.Generation())
	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return s.computeSnapshot(detached)
	})
	select {
	case <-ctx.Done():
		return core.LedgerSnapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.LedgerSnapshot{}, res.Err
		}
		return res.Val.(core.LedgerSnapshot), nil
	}
}

func (s *LedgerService) computeSnapshot(ctx context.Context) (core.LedgerSnapshot, error) {
	var (
		receipts []core.Receipt
		expenses []core.Expense
		tasks    []core.Task
		books    []core.ReceiptBook
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { receipts, err = s.store.ListReceipts(gctx); return })
	g.Go(func() (err error) { expenses, err = s.store.ListExpenses(gctx); return })
	g.Go(func() (err error) { tasks, err = s.store.ListTasks(gctx); return })
	g.Go(func() (err error) { books, err = s.store.ListReceiptBooks(gctx); return })
	if err := g.Wait(); err != nil {
		return core.LedgerSnapshot{}, fmt.Errorf("load ledger: %w", err)
	}
	return core.Aggregate(receipts, expenses, tasks, books), nil
}

// PublishReport freezes the current snapshot as a new published report.
func (s *LedgerService) PublishReport(ctx context.Context, actor core.Actor) (core.PublishedReport, error) {
	if !actor.CanManage() {
		return core.PublishedReport{}, fmt.Errorf("publish report: %w", core.ErrForbidden)
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.PublishedReport{}, err
	}
	defer leave()

	snap, err := s.computeSnapshot(ctx)
	if err != nil {
		return core.PublishedReport{}, err
	}

	s.reportMu.Lock()
	report, err := s.store.CreatePublishedReport(ctx, core.PublishedReport{
		ReportData:  snap,
		PublishedAt: s.now(),
		PublishedBy: actor.UserID,
	})
	if err == nil {
		if cerr := s.cache.Invalidate(ctx); cerr != nil {
			s.logger.WarnContext(ctx, "Failed to invalidate report cache", log.FieldError, cerr)
		}
	}
	s.reportMu.Unlock()
	if err != nil {
		return core.PublishedReport{}, fmt.Errorf("publish report: %w", err)
	}

	s.audit.LogReportPublished(ctx, report.ID, snap.TotalIncome.Cents, snap.TotalExpenses.Cents)
	publish(ctx, s.events, s.logger, amqp.NewLedgerEvent(amqp.EventReportPublished, report.ID, actor.UserID))
	return report, nil
}

// LatestPublishedReport serves the frozen latest report, never a fresh
// computation. Returns core.ErrNotFound before the first publish.
func (s *LedgerService) LatestPublishedReport(ctx context.Context) (core.PublishedReport, error) {
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.PublishedReport{}, err
	}
	defer leave()

	s.reportMu.RLock()
	defer s.reportMu.RUnlock()

	if r, ok, err := s.cache.GetLatest(ctx); err != nil {
		s.logger.WarnContext(ctx, "Report cache read failed", log.FieldError, err)
	} else if ok {
		return r, nil
	}

	r, err := s.store.LatestPublishedReport(ctx)
	if err != nil {
		return core.PublishedReport{}, err
	}
	if err := s.cache.SetLatest(ctx, r); err != nil {
		s.logger.WarnContext(ctx, "Report cache write failed", log.FieldError, err)
	}
	return r, nil
}

// ListPublishedReports returns every published report, newest first.
func (s *LedgerService) ListPublishedReports(ctx context.Context) ([]core.PublishedReport, error) {
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	reports, err := s.store.ListPublishedReports(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].PublishedAt.Equal(reports[j].PublishedAt) {
			return reports[i].PublishedAt.After(reports[j].PublishedAt)
		}
		return reports[i].ID > reports[j].ID
	})
	return reports, nil
}

// Tasks

func (s *LedgerService) CreateTask(ctx context.Context, actor core.Actor, t core.Task) (core.Task, error) {
	if !actor.CanManage() {
		return core.Task{}, fmt.Errorf("create task: %w", core.ErrForbidden)
	}
	t.Name = strings.TrimSpace(t.Name)
	if err := t.Validate(); err != nil {
		return core.Task{}, err
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.Task{}, err
	}
	defer leave()

	t.ID = 0
	t.CreatedBy = &actor.UserID
	t.CreatedAt = s.now()
	created, err := s.store.CreateTask(ctx, t)
	if err != nil {
		return core.Task{}, fmt.Errorf("create task: %w", err)
	}
	return created, nil
}

func (s *LedgerService) UpdateTaskStatus(ctx context.Context, actor core.Actor, id int64, status core.TaskStatus) (core.Task, error) {
	if !actor.CanManage() {
		return core.Task{}, fmt.Errorf("update task: %w", core.ErrForbidden)
	}
	if !status.IsValid() {
		return core.Task{}, core.NewFieldError("status", "unknown status "+string(status))
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.Task{}, err
	}
	defer leave()

	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return core.Task{}, fmt.Errorf("update task: %w", err)
	}
	t.Status = status
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return core.Task{}, fmt.Errorf("update task: %w", err)
	}
	return t, nil
}

// Receipt books

func (s *LedgerService) CreateReceiptBook(ctx context.Context, actor core.Actor, b core.ReceiptBook) (core.ReceiptBook, error) {
	if !actor.CanManage() {
		return core.ReceiptBook{}, fmt.Errorf("create receipt book: %w", core.ErrForbidden)
	}
	b.BookNumber = strings.TrimSpace(b.BookNumber)
	if b.Status == "" {
		b.Status = core.BookActive
		if b.AssignedTo != nil {
			b.Status = core.BookAssigned
		}
	}
	if err := b.Validate(); err != nil {
		return core.ReceiptBook{}, err
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.ReceiptBook{}, err
	}
	defer leave()

	if _, err := s.store.GetTask(ctx, b.TaskID); err != nil {
		return core.ReceiptBook{}, fmt.Errorf("create receipt book: task %d: %w", b.TaskID, err)
	}
	if b.AssignedTo != nil {
		if _, err := s.store.GetUser(ctx, *b.AssignedTo); err != nil {
			return core.ReceiptBook{}, fmt.Errorf("create receipt book: assignee: %w", err)
		}
	}
	b.ID = 0
	b.CreatedAt = s.now()
	created, err := s.store.CreateReceiptBook(ctx, b)
	if err != nil {
		return core.ReceiptBook{}, fmt.Errorf("create receipt book: %w", err)
	}
	return created, nil
}

func (s *LedgerService) AssignReceiptBook(ctx context.Context, actor core.Actor, bookID, userID int64) (core.ReceiptBook, error) {
	if !actor.CanManage() {
		return core.ReceiptBook{}, fmt.Errorf("assign receipt book: %w", core.ErrForbidden)
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.ReceiptBook{}, err
	}
	defer leave()

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return core.ReceiptBook{}, fmt.Errorf("assign receipt book: user: %w", err)
	}
	return s.updateBook(ctx, bookID, func(b *core.ReceiptBook) error {
		if b.Status == core.BookCompleted {
			return fmt.Errorf("book %d is completed: %w", b.ID, core.ErrConflict)
		}
		b.AssignedTo = &userID
		b.Status = core.BookAssigned
		return nil
	})
}

func (s *LedgerService) CompleteReceiptBook(ctx context.Context, actor core.Actor, bookID int64) (core.ReceiptBook, error) {
	if !actor.CanManage() {
		return core.ReceiptBook{}, fmt.Errorf("complete receipt book: %w", core.ErrForbidden)
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.ReceiptBook{}, err
	}
	defer leave()

	return s.updateBook(ctx, bookID, func(b *core.ReceiptBook) error {
		b.Status = core.BookCompleted
		return nil
	})
}

// updateBook applies change under the book lock so it cannot interleave with
// a receipt being created in the same book.
func (s *LedgerService) updateBook(ctx context.Context, bookID int64, change func(*core.ReceiptBook) error) (core.ReceiptBook, error) {
	unlock, err := s.locks.Lock(ctx, bookID)
	if err != nil {
		return core.ReceiptBook{}, err
	}
	defer unlock()

	b, err := s.store.GetReceiptBook(ctx, bookID)
	if err != nil {
		return core.ReceiptBook{}, fmt.Errorf("update receipt book: %w", err)
	}
	if err := change(&b); err != nil {
		return core.ReceiptBook{}, err
	}
	if err := s.store.UpdateReceiptBook(ctx, b); err != nil {
		return core.ReceiptBook{}, fmt.Errorf("update receipt book: %w", err)
	}
	return b, nil
}

// BookUsage reports consumed and free slots of a book.
func (s *LedgerService) BookUsage(ctx context.Context, bookID int64) (BookUsage, error) {
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return BookUsage{}, err
	}
	defer leave()

	b, err := s.store.GetReceiptBook(ctx, bookID)
	if err != nil {
		return BookUsage{}, fmt.Errorf("book usage: %w", err)
	}
	used, err := s.store.UsedReceiptNumbers(ctx, bookID)
	if err != nil {
		return BookUsage{}, fmt.Errorf("book usage: %w", err)
	}
	set := core.NumberSet(used)
	var inRange int64
	for n := range set {
		if b.Contains(n) {
			inRange++
		}
	}
	u := BookUsage{Book: b, Used: inRange, Free: b.TotalReceipts - inRange}
	if n, err := core.NextReceiptNumber(b, set); err == nil {
		u.NextNumber = &n
	}
	return u, nil
}

// Expenses

func (s *LedgerService) CreateExpenseType(ctx context.Context, actor core.Actor, name string) (core.ExpenseType, error) {
	if !actor.CanManage() {
		return core.ExpenseType{}, fmt.Errorf("create expense type: %w", core.ErrForbidden)
	}
	et := core.ExpenseType{Name: strings.TrimSpace(name), Status: core.ExpenseTypeActive, CreatedBy: &actor.UserID}
	if err := et.Validate(); err != nil {
		return core.ExpenseType{}, err
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.ExpenseType{}, err
	}
	defer leave()

	created, err := s.store.CreateExpenseType(ctx, et)
	if err != nil {
		return core.ExpenseType{}, fmt.Errorf("create expense type: %w", err)
	}
	return created, nil
}

func (s *LedgerService) CreateExpense(ctx context.Context, actor core.Actor, e core.Expense) (core.Expense, error) {
	if !actor.CanManage() {
		return core.Expense{}, fmt.Errorf("create expense: %w", core.ErrForbidden)
	}
	e.Description = strings.TrimSpace(e.Description)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.Expense{}, err
	}
	defer leave()

	et, err := s.store.GetExpenseType(ctx, e.ExpenseTypeID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: expense type %d: %w", e.ExpenseTypeID, err)
	}
	if et.Status != core.ExpenseTypeActive {
		return core.Expense{}, core.NewFieldError("expenseTypeId", "expense type is inactive")
	}
	e.ID = 0
	e.EnteredBy = &actor.UserID
	e.CreatedAt = s.now()
	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	s.logger.InfoContext(ctx, "Expense recorded", "expense_id", created.ID, log.FieldAmountCents, created.Amount.Cents)
	return created, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, actor core.Actor, id int64) error {
	if !actor.CanManage() {
		return fmt.Errorf("delete expense: %w", core.ErrForbidden)
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}
