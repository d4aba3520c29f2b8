package backup

import (
	"fmt"

	"receiptledger/internal/core"
)

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

type idSet map[int64]struct{}

func (s idSet) has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) hasOptional(id *int64) bool {
	return id == nil || s.has(*id)
}

// collect records ids and flags duplicates.
func collect[T any](p *problems, kind string, items []T, id func(T) int64) idSet {
	set := make(idSet, len(items))
	for _, it := range items {
		n := id(it)
		if n <= 0 {
			p.addf("%s has non-positive id %d", kind, n)
			continue
		}
		if set.has(n) {
			p.addf("duplicate %s id %d", kind, n)
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// Validate checks that ds can be applied as a whole: every reference
// resolves inside ds and every row satisfies the schema constraints.
// All problems are reported together.
func Validate(ds core.Dataset) error {
	var p problems

	users := collect(&p, "user", ds.Users, func(u core.User) int64 { return u.ID })
	tasks := collect(&p, "task", ds.Tasks, func(t core.Task) int64 { return t.ID })
	types := collect(&p, "expense type", ds.ExpenseTypes, func(et core.ExpenseType) int64 { return et.ID })
	books := collect(&p, "receipt book", ds.ReceiptBooks, func(b core.ReceiptBook) int64 { return b.ID })
	collect(&p, "receipt", ds.Receipts, func(r core.Receipt) int64 { return r.ID })
	collect(&p, "expense", ds.Expenses, func(e core.Expense) int64 { return e.ID })
	collect(&p, "published report", ds.PublishedReports, func(r core.PublishedReport) int64 { return r.ID })

	usernames := map[string]bool{}
	for _, u := range ds.Users {
		if u.Username == "" {
			p.addf("user %d has empty username", u.ID)
		} else if usernames[u.Username] {
			p.addf("duplicate username %q", u.Username)
		}
		usernames[u.Username] = true
		if !u.Role.IsValid() {
			p.addf("user %d has unknown role %q", u.ID, u.Role)
		}
	}

	for _, t := range ds.Tasks {
		if t.Name == "" {
			p.addf("task %d has empty name", t.ID)
		}
		if !t.Status.IsValid() {
			p.addf("task %d has unknown status %q", t.ID, t.Status)
		}
		if !users.hasOptional(t.CreatedBy) {
			p.addf("task %d references missing user %d", t.ID, *t.CreatedBy)
		}
	}

	typeNames := map[string]bool{}
	for _, et := range ds.ExpenseTypes {
		if typeNames[et.Name] {
			p.addf("duplicate expense type name %q", et.Name)
		}
		typeNames[et.Name] = true
		if !et.Status.IsValid() {
			p.addf("expense type %d has unknown status %q", et.ID, et.Status)
		}
		if !users.hasOptional(et.CreatedBy) {
			p.addf("expense type %d references missing user %d", et.ID, *et.CreatedBy)
		}
	}

	bookByID := make(map[int64]core.ReceiptBook, len(ds.ReceiptBooks))
	bookNumbers := map[string]bool{}
	for _, b := range ds.ReceiptBooks {
		bookByID[b.ID] = b
		if bookNumbers[b.BookNumber] {
			p.addf("duplicate book number %q", b.BookNumber)
		}
		bookNumbers[b.BookNumber] = true
		if b.StartingReceiptNumber <= 0 || b.EndingReceiptNumber < b.StartingReceiptNumber {
			p.addf("receipt book %d has invalid range [%d, %d]", b.ID, b.StartingReceiptNumber, b.EndingReceiptNumber)
		}
		if !b.Status.IsValid() {
			p.addf("receipt book %d has unknown status %q", b.ID, b.Status)
		}
		if !tasks.has(b.TaskID) {
			p.addf("receipt book %d references missing task %d", b.ID, b.TaskID)
		}
		if !users.hasOptional(b.AssignedTo) {
			p.addf("receipt book %d references missing user %d", b.ID, *b.AssignedTo)
		}
	}

	type slot struct{ book, number int64 }
	slots := map[slot]int64{}
	for _, r := range ds.Receipts {
		if r.Amount.Cents <= 0 {
			p.addf("receipt %d has non-positive amount %s", r.ID, r.Amount)
		}
		if !users.has(r.EnteredBy) {
			p.addf("receipt %d references missing user %d", r.ID, r.EnteredBy)
		}
		if !tasks.has(r.TaskID) {
			p.addf("receipt %d references missing task %d", r.ID, r.TaskID)
		}
		if !books.has(r.ReceiptBookID) {
			p.addf("receipt %d references missing receipt book %d", r.ID, r.ReceiptBookID)
			continue
		}
		b := bookByID[r.ReceiptBookID]
		if !b.Contains(r.ReceiptNumber) {
			p.addf("receipt %d number %d outside book %d range [%d, %d]", r.ID, r.ReceiptNumber, b.ID, b.StartingReceiptNumber, b.EndingReceiptNumber)
		}
		if r.TaskID != b.TaskID {
			p.addf("receipt %d task %d differs from book %d task %d", r.ID, r.TaskID, b.ID, b.TaskID)
		}
		k := slot{r.ReceiptBookID, r.ReceiptNumber}
		if other, dup := slots[k]; dup {
			p.addf("receipts %d and %d share number %d in book %d", other, r.ID, r.ReceiptNumber, r.ReceiptBookID)
		} else {
			slots[k] = r.ID
		}
	}

	for _, e := range ds.Expenses {
		if e.Amount.Cents <= 0 {
			p.addf("expense %d has non-positive amount %s", e.ID, e.Amount)
		}
		if e.ExpenseDate.IsZero() {
			p.addf("expense %d has no date", e.ID)
		}
		if !types.has(e.ExpenseTypeID) {
			p.addf("expense %d references missing expense type %d", e.ID, e.ExpenseTypeID)
		}
		if !users.hasOptional(e.EnteredBy) {
			p.addf("expense %d references missing user %d", e.ID, *e.EnteredBy)
		}
	}

	for _, r := range ds.PublishedReports {
		if !users.has(r.PublishedBy) {
			p.addf("published report %d references missing user %d", r.ID, r.PublishedBy)
		}
		if r.PublishedAt.IsZero() {
			p.addf("published report %d has no publish time", r.ID)
		}
	}

	if len(p) > 0 {
		return &core.InvalidSnapshotError{Problems: p}
	}
	return nil
}
