package core

import "sort"

// TaskIncome is the per-task slice of a ledger snapshot.
type TaskIncome struct {
	TaskID           int64  `json:"taskId"`
	TaskName         string `json:"taskName"`
	Total            Money  `json:"total"`
	ReceiptBookCount int    `json:"receiptBookCount"`
}

// LedgerSnapshot is a point-in-time set of financial totals.
type LedgerSnapshot struct {
	TotalIncome    Money        `json:"totalIncome"`
	TotalExpenses  Money        `json:"totalExpenses"`
	CurrentBalance Money        `json:"currentBalance"`
	IncomeByTask   []TaskIncome `json:"incomeByTask"`
}

// Aggregate folds the ledger collections into a snapshot.
//
// Income counts every receipt regardless of task or book status. Every task
// appears in IncomeByTask, ordered by id, even with zero income; the book
// count does not depend on whether a book has receipts yet.
func Aggregate(receipts []Receipt, expenses []Expense, tasks []Task, books []ReceiptBook) LedgerSnapshot {
	var snap LedgerSnapshot

	incomeByTask := make(map[int64]int64, len(tasks))
	for _, r := range receipts {
		snap.TotalIncome.Cents += r.Amount.Cents
		incomeByTask[r.TaskID] += r.Amount.Cents
	}
	for _, e := range expenses {
		snap.TotalExpenses.Cents += e.Amount.Cents
	}
	snap.CurrentBalance = snap.TotalIncome.Sub(snap.TotalExpenses)

	booksByTask := make(map[int64]int, len(tasks))
	for _, b := range books {
		booksByTask[b.TaskID]++
	}

	ordered := make([]Task, len(tasks))
	copy(ordered, tasks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	snap.IncomeByTask = make([]TaskIncome, 0, len(ordered))
	for _, t := range ordered {
		snap.IncomeByTask = append(snap.IncomeByTask, TaskIncome{
			TaskID:           t.ID,
			TaskName:         t.Name,
			Total:            Money{Cents: incomeByTask[t.ID]},
			ReceiptBookCount: booksByTask[t.ID],
		})
	}
	return snap
}
