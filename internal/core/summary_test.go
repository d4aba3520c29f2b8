package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateScenario(t *testing.T) {
	tasks := []Task{{ID: 1, Name: "Building fund"}}
	books := []ReceiptBook{{ID: 1, TaskID: 1}}
	receipts := []Receipt{
		{ID: 1, TaskID: 1, ReceiptBookID: 1, Amount: Money{Cents: 10000}},
		{ID: 2, TaskID: 1, ReceiptBookID: 1, Amount: Money{Cents: 25050}},
	}
	expenses := []Expense{{ID: 1, Amount: Money{Cents: 7525}}}

	snap := Aggregate(receipts, expenses, tasks, books)

	assert.Equal(t, "350.50", snap.TotalIncome.String())
	assert.Equal(t, "75.25", snap.TotalExpenses.String())
	assert.Equal(t, "275.25", snap.CurrentBalance.String())
	require.Len(t, snap.IncomeByTask, 1)
	assert.Equal(t, int64(35050), snap.IncomeByTask[0].Total.Cents)
	assert.Equal(t, 1, snap.IncomeByTask[0].ReceiptBookCount)
}

func TestAggregateNegativeBalance(t *testing.T) {
	snap := Aggregate(
		[]Receipt{{TaskID: 1, Amount: Money{Cents: 500}}},
		[]Expense{{Amount: Money{Cents: 1999}}, {Amount: Money{Cents: 1}}},
		nil, nil,
	)
	assert.Equal(t, int64(-1500), snap.CurrentBalance.Cents)
	assert.Equal(t, snap.TotalIncome.Cents-snap.TotalExpenses.Cents, snap.CurrentBalance.Cents)
	assert.Empty(t, snap.IncomeByTask)
}

func TestAggregateIncludesZeroIncomeTasksAndCountsBooks(t *testing.T) {
	tasks := []Task{{ID: 3, Name: "C"}, {ID: 1, Name: "A"}, {ID: 2, Name: "B"}}
	books := []ReceiptBook{{ID: 1, TaskID: 1}, {ID: 2, TaskID: 2}, {ID: 3, TaskID: 2}}
	receipts := []Receipt{
		{TaskID: 1, Amount: Money{Cents: 1}},
		{TaskID: 1, Amount: Money{Cents: 2}},
		{TaskID: 3, Amount: Money{Cents: 10}},
	}

	snap := Aggregate(receipts, nil, tasks, books)

	require.Len(t, snap.IncomeByTask, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{snap.IncomeByTask[0].TaskID, snap.IncomeByTask[1].TaskID, snap.IncomeByTask[2].TaskID})
	assert.Equal(t, int64(3), snap.IncomeByTask[0].Total.Cents)
	assert.Equal(t, int64(0), snap.IncomeByTask[1].Total.Cents)
	assert.Equal(t, 2, snap.IncomeByTask[1].ReceiptBookCount)
	assert.Equal(t, 0, snap.IncomeByTask[2].ReceiptBookCount)

	var sum int64
	for _, ti := range snap.IncomeByTask {
		sum += ti.Total.Cents
	}
	assert.Equal(t, snap.TotalIncome.Cents, sum)
}

func TestAggregateHasNoFloatDrift(t *testing.T) {
	receipts := make([]Receipt, 0, 1000)
	for i := 0; i < 1000; i++ {
		receipts = append(receipts, Receipt{TaskID: 1, Amount: Money{Cents: 10}})
	}
	snap := Aggregate(receipts, nil, []Task{{ID: 1}}, nil)
	assert.Equal(t, "100.00", snap.TotalIncome.String())
}
