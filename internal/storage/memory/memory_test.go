package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptledger/internal/core"
)

func TestStoreReceiptUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.CreateUser(ctx, core.User{Username: "a", Role: core.RoleAdmin})
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, core.Task{Name: "T"})
	require.NoError(t, err)
	book, err := s.CreateReceiptBook(ctx, core.ReceiptBook{BookNumber: "B", TaskID: task.ID, StartingReceiptNumber: 1, EndingReceiptNumber: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), book.TotalReceipts)

	r := core.Receipt{ReceiptNumber: 1, ReceiptBookID: book.ID, TaskID: task.ID, GiverName: "g", Address: "a", Amount: core.Money{Cents: 1}, EnteredBy: u.ID}
	_, err = s.CreateReceipt(ctx, r)
	require.NoError(t, err)
	_, err = s.CreateReceipt(ctx, r)
	assert.ErrorIs(t, err, core.ErrDuplicateNumber)

	_, err = s.CreateReceiptBook(ctx, core.ReceiptBook{BookNumber: "B", TaskID: task.ID, StartingReceiptNumber: 5, EndingReceiptNumber: 6})
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestStoreLatestPublishedReportBreaksTiesByID(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.LatestPublishedReport(ctx)
	require.ErrorIs(t, err, core.ErrNotFound)

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.CreatePublishedReport(ctx, core.PublishedReport{PublishedAt: at.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.CreatePublishedReport(ctx, core.PublishedReport{PublishedAt: at})
	require.NoError(t, err)
	third, err := s.CreatePublishedReport(ctx, core.PublishedReport{PublishedAt: at.Add(time.Hour)})
	require.NoError(t, err)

	latest, err := s.LatestPublishedReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, third.ID, latest.ID)
}

func TestStoreReplaceAllIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.CreateUser(ctx, core.User{Username: "a", Role: core.RoleAdmin})
	require.NoError(t, err)
	before, err := s.ExportAll(ctx)
	require.NoError(t, err)

	bad := core.Dataset{
		Users:        []core.User{u},
		ReceiptBooks: []core.ReceiptBook{{ID: 7, BookNumber: "B", TaskID: 404, StartingReceiptNumber: 1, EndingReceiptNumber: 1}},
	}
	assert.ErrorIs(t, s.ReplaceAll(ctx, bad), core.ErrConflict)

	after, err := s.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	good := core.Dataset{
		Users: []core.User{{ID: 10, Username: "b", Role: core.RoleManager}},
		Tasks: []core.Task{{ID: 20, Name: "T"}},
	}
	require.NoError(t, s.ReplaceAll(ctx, good))
	task, err := s.CreateTask(ctx, core.Task{Name: "next"})
	require.NoError(t, err)
	assert.Greater(t, task.ID, int64(20))
}
