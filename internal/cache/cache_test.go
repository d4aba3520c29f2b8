package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptledger/internal/core"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCacheExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Second)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("other", "w")
	now = now.Add(2 * time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestLocalReportCache(t *testing.T) {
	ctx := context.Background()
	c := NewLocalReportCache(time.Minute)

	_, ok, err := c.GetLatest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetLatest(ctx, core.PublishedReport{ID: 3}))
	r, ok, err := c.GetLatest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), r.ID)

	require.NoError(t, c.Invalidate(ctx))
	_, ok, _ = c.GetLatest(ctx)
	assert.False(t, ok)
}

func TestManagerStopIsIdempotent(t *testing.T) {
	m := NewManager()
	m.Register(NewLocalReportCache(time.Millisecond).Cleaner())
	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestLocalReportCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewLocalReportCache(time.Minute)

	in := core.PublishedReport{ID: 1, ReportData: core.LedgerSnapshot{
		IncomeByTask: []core.TaskIncome{{TaskID: 1, Total: core.Money{Cents: 500}}},
	}}
	require.NoError(t, c.SetLatest(ctx, in))
	in.ReportData.IncomeByTask[0].Total.Cents = 1

	got, ok, err := c.GetLatest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	got.ReportData.IncomeByTask[0].Total.Cents = 2

	again, _, _ := c.GetLatest(ctx)
	assert.Equal(t, int64(500), again.ReportData.IncomeByTask[0].Total.Cents)
}
