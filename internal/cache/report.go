package cache

import (
	"context"
	"time"

	"receiptledger/internal/core"
)

const latestReportKey = "ledger:report:latest"

// ReportCache holds the frozen latest published report for the public read
// path. Implementations may lose entries at any time; callers fall back to
// storage on a miss.
type ReportCache interface {
	GetLatest(ctx context.Context) (core.PublishedReport, bool, error)
	SetLatest(ctx context.Context, r core.PublishedReport) error
	Invalidate(ctx context.Context) error
}

// LocalReportCache keeps the latest report in the in-process LRU.
type LocalReportCache struct {
	lru *LRUCache[core.PublishedReport]
}

func NewLocalReportCache(ttl time.Duration) *LocalReportCache {
	return &LocalReportCache{lru: NewLRUCache[core.PublishedReport](1, ttl)}
}

// Cleaner exposes the LRU so a Manager can expire it.
func (c *LocalReportCache) Cleaner() Cleaner { return c.lru }

func (c *LocalReportCache) GetLatest(context.Context) (core.PublishedReport, bool, error) {
	r, ok := c.lru.Get(latestReportKey)
	if !ok {
		return core.PublishedReport{}, false, nil
	}
	return cloneReport(r), true, nil
}

func (c *LocalReportCache) SetLatest(_ context.Context, r core.PublishedReport) error {
	c.lru.Set(latestReportKey, cloneReport(r))
	return nil
}

// cloneReport detaches the per-task slice so callers cannot edit the cached
// copy in place.
func cloneReport(r core.PublishedReport) core.PublishedReport {
	if r.ReportData.IncomeByTask != nil {
		r.ReportData.IncomeByTask = append([]core.TaskIncome(nil), r.ReportData.IncomeByTask...)
	}
	return r
}

func (c *LocalReportCache) Invalidate(context.Context) error {
	c.lru.Delete(latestReportKey)
	return nil
}

// NopReportCache never hits.
type NopReportCache struct{}

func (NopReportCache) GetLatest(context.Context) (core.PublishedReport, bool, error) {
	return core.PublishedReport{}, false, nil
}
func (NopReportCache) SetLatest(context.Context, core.PublishedReport) error { return nil }
func (NopReportCache) Invalidate(context.Context) error                     { return nil }
