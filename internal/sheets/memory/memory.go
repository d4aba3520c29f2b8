package memory

import (
	"context"
	"fmt"
	"sync"

	"receiptledger/internal/core"
	ports "receiptledger/internal/sheets"
)

// Mirror keeps appended reports in memory. It backs the worker when no
// spreadsheet is configured and in tests.
type Mirror struct {
	mu   sync.Mutex
	rows []core.PublishedReport
}

var _ ports.ReportMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{}
}

// AppendReport stores the report and returns a synthetic row reference.
func (m *Mirror) AppendReport(_ context.Context, r core.PublishedReport) (string, error) {
	if r.ID <= 0 {
		return "", fmt.Errorf("report id %d: %w", r.ID, core.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return fmt.Sprintf("mem:%d", len(m.rows)), nil
}

func (m *Mirror) MirroredReportIDs(context.Context) (map[int64]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[int64]struct{}, len(m.rows))
	for _, r := range m.rows {
		ids[r.ID] = struct{}{}
	}
	return ids, nil
}

// Reports returns a copy of every appended report in append order.
func (m *Mirror) Reports() []core.PublishedReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.PublishedReport(nil), m.rows...)
}
