package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"receiptledger/internal/amqp"
	"receiptledger/internal/core"
	"receiptledger/internal/log"
	"receiptledger/internal/sheets"
)

// ReportLister is the read side the worker needs. Both the storage layer and
// services.LedgerService satisfy it.
type ReportLister interface {
	ListPublishedReports(ctx context.Context) ([]core.PublishedReport, error)
}

// ReportMirrorWorker copies published reports to an external sheet. Events
// may be redelivered, so every append is preceded by a lookup of the ids the
// mirror already holds.
type ReportMirrorWorker struct {
	reports ReportLister
	mirror  sheets.ReportMirror
	logger  *log.Logger

	// mu makes lookup plus append atomic within the process.
	mu sync.Mutex
}

func NewReportMirrorWorker(reports ReportLister, mirror sheets.ReportMirror, logger *log.Logger) *ReportMirrorWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportMirrorWorker{
		reports: reports,
		mirror:  mirror,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent processes one ledger event. Only report and restore events
// concern the mirror; everything else is acknowledged untouched.
func (w *ReportMirrorWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	switch ev.Type {
	case amqp.EventReportPublished:
		return w.mirrorReport(ctx, ev.EntityID)
	case amqp.EventBackupRestored:
		_, err := w.SyncPending(ctx)
		return err
	default:
		w.logger.DebugContext(ctx, "Ignoring ledger event", log.FieldEventType, ev.Type)
		return nil
	}
}

func (w *ReportMirrorWorker) mirrorReport(ctx context.Context, reportID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	reports, err := w.reports.ListPublishedReports(ctx)
	if err != nil {
		return fmt.Errorf("list published reports: %w", err)
	}
	var report *core.PublishedReport
	for i := range reports {
		if reports[i].ID == reportID {
			report = &reports[i]
			break
		}
	}
	if report == nil {
		// Replaced by a restore before the event was consumed.
		w.logger.WarnContext(ctx, "Published report no longer exists, skipping", log.FieldReportID, reportID)
		return nil
	}

	mirrored, err := w.mirror.MirroredReportIDs(ctx)
	if err != nil {
		return fmt.Errorf("read mirrored reports: %w", err)
	}
	if _, ok := mirrored[reportID]; ok {
		w.logger.DebugContext(ctx, "Report already mirrored", log.FieldReportID, reportID)
		return nil
	}
	return w.append(ctx, *report)
}

// SyncPending mirrors every published report the sheet does not hold yet,
// oldest first. It recovers from missed events and worker downtime.
func (w *ReportMirrorWorker) SyncPending(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	reports, err := w.reports.ListPublishedReports(ctx)
	if err != nil {
		return 0, fmt.Errorf("list published reports: %w", err)
	}
	mirrored, err := w.mirror.MirroredReportIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("read mirrored reports: %w", err)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].PublishedAt.Equal(reports[j].PublishedAt) {
			return reports[i].PublishedAt.Before(reports[j].PublishedAt)
		}
		return reports[i].ID < reports[j].ID
	})

	synced := 0
	for _, r := range reports {
		if _, ok := mirrored[r.ID]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.append(ctx, r); err != nil {
			return synced, err
		}
		synced++
	}

	w.logger.InfoContext(ctx, "Report mirror sync completed",
		"total", len(reports),
		"synced", synced,
		log.FieldDuration, time.Since(start).Milliseconds())
	return synced, nil
}

func (w *ReportMirrorWorker) append(ctx context.Context, r core.PublishedReport) error {
	ref, err := w.mirror.AppendReport(ctx, r)
	if err != nil {
		return fmt.Errorf("mirror report %d: %w", r.ID, err)
	}
	w.logger.InfoContext(ctx, "Mirrored published report",
		log.FieldReportID, r.ID,
		log.FieldOperation, log.OpMirror,
		"sheets_ref", ref)
	return nil
}
