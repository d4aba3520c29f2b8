package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"receiptledger/internal/amqp"
	"receiptledger/internal/backup"
	"receiptledger/internal/cache"
	"receiptledger/internal/core"
	"receiptledger/internal/log"
	"receiptledger/internal/storage"
)

// BackupService exports the whole dataset and restores it atomically.
type BackupService struct {
	store  storage.Store
	gate   *RestoreGate
	cache  cache.ReportCache
	events EventPublisher
	logger *log.Logger
	now    func() time.Time
}

func NewBackupService(store storage.Store, gate *RestoreGate, opts Options) *BackupService {
	opts = opts.withDefaults()
	return &BackupService{
		store:  store,
		gate:   gate,
		cache:  opts.Cache,
		events: opts.Events,
		logger: opts.Logger.WithComponent(log.ComponentBackup),
		now:    opts.Now,
	}
}

// Export returns a consistent copy of every collection.
func (s *BackupService) Export(ctx context.Context, actor core.Actor) (core.Dataset, error) {
	if !actor.IsAdmin() {
		return core.Dataset{}, fmt.Errorf("export: %w", core.ErrForbidden)
	}
	leave, err := s.gate.Enter(ctx)
	if err != nil {
		return core.Dataset{}, err
	}
	defer leave()

	start := time.Now()
	ds, err := s.store.ExportAll(ctx)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("export: %w", err)
	}
	s.logger.InfoContext(ctx, "Dataset exported",
		log.FieldActor, actor.UserID,
		log.FieldRowCounts, rowCounts(ds),
		log.FieldDuration, time.Since(start).Milliseconds())
	return ds, nil
}

// ExportJSON writes the structured document form.
func (s *BackupService) ExportJSON(ctx context.Context, actor core.Actor, w io.Writer) error {
	ds, err := s.Export(ctx, actor)
	if err != nil {
		return err
	}
	return backup.EncodeJSON(w, ds, s.now())
}

// ExportSQL writes the INSERT statement form for dialect. An empty dialect
// targets the backing store's own, or sqlite for the memory store.
func (s *BackupService) ExportSQL(ctx context.Context, actor core.Actor, w io.Writer, dialect storage.Dialect) error {
	switch dialect {
	case "":
		dialect = storage.DialectSQLite
		if d, ok := s.store.(interface{ Dialect() storage.Dialect }); ok {
			dialect = d.Dialect()
		}
	case storage.DialectSQLite, storage.DialectPostgres:
	default:
		return core.NewFieldError("dialect", fmt.Sprintf("unknown dialect %q", dialect))
	}
	ds, err := s.Export(ctx, actor)
	if err != nil {
		return err
	}
	return backup.EncodeSQL(w, ds, dialect, s.now())
}

// Restore replaces the whole dataset with ds. Nothing is applied unless ds
// validates and the storage transaction commits. A concurrent restore gets
// core.ErrRestoreInProgress.
func (s *BackupService) Restore(ctx context.Context, actor core.Actor, ds core.Dataset) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("restore: %w", core.ErrForbidden)
	}
	end, err := s.gate.BeginRestore(ctx)
	if err != nil {
		return err
	}
	defer end()

	ctx, opID := log.WithOperationID(ctx)
	start := time.Now()
	logger := s.logger.With(log.FieldOperationID, opID)

	if err := backup.Validate(ds); err != nil {
		logger.WarnContext(ctx, "Restore rejected", log.FieldError, err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.store.ReplaceAll(ctx, ds); err != nil {
		logger.ErrorContext(ctx, "Restore failed, previous data kept", log.FieldError, err)
		return fmt.Errorf("restore: %w", err)
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		logger.WarnContext(ctx, "Failed to invalidate report cache", log.FieldError, err)
	}
	logger.InfoContext(ctx, "Dataset restored",
		log.FieldActor, actor.UserID,
		log.FieldRowCounts, rowCounts(ds),
		log.FieldDuration, time.Since(start).Milliseconds())
	publish(ctx, s.events, logger, amqp.NewLedgerEvent(amqp.EventBackupRestored, 0, actor.UserID))
	return nil
}

// RestoreJSON decodes a structured document and restores it.
func (s *BackupService) RestoreJSON(ctx context.Context, actor core.Actor, r io.Reader) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("restore: %w", core.ErrForbidden)
	}
	ds, err := backup.DecodeJSON(r)
	if err != nil {
		return err
	}
	return s.Restore(ctx, actor, ds)
}

func rowCounts(ds core.Dataset) map[string]int {
	return map[string]int{
		"users":             len(ds.Users),
		"tasks":             len(ds.Tasks),
		"receipt_books":     len(ds.ReceiptBooks),
		"receipts":          len(ds.Receipts),
		"expenses":          len(ds.Expenses),
		"expense_types":     len(ds.ExpenseTypes),
		"published_reports": len(ds.PublishedReports),
	}
}
