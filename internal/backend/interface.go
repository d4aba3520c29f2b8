package backend

import (
	"context"
	"time"

	"receiptledger/internal/amqp"
	"receiptledger/internal/cache"
	"receiptledger/internal/services"
	"receiptledger/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired ledger. Events is nil when AMQP is not
// configured or unreachable.
type BackendResult struct {
	Store  storage.Store
	Cache  cache.ReportCache
	Events *amqp.Client
	Gate   *services.RestoreGate
	Ledger *services.LedgerService
	Backup *services.BackupService

	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific
	DatabaseURL string

	// Report cache; Redis when RedisURL is set, in-process LRU otherwise
	RedisURL       string
	ReportCacheTTL time.Duration

	// Optional event bus
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Dialect maps SQL backends to their storage dialect.
func (bt BackendType) Dialect() (storage.Dialect, bool) {
	switch bt {
	case SQLiteBackend:
		return storage.DialectSQLite, true
	case PostgresBackend:
		return storage.DialectPostgres, true
	default:
		return "", false
	}
}
