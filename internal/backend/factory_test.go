package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptledger/internal/config"
	"receiptledger/internal/core"
	"receiptledger/internal/services"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:    "postgres",
		DatabaseURL:    "postgres://db/ledger",
		RedisURL:       "redis://cache:6379",
		ReportCacheTTL: time.Minute,
		AMQPURL:        "amqp://mq/",
		AMQPExchange:   "ledger",
		AMQPQueue:      "events",
	})
	require.NoError(t, err)
	assert.Equal(t, PostgresBackend, cfg.Type)
	assert.Equal(t, "postgres://db/ledger", cfg.DSN())
	assert.Equal(t, time.Minute, cfg.ReportCacheTTL)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "ledger.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"unknown", Config{Type: "sheets"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://mq/", AMQPExchange: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBackendTypes(t *testing.T) {
	assert.Equal(t, []string{"sqlite", "postgres", "memory"}, GetBackendTypeStrings())
	_, ok := MemoryBackend.Dialect()
	assert.False(t, ok)
	d, ok := SQLiteBackend.Dialect()
	assert.True(t, ok)
	assert.Equal(t, "sqlite", string(d))
}

func exerciseLedger(t *testing.T, res *BackendResult) {
	t.Helper()
	ctx := context.Background()

	u, err := res.Store.CreateUser(ctx, core.User{Username: "admin", DisplayName: "Admin", Role: core.RoleAdmin})
	require.NoError(t, err)
	admin := core.Actor{UserID: u.ID, Role: core.RoleAdmin}

	task, err := res.Ledger.CreateTask(ctx, admin, core.Task{Name: "Hall"})
	require.NoError(t, err)
	book, err := res.Ledger.CreateReceiptBook(ctx, admin, core.ReceiptBook{
		BookNumber: "1", TaskID: task.ID, StartingReceiptNumber: 1, EndingReceiptNumber: 2,
	})
	require.NoError(t, err)
	_, err = res.Ledger.CreateReceipt(ctx, admin, services.NewReceipt{
		BookID: book.ID, GiverName: "G", Address: "A", Amount: core.Money{Cents: 100},
	})
	require.NoError(t, err)

	published, err := res.Ledger.PublishReport(ctx, admin)
	require.NoError(t, err)
	latest, err := res.Ledger.LatestPublishedReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, published.ID, latest.ID)

	ds, err := res.Backup.Export(ctx, admin)
	require.NoError(t, err)
	require.NoError(t, res.Backup.Restore(ctx, admin, ds))
}

func TestCreateBackendMemory(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	defer func() { assert.NoError(t, res.Cleanup()) }()

	assert.Nil(t, res.Events)
	exerciseLedger(t, res)
}

func TestCreateBackendSQLite(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db"),
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, res.Cleanup()) }()

	exerciseLedger(t, res)
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: PostgresBackend})
	assert.Error(t, err)
}
