package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"receiptledger/internal/amqp"
	"receiptledger/internal/cache"
	"receiptledger/internal/log"
	"receiptledger/internal/services"
	"receiptledger/internal/storage"
	"receiptledger/internal/storage/memory"
)

const defaultReportCacheTTL = 5 * time.Minute

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend opens the store, the report cache and the optional event bus
// and wires them into the services. On error everything opened so far is
// released.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var cleanups []func() error
	release := func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	store, err := f.createStore(ctx, config)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, store.Close)

	reportCache, cacheCleanup, err := f.createCache(ctx, config)
	if err != nil {
		_ = release()
		return nil, err
	}
	cleanups = append(cleanups, cacheCleanup)

	opts := services.Options{Cache: reportCache, Logger: f.logger}
	var events *amqp.Client
	if config.AMQPURL != "" {
		events, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", log.FieldError, err)
			events = nil
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			opts.Events = events
			cleanups = append(cleanups, events.Close)
		}
	}

	gate := services.NewRestoreGate()
	result := &BackendResult{
		Store:   store,
		Cache:   reportCache,
		Events:  events,
		Gate:    gate,
		Ledger:  services.NewLedgerService(store, gate, opts),
		Backup:  services.NewBackupService(store, gate, opts),
		Cleanup: release,
	}

	f.logger.InfoContext(ctx, "Initialized ledger backend",
		"backend", config.Type,
		"redis_cache", config.RedisURL != "",
		"amqp_enabled", events != nil)
	return result, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (storage.Store, error) {
	if config.Type == MemoryBackend {
		return memory.New(), nil
	}
	dialect, _ := config.Type.Dialect()
	store, err := storage.NewSQLStore(ctx, dialect, config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", config.Type, err)
	}
	return store, nil
}

func (f *DefaultFactory) createCache(ctx context.Context, config Config) (cache.ReportCache, func() error, error) {
	ttl := config.ReportCacheTTL
	if ttl <= 0 {
		ttl = defaultReportCacheTTL
	}

	if config.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis report cache: %w", err)
		}
		rc := cache.NewRedisReportCache(client, ttl)
		return rc, rc.Close, nil
	}

	local := cache.NewLocalReportCache(ttl)
	manager := cache.NewManager()
	manager.Register(local.Cleaner())
	manager.StartCleanup(ttl)
	return local, func() error {
		manager.Stop()
		return nil
	}, nil
}
