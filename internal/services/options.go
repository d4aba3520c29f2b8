package services

import (
	"context"
	"time"

	"receiptledger/internal/amqp"
	"receiptledger/internal/cache"
	"receiptledger/internal/log"
)

// EventPublisher is the outbound side channel. *amqp.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Options carries the collaborators shared by the services. Zero values get
// working defaults: no cache, no events, discarded logs, wall clock.
type Options struct {
	Cache  cache.ReportCache
	Events EventPublisher
	Logger *log.Logger
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Cache == nil {
		o.Cache = cache.NopReportCache{}
	}
	if o.Logger == nil {
		o.Logger = log.Discard()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// publish sends ev without failing the caller; the write is already durable.
func publish(ctx context.Context, events EventPublisher, logger *log.Logger, ev *amqp.LedgerEvent) {
	if events == nil {
		logger.DebugContext(ctx, "AMQP client not available, skipping event", log.FieldEventType, ev.Type)
		return
	}
	if err := events.Publish(ctx, ev); err != nil {
		logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventType, ev.Type,
			"entity_id", ev.EntityID,
			log.FieldError, err)
	}
}
