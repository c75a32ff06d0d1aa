// Package engine holds the chat domain: accounts, the follow graph, the
// conversation request state machine and message delivery.
package engine

import (
	"context"
	"time"

	"chit-chat/internal/database"
	"chit-chat/internal/events"
	"chit-chat/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

const defaultBcryptCost = 12

// MessageSink receives every persisted message, e.g. a Kafka topic.
type MessageSink interface {
	PublishMessage(ctx context.Context, ev events.MessageEvent) error
}

// Engine coordinates the store and the event broker.
type Engine struct {
	db         database.DBAdapter
	broker     *events.Broker
	sink       MessageSink
	metrics    *utils.MetricsCollector
	bcryptCost int
}

type Option func(*Engine)

func WithMessageSink(sink MessageSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithBcryptCost lowers the hashing cost, mainly for tests.
func WithBcryptCost(cost int) Option {
	return func(e *Engine) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			e.bcryptCost = cost
		}
	}
}

func New(db database.DBAdapter, broker *events.Broker, metrics *utils.MetricsCollector, opts ...Option) *Engine {
	e := &Engine{
		db:         db,
		broker:     broker,
		metrics:    metrics,
		bcryptCost: defaultBcryptCost,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) DB() database.DBAdapter { return e.db }

func (e *Engine) Broker() *events.Broker { return e.broker }

// observe records the latency of an operation started at start.
func (e *Engine) observe(operation string, start time.Time) {
	if e.metrics != nil {
		e.metrics.AddOperationLatency(operation, time.Since(start))
	}
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(ctx, ev)
}
