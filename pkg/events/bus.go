// Package events provides the in-process message boundary between the
// ingestion pipeline and long-lived workers. Messages form a closed set of
// typed variants; consumers dispatch with an exhaustive switch instead of
// matching on string type tags.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is the sealed interface over the known message kinds.
// Only types in this package implement it.
type Message interface {
	isMessage()
}

// TransactionsReady signals that an ingestion run produced at least one
// persisted transaction and downstream categorization may begin.
type TransactionsReady struct {
	UserID         uuid.UUID
	FileID         uuid.UUID
	TransactionIDs []uuid.UUID
	ProducedAt     time.Time
}

// CategorizationCompleted signals that a categorization batch finished.
type CategorizationCompleted struct {
	UserID      uuid.UUID
	Succeeded   int
	Failed      int
	CompletedAt time.Time
}

// IngestFailed signals a fatal ingestion failure (missing file,
// unsupported type). Row-level failures are not published here.
type IngestFailed struct {
	UserID   uuid.UUID
	Path     string
	Reason   string
	FailedAt time.Time
}

func (TransactionsReady) isMessage()       {}
func (CategorizationCompleted) isMessage() {}
func (IngestFailed) isMessage()            {}

// Handler receives messages of every kind. Dispatch routes each variant to
// the matching method, so adding a kind breaks compilation for handlers
// rather than falling into a default branch at runtime.
type Handler interface {
	HandleTransactionsReady(ctx context.Context, msg TransactionsReady)
	HandleCategorizationCompleted(ctx context.Context, msg CategorizationCompleted)
	HandleIngestFailed(ctx context.Context, msg IngestFailed)
}

// Dispatch routes a message to the handler method for its kind.
func Dispatch(ctx context.Context, h Handler, msg Message) {
	switch m := msg.(type) {
	case TransactionsReady:
		h.HandleTransactionsReady(ctx, m)
	case CategorizationCompleted:
		h.HandleCategorizationCompleted(ctx, m)
	case IngestFailed:
		h.HandleIngestFailed(ctx, m)
	}
}

// Bus fans messages out to subscribed handlers. It is constructed once in
// process assembly and injected into publishers; lifecycle is owned by the
// caller via Start/Stop.
type Bus struct {
	logger *slog.Logger

	mu        sync.Mutex
	handlers  []Handler
	queue     chan Message
	queueSize int
	done      chan struct{}
	running   bool
}

// NewBus creates a bus with a bounded queue.
func NewBus(logger *slog.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Bus{
		logger:    logger,
		queueSize: queueSize,
	}
}

// Subscribe registers a handler. Must be called before Start.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Start begins delivering messages to subscribers.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.queue = make(chan Message, b.queueSize)
	b.done = make(chan struct{})

	// run owns the queue and done channels it was handed; restarts create
	// fresh ones, so a late-scheduled goroutine never sees later state.
	go b.run(b.queue, b.done)
	b.logger.Info("event bus started", slog.Int("handlers", len(b.handlers)))
}

// Stop drains the queue and stops delivery. Publish after Stop is a no-op.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.queue)
	done := b.done
	b.mu.Unlock()

	<-done
	b.logger.Info("event bus stopped")
}

// Publish enqueues a message without blocking the caller. When the queue is
// saturated the message is dropped and logged; delivery reliability belongs
// to the external transport, not this boundary.
func (b *Bus) Publish(ctx context.Context, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}

	select {
	case b.queue <- msg:
	default:
		b.logger.Warn("event queue saturated, dropping message",
			slog.String("kind", kindOf(msg)),
		)
	}
}

func (b *Bus) run(queue <-chan Message, done chan<- struct{}) {
	defer close(done)
	for msg := range queue {
		b.mu.Lock()
		handlers := make([]Handler, len(b.handlers))
		copy(handlers, b.handlers)
		b.mu.Unlock()

		for _, h := range handlers {
			Dispatch(context.Background(), h, msg)
		}
	}
}

func kindOf(msg Message) string {
	switch msg.(type) {
	case TransactionsReady:
		return "transactions_ready"
	case CategorizationCompleted:
		return "categorization_completed"
	case IngestFailed:
		return "ingest_failed"
	}
	return "unknown"
}
