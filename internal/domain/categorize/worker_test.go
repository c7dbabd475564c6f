package categorize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincopilot-dev/fincopilot/internal/domain/chart"
	"github.com/fincopilot-dev/fincopilot/internal/domain/transaction"
	"github.com/fincopilot-dev/fincopilot/pkg/events"
)

type workerStore struct {
	txs        map[uuid.UUID]*transaction.Transaction
	appended   []transaction.Categorization
	updated    map[uuid.UUID]string
	failAppend bool
}

func newWorkerStore() *workerStore {
	return &workerStore{
		txs:     map[uuid.UUID]*transaction.Transaction{},
		updated: map[uuid.UUID]string{},
	}
}

func (s *workerStore) GetByID(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	tx, ok := s.txs[id]
	if !ok {
		return nil, transaction.ErrNotFound
	}
	return tx, nil
}

func (s *workerStore) UpdateCategory(_ context.Context, id uuid.UUID, code string, _ float64) error {
	s.updated[id] = code
	return nil
}

func (s *workerStore) AppendCategorization(_ context.Context, c *transaction.Categorization) error {
	if s.failAppend {
		return errors.New("disk full")
	}
	s.appended = append(s.appended, *c)
	return nil
}

type workerBus struct {
	messages []events.Message
}

func (b *workerBus) Publish(_ context.Context, msg events.Message) {
	b.messages = append(b.messages, msg)
}

func TestWorker_CategorizesAnnouncedBatch(t *testing.T) {
	store := newWorkerStore()
	userID := uuid.New()
	var ids []uuid.UUID
	for _, desc := range []string{"STARBUCKS COFFEE", "UBER TRIP", "XJQW 0000"} {
		tx := newTx(desc)
		tx.UserID = userID
		store.txs[tx.ID] = tx
		ids = append(ids, tx.ID)
	}

	bus := &workerBus{}
	engine := NewEngine(NewTieredMatcher(chart.NewRegistry(chart.DefaultChart())), nil, nil, discardLogger())
	worker := NewWorker(engine, chart.StaticSource{}, store, bus, Options{}, discardLogger())

	worker.HandleTransactionsReady(context.Background(), events.TransactionsReady{
		UserID:         userID,
		TransactionIDs: ids,
		ProducedAt:     time.Now(),
	})

	assert.Len(t, store.appended, 3, "every transaction gets exactly one categorization record")
	assert.Len(t, store.updated, 3)
	assert.Equal(t, "272", store.updated[ids[0]])
	assert.Equal(t, "240", store.updated[ids[1]])
	assert.Equal(t, chart.UncategorizedCode, store.updated[ids[2]])

	require.Len(t, bus.messages, 1)
	done, ok := bus.messages[0].(events.CategorizationCompleted)
	require.True(t, ok)
	assert.Equal(t, 3, done.Succeeded)
	assert.Equal(t, 0, done.Failed)
}

func TestWorker_MissingTransactionIsCountedFailed(t *testing.T) {
	store := newWorkerStore()
	tx := newTx("STARBUCKS")
	store.txs[tx.ID] = tx

	bus := &workerBus{}
	engine := NewEngine(NewTieredMatcher(chart.NewRegistry(chart.DefaultChart())), nil, nil, discardLogger())
	worker := NewWorker(engine, chart.StaticSource{}, store, bus, Options{}, discardLogger())

	worker.HandleTransactionsReady(context.Background(), events.TransactionsReady{
		UserID:         tx.UserID,
		TransactionIDs: []uuid.UUID{tx.ID, uuid.New()},
	})

	require.Len(t, bus.messages, 1)
	done := bus.messages[0].(events.CategorizationCompleted)
	assert.Equal(t, 1, done.Succeeded)
	assert.Equal(t, 1, done.Failed)
}

func TestWorker_PersistFailureDoesNotStopBatch(t *testing.T) {
	store := newWorkerStore()
	store.failAppend = true
	tx := newTx("STARBUCKS")
	store.txs[tx.ID] = tx

	bus := &workerBus{}
	engine := NewEngine(NewTieredMatcher(chart.NewRegistry(chart.DefaultChart())), nil, nil, discardLogger())
	worker := NewWorker(engine, chart.StaticSource{}, store, bus, Options{}, discardLogger())

	worker.HandleTransactionsReady(context.Background(), events.TransactionsReady{
		UserID:         tx.UserID,
		TransactionIDs: []uuid.UUID{tx.ID},
	})

	assert.Empty(t, store.updated, "apply is skipped when the record write fails")
	require.Len(t, bus.messages, 1)
	done := bus.messages[0].(events.CategorizationCompleted)
	assert.Equal(t, 0, done.Succeeded)
	assert.Equal(t, 1, done.Failed)
}
