package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincopilot-dev/fincopilot/internal/domain/chart"
	"github.com/fincopilot-dev/fincopilot/internal/domain/transaction"
	"github.com/fincopilot-dev/fincopilot/pkg/events"
)

type memoryStore struct {
	created []*transaction.Transaction
	failOn  string // description that triggers a persistence error
}

func (m *memoryStore) Create(_ context.Context, tx *transaction.Transaction) error {
	if m.failOn != "" && strings.Contains(tx.Description, m.failOn) {
		return errors.New("constraint violation")
	}
	m.created = append(m.created, tx)
	return nil
}

type memoryBus struct {
	messages []events.Message
}

func (m *memoryBus) Publish(_ context.Context, msg events.Message) {
	m.messages = append(m.messages, msg)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeStatement(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newService(store *memoryStore, bus *memoryBus) *Service {
	return NewService(chart.StaticSource{}, store, bus, nil, discardLogger())
}

func TestIngest_HappyPath(t *testing.T) {
	path := writeStatement(t, "statement.csv", strings.Join([]string{
		"date,description,amount,type",
		"2025-01-15,STARBUCKS COFFEE #9921,-6.40,",
		"2025-01-16,ACME CORP PAYROLL,2500.00,credit",
	}, "\n"))

	store := &memoryStore{}
	bus := &memoryBus{}
	svc := newService(store, bus)

	input := Input{Path: path, FileType: "csv", UserID: uuid.New(), FileID: uuid.New()}
	result, err := svc.Ingest(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Empty(t, result.Warnings)
	require.Len(t, store.created, 2)

	first := store.created[0]
	assert.Equal(t, transaction.TypeDebit, first.Type)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("6.40")), "amount must be absolute, got %s", first.Amount)
	assert.Equal(t, chart.UncategorizedCode, first.AccountCode)
	assert.Equal(t, input.UserID, first.UserID)
	require.NotNil(t, first.FileID)
	assert.Equal(t, input.FileID, *first.FileID)

	require.Len(t, bus.messages, 1)
	ready, ok := bus.messages[0].(events.TransactionsReady)
	require.True(t, ok)
	assert.Len(t, ready.TransactionIDs, 2)
	assert.Equal(t, input.UserID, ready.UserID)
}

func TestIngest_MissingFileIsFatal(t *testing.T) {
	bus := &memoryBus{}
	svc := newService(&memoryStore{}, bus)

	_, err := svc.Ingest(context.Background(), Input{
		Path:     "/nonexistent/statement.csv",
		FileType: "csv",
		UserID:   uuid.New(),
	})
	assert.ErrorIs(t, err, ErrFileNotFound)

	require.Len(t, bus.messages, 1)
	_, ok := bus.messages[0].(events.IngestFailed)
	assert.True(t, ok)
}

func TestIngest_UnsupportedTypeIsFatal(t *testing.T) {
	svc := newService(&memoryStore{}, &memoryBus{})
	_, err := svc.Ingest(context.Background(), Input{Path: "whatever", FileType: "docx"})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestIngest_BadRowsBecomeWarnings(t *testing.T) {
	path := writeStatement(t, "statement.csv", strings.Join([]string{
		"date,description,amount",
		"2025-03-01,OK ROW,10.00",
		"not-a-date,BROKEN ROW,10.00",
		"2025-03-03,NO AMOUNT,",
	}, "\n"))

	store := &memoryStore{}
	svc := newService(store, &memoryBus{})

	result, err := svc.Ingest(context.Background(), Input{Path: path, FileType: "csv", UserID: uuid.New()})
	require.NoError(t, err, "row-level problems must not fail the run")

	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 2, result.FailedCount)
	assert.Len(t, result.Warnings, 2)
	assert.Len(t, store.created, 1)
}

func TestIngest_ZeroAmountRowPersists(t *testing.T) {
	path := writeStatement(t, "statement.csv", strings.Join([]string{
		"date,description,amount",
		"2025-03-05,FEE WAIVED,0.00",
	}, "\n"))

	store := &memoryStore{}
	svc := newService(store, &memoryBus{})

	result, err := svc.Ingest(context.Background(), Input{Path: path, FileType: "csv", UserID: uuid.New()})
	require.NoError(t, err)

	// A real 0.00 row is a valid transaction, not a missing amount.
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 0, result.FailedCount)
	require.Len(t, store.created, 1)
	assert.True(t, store.created[0].Amount.IsZero())
}

func TestIngest_PersistenceFailureIsIsolated(t *testing.T) {
	path := writeStatement(t, "statement.csv", strings.Join([]string{
		"date,description,amount",
		"2025-03-01,GOOD ONE,10.00",
		"2025-03-02,POISON ROW,20.00",
		"2025-03-03,GOOD TWO,30.00",
	}, "\n"))

	store := &memoryStore{failOn: "POISON"}
	bus := &memoryBus{}
	svc := newService(store, bus)

	result, err := svc.Ingest(context.Background(), Input{Path: path, FileType: "csv", UserID: uuid.New()})
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "failed to persist")

	require.Len(t, bus.messages, 1)
	ready := bus.messages[0].(events.TransactionsReady)
	assert.Len(t, ready.TransactionIDs, 2, "only persisted transactions are announced")
}

func TestIngest_CategoryHintShapesConfidence(t *testing.T) {
	path := writeStatement(t, "statement.csv", strings.Join([]string{
		"date,description,amount,category",
		"2025-04-01,WHOLE FOODS,-55.10,230",
		"2025-04-02,MYSTERY SHOP,-10.00,bogus-code",
	}, "\n"))

	store := &memoryStore{}
	svc := newService(store, &memoryBus{})

	_, err := svc.Ingest(context.Background(), Input{Path: path, FileType: "csv", UserID: uuid.New()})
	require.NoError(t, err)
	require.Len(t, store.created, 2)

	hinted := store.created[0]
	assert.Equal(t, "230", hinted.AccountCode)
	assert.Equal(t, 0.9, hinted.Confidence)

	unhinted := store.created[1]
	assert.Equal(t, chart.UncategorizedCode, unhinted.AccountCode)
	assert.Equal(t, 0.5, unhinted.Confidence)
}

func TestIngest_EmptyFileProducesNoAnnouncement(t *testing.T) {
	path := writeStatement(t, "statement.csv", "date,description,amount\n")

	bus := &memoryBus{}
	svc := newService(&memoryStore{}, bus)

	result, err := svc.Ingest(context.Background(), Input{Path: path, FileType: "csv", UserID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)
	assert.Empty(t, bus.messages)
}
