package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincopilot-dev/fincopilot/internal/domain/ingest"
	"github.com/fincopilot-dev/fincopilot/internal/domain/transaction"
	"github.com/fincopilot-dev/fincopilot/pkg/events"
)

type stubIngestor struct {
	result *ingest.Result
	err    error
	last   ingest.Input
}

func (s *stubIngestor) Ingest(_ context.Context, input ingest.Input) (*ingest.Result, error) {
	s.last = input
	return s.result, s.err
}

type stubStore struct {
	byID map[uuid.UUID]*transaction.Transaction
	cats map[uuid.UUID][]transaction.Categorization
}

func newStubStore() *stubStore {
	return &stubStore{
		byID: map[uuid.UUID]*transaction.Transaction{},
		cats: map[uuid.UUID][]transaction.Categorization{},
	}
}

func (s *stubStore) GetByID(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	tx, ok := s.byID[id]
	if !ok {
		return nil, transaction.ErrNotFound
	}
	return tx, nil
}

func (s *stubStore) ListByUser(_ context.Context, userID uuid.UUID, _, _ *time.Time, _ int) ([]transaction.Transaction, error) {
	var out []transaction.Transaction
	for _, tx := range s.byID {
		if tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (s *stubStore) ListCategorizations(_ context.Context, id uuid.UUID) ([]transaction.Categorization, error) {
	return s.cats[id], nil
}

func (s *stubStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.byID[id]; !ok {
		return transaction.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

type stubBus struct {
	messages []events.Message
}

func (s *stubBus) Publish(_ context.Context, msg events.Message) {
	s.messages = append(s.messages, msg)
}

func newTestServer(ing *stubIngestor, store *stubStore, bus *stubBus) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(ing, store, bus, logger).Handler()
}

func TestHandleIngest(t *testing.T) {
	ing := &stubIngestor{result: &ingest.Result{ProcessedCount: 2, FailedCount: 1,
		Warnings: []ingest.Warning{{Row: 3, Message: "bad date"}}}}
	h := newTestServer(ing, newStubStore(), &stubBus{})

	body := `{"path": "/tmp/stmt.csv", "file_type": "csv", "user_id": "` + uuid.NewString() + `"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["processed_count"])
	assert.Equal(t, float64(1), resp["failed_count"])
	assert.Equal(t, "csv", ing.last.FileType)
	assert.NotEqual(t, uuid.Nil, ing.last.FileID)
}

func TestHandleIngest_FatalErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"missing file", ingest.ErrFileNotFound, http.StatusNotFound},
		{"unsupported type", ingest.ErrUnsupportedType, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(&stubIngestor{err: tc.err}, newStubStore(), &stubBus{})
			body := `{"path": "x", "file_type": "csv", "user_id": "` + uuid.NewString() + `"}`
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body)))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestHandleIngest_BadRequest(t *testing.T) {
	h := newTestServer(&stubIngestor{}, newStubStore(), &stubBus{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest",
		strings.NewReader(`{"path": "x", "file_type": "csv", "user_id": "nope"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCategorize_QueuesBatch(t *testing.T) {
	bus := &stubBus{}
	h := newTestServer(&stubIngestor{}, newStubStore(), bus)

	userID := uuid.New()
	ids := []string{uuid.NewString(), uuid.NewString()}
	body, _ := json.Marshal(map[string]any{"user_id": userID.String(), "transaction_ids": ids})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/categorize", strings.NewReader(string(body))))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, bus.messages, 1)
	ready := bus.messages[0].(events.TransactionsReady)
	assert.Equal(t, userID, ready.UserID)
	assert.Len(t, ready.TransactionIDs, 2)
}

func TestTransactionRoutes(t *testing.T) {
	store := newStubStore()
	userID := uuid.New()
	tx := &transaction.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Date:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "STARBUCKS",
		Amount:      decimal.RequireFromString("6.40"),
		Type:        transaction.TypeDebit,
		AccountCode: "272",
	}
	store.byID[tx.ID] = tx
	store.cats[tx.ID] = []transaction.Categorization{{TransactionID: tx.ID, CategoryCode: "272", Source: transaction.SourceRule}}
	h := newTestServer(&stubIngestor{}, store, &stubBus{})

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions/"+tx.ID.String(), nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "STARBUCKS")
	})

	t.Run("get missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list by user", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions?user_id="+userID.String(), nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), tx.ID.String())
	})

	t.Run("categorization history", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions/"+tx.ID.String()+"/categorizations", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"272"`)
	})

	t.Run("delete", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/transactions/"+tx.ID.String(), nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/transactions/"+tx.ID.String(), nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	h := newTestServer(&stubIngestor{}, newStubStore(), &stubBus{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
