// Package api exposes the ingestion pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fincopilot-dev/fincopilot/internal/domain/ingest"
	"github.com/fincopilot-dev/fincopilot/internal/domain/transaction"
	"github.com/fincopilot-dev/fincopilot/pkg/events"
)

// Ingestor runs one statement ingestion.
type Ingestor interface {
	Ingest(ctx context.Context, input ingest.Input) (*ingest.Result, error)
}

// TransactionStore is the read/delete surface behind the transaction routes.
type TransactionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, from, to *time.Time, limit int) ([]transaction.Transaction, error)
	ListCategorizations(ctx context.Context, transactionID uuid.UUID) ([]transaction.Categorization, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Publisher lets the recategorize route hand work to the background worker.
type Publisher interface {
	Publish(ctx context.Context, msg events.Message)
}

// Server is the HTTP surface of the pipeline.
type Server struct {
	ingestor       Ingestor
	store          TransactionStore
	bus            Publisher
	logger         *slog.Logger
	metricsEnabled bool
}

// NewServer creates the HTTP server.
func NewServer(ingestor Ingestor, store TransactionStore, bus Publisher, logger *slog.Logger) *Server {
	return &Server{ingestor: ingestor, store: store, bus: bus, logger: logger}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/categorize", s.handleCategorize)
		r.Get("/transactions", s.handleListTransactions)
		r.Get("/transactions/{id}", s.handleGetTransaction)
		r.Get("/transactions/{id}/categorizations", s.handleListCategorizations)
		r.Delete("/transactions/{id}", s.handleDeleteTransaction)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

type ingestRequest struct {
	Path     string `json:"path"`
	FileType string `json:"file_type"`
	UserID   string `json:"user_id"`
}

type ingestResponse struct {
	FileID         string           `json:"file_id"`
	ProcessedCount int              `json:"processed_count"`
	FailedCount    int              `json:"failed_count"`
	Warnings       []ingest.Warning `json:"warnings,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	input := ingest.Input{
		Path:     req.Path,
		FileType: req.FileType,
		UserID:   userID,
		FileID:   uuid.New(),
	}
	result, err := s.ingestor.Ingest(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrFileNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ingest.ErrUnsupportedType):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.logger.Error("ingestion request failed", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "ingestion failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		FileID:         input.FileID.String(),
		ProcessedCount: result.ProcessedCount,
		FailedCount:    result.FailedCount,
		Warnings:       result.Warnings,
	})
}

type categorizeRequest struct {
	UserID         string   `json:"user_id"`
	TransactionIDs []string `json:"transaction_ids"`
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if len(req.TransactionIDs) == 0 {
		writeError(w, http.StatusBadRequest, "transaction_ids is required")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.TransactionIDs))
	for _, raw := range req.TransactionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid transaction id: "+raw)
			return
		}
		ids = append(ids, id)
	}

	s.bus.Publish(r.Context(), events.TransactionsReady{
		UserID:         userID,
		TransactionIDs: ids,
		ProducedAt:     time.Now(),
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued": len(ids),
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		to = &t
	}

	txs, err := s.store.ListByUser(r.Context(), userID, from, to, 0)
	if err != nil {
		s.logger.Error("failed to list transactions", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	tx, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		s.logger.Error("failed to load transaction", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to load transaction")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleListCategorizations(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	cats, err := s.store.ListCategorizations(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list categorizations", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list categorizations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categorizations": cats})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	if err := s.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		s.logger.Error("failed to delete transaction", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
