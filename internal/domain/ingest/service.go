// Package ingest runs the statement ingestion pipeline: open the file,
// parse it, validate and normalize each record, persist, and announce the
// batch. Only a missing file or an unsupported type fails the run; every
// row-level problem is reported as a warning and the rest of the file goes
// through.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/fincopilot-dev/fincopilot/internal/domain/chart"
	"github.com/fincopilot-dev/fincopilot/internal/domain/ingest/parser"
	"github.com/fincopilot-dev/fincopilot/internal/domain/transaction"
	"github.com/fincopilot-dev/fincopilot/pkg/events"
	"github.com/fincopilot-dev/fincopilot/pkg/metrics"
)

// Fatal pipeline errors. Anything else is a row-level warning.
var (
	ErrFileNotFound    = errors.New("statement file not found")
	ErrUnsupportedType = errors.New("unsupported statement file type")
)

// Confidence assigned by normalization: a category hint from the file is
// trusted enough to short-circuit recategorization, the default is not.
const (
	hintConfidence    = 0.9
	defaultConfidence = 0.5
)

// TransactionStore persists transactions one at a time.
type TransactionStore interface {
	Create(ctx context.Context, tx *transaction.Transaction) error
}

// Publisher announces pipeline outcomes.
type Publisher interface {
	Publish(ctx context.Context, msg events.Message)
}

// Input describes one ingestion run.
type Input struct {
	Path     string
	FileType string // "csv", "xlsx", "pdf"
	UserID   uuid.UUID
	FileID   uuid.UUID
}

// Warning is a non-fatal problem with a single record.
type Warning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Result summarizes one ingestion run.
type Result struct {
	Transactions   []*transaction.Transaction
	ProcessedCount int
	FailedCount    int
	Warnings       []Warning
}

// Service is the ingestion pipeline.
type Service struct {
	charts  chart.Source
	store   TransactionStore
	bus     Publisher
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewService creates the pipeline.
func NewService(charts chart.Source, store TransactionStore, bus Publisher, rec metrics.Recorder, logger *slog.Logger) *Service {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Service{charts: charts, store: store, bus: bus, metrics: rec, logger: logger}
}

// Ingest runs the pipeline for one file. Records are persisted
// independently so one bad row never rolls back its siblings; the warnings
// list tells the caller exactly which rows were dropped and why.
func (s *Service) Ingest(ctx context.Context, input Input) (*Result, error) {
	start := time.Now()
	defer func() { s.metrics.RecordIngestDuration(time.Since(start)) }()

	p, ok := parser.ForType(input.FileType)
	if !ok {
		s.publishFailure(ctx, input, fmt.Sprintf("unsupported file type %q", input.FileType))
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, input.FileType)
	}

	f, err := os.Open(input.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.publishFailure(ctx, input, "file not found")
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, input.Path)
		}
		s.publishFailure(ctx, input, err.Error())
		return nil, fmt.Errorf("failed to open %s: %w", input.Path, err)
	}
	defer f.Close()

	parsed, err := p.Parse(f)
	if err != nil {
		s.publishFailure(ctx, input, err.Error())
		return nil, fmt.Errorf("failed to parse %s: %w", input.Path, err)
	}

	registry, err := s.loadChart(ctx)
	if err != nil {
		s.publishFailure(ctx, input, err.Error())
		return nil, err
	}

	result := &Result{}
	for _, perr := range parsed.Errors {
		result.FailedCount++
		result.Warnings = append(result.Warnings, Warning{Row: perr.Row, Message: perr.Error()})
		s.metrics.RecordIngestedRecord("parse_error")
	}

	for _, rec := range parsed.Records {
		tx, warn := s.normalize(rec, registry, input)
		if warn != nil {
			result.FailedCount++
			result.Warnings = append(result.Warnings, *warn)
			s.metrics.RecordIngestedRecord("invalid")
			continue
		}

		if err := s.store.Create(ctx, tx); err != nil {
			result.FailedCount++
			result.Warnings = append(result.Warnings, Warning{
				Row:     rec.Row,
				Message: fmt.Sprintf("failed to persist: %v", err),
			})
			s.metrics.RecordIngestedRecord("store_error")
			s.logger.Error("failed to persist ingested transaction",
				slog.Int("row", rec.Row),
				slog.Any("error", err))
			continue
		}

		result.Transactions = append(result.Transactions, tx)
		result.ProcessedCount++
		s.metrics.RecordIngestedRecord("ok")
	}

	s.logger.Info("ingestion run finished",
		slog.String("path", input.Path),
		slog.String("file_type", input.FileType),
		slog.Int("processed", result.ProcessedCount),
		slog.Int("failed", result.FailedCount))

	if len(result.Transactions) > 0 && s.bus != nil {
		ids := make([]uuid.UUID, len(result.Transactions))
		for i, tx := range result.Transactions {
			ids[i] = tx.ID
		}
		s.bus.Publish(ctx, events.TransactionsReady{
			UserID:         input.UserID,
			FileID:         input.FileID,
			TransactionIDs: ids,
			ProducedAt:     time.Now(),
		})
	}

	return result, nil
}

func (s *Service) loadChart(ctx context.Context) (*chart.Registry, error) {
	entries, err := s.charts.GetFullChartOfAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart of accounts: %w", err)
	}
	return chart.NewRegistry(entries), nil
}

// normalize validates a raw record and shapes it into a transaction:
// absolute amount, explicit direction, and an account code from the file
// hint when the hint is a real chart code.
func (s *Service) normalize(rec parser.RawRecord, registry *chart.Registry, input Input) (*transaction.Transaction, *Warning) {
	if rec.Description == "" {
		return nil, &Warning{Row: rec.Row, Message: "missing description"}
	}
	if rec.Date.IsZero() {
		return nil, &Warning{Row: rec.Row, Message: "missing date"}
	}

	txType := transaction.TxType(rec.Type)
	if txType != transaction.TypeDebit && txType != transaction.TypeCredit {
		txType = transaction.TypeDebit
	}

	accountCode := chart.UncategorizedCode
	confidence := defaultConfidence
	if rec.CategoryHint != "" && registry.Has(rec.CategoryHint) {
		accountCode = rec.CategoryHint
		confidence = hintConfidence
	}

	fileID := input.FileID
	return &transaction.Transaction{
		ID:          uuid.New(),
		UserID:      input.UserID,
		FileID:      &fileID,
		Date:        rec.Date,
		Description: rec.Description,
		Amount:      rec.Amount.Abs().Round(2),
		Type:        txType,
		AccountCode: accountCode,
		Confidence:  confidence,
		Tags:        []string{},
	}, nil
}

func (s *Service) publishFailure(ctx context.Context, input Input, reason string) {
	s.logger.Error("ingestion run failed",
		slog.String("path", input.Path),
		slog.String("reason", reason))
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.IngestFailed{
		UserID:   input.UserID,
		Path:     input.Path,
		Reason:   reason,
		FailedAt: time.Now(),
	})
}
