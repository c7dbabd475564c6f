package categorize

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fincopilot-dev/fincopilot/internal/domain/chart"
	"github.com/fincopilot-dev/fincopilot/internal/domain/transaction"
	"github.com/fincopilot-dev/fincopilot/pkg/events"
)

// Store is the persistence surface the worker needs after a batch run.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, accountCode string, confidence float64) error
	AppendCategorization(ctx context.Context, c *transaction.Categorization) error
}

// Publisher announces batch completion.
type Publisher interface {
	Publish(ctx context.Context, msg events.Message)
}

// Worker consumes TransactionsReady messages, runs the categorization
// engine over the announced transactions and persists the verdicts. Each
// verdict is written independently; a failed write marks that one
// transaction failed and the batch carries on.
type Worker struct {
	engine *Engine
	charts chart.Source
	store  Store
	bus    Publisher
	opts   Options
	logger *slog.Logger
}

// NewWorker creates the categorization worker.
func NewWorker(engine *Engine, charts chart.Source, store Store, bus Publisher, opts Options, logger *slog.Logger) *Worker {
	return &Worker{engine: engine, charts: charts, store: store, bus: bus, opts: opts, logger: logger}
}

// HandleTransactionsReady loads the batch, categorizes it and persists the
// outcome.
func (w *Worker) HandleTransactionsReady(ctx context.Context, msg events.TransactionsReady) {
	entries, err := w.charts.GetFullChartOfAccounts(ctx)
	if err != nil {
		w.logger.Error("failed to load chart of accounts for categorization",
			slog.Any("error", err))
		return
	}
	registry := chart.NewRegistry(entries)

	var txs []*transaction.Transaction
	missing := 0
	for _, id := range msg.TransactionIDs {
		tx, err := w.store.GetByID(ctx, id)
		if err != nil {
			missing++
			w.logger.Warn("announced transaction not loadable",
				slog.String("transaction_id", id.String()),
				slog.Any("error", err))
			continue
		}
		txs = append(txs, tx)
	}

	result := w.engine.Categorize(ctx, registry, txs, w.opts)

	persisted := 0
	persistFailed := 0
	for _, cat := range result.Categorizations {
		c := cat
		if err := w.store.AppendCategorization(ctx, &c); err != nil {
			persistFailed++
			w.logger.Error("failed to record categorization",
				slog.String("transaction_id", c.TransactionID.String()),
				slog.Any("error", err))
			continue
		}
		if err := w.store.UpdateCategory(ctx, c.TransactionID, c.CategoryCode, c.Confidence); err != nil {
			persistFailed++
			w.logger.Error("failed to apply categorization",
				slog.String("transaction_id", c.TransactionID.String()),
				slog.Any("error", err))
			continue
		}
		persisted++
	}

	w.logger.Info("categorization batch finished",
		slog.String("user_id", msg.UserID.String()),
		slog.Int("categorized", persisted),
		slog.Int("failed", result.FailedCount+persistFailed+missing),
		slog.Bool("llm_used", result.Metrics.LLMUsed),
		slog.Duration("took", result.Metrics.ProcessingTime))

	if w.bus != nil {
		w.bus.Publish(ctx, events.CategorizationCompleted{
			UserID:      msg.UserID,
			Succeeded:   persisted,
			Failed:      result.FailedCount + persistFailed + missing,
			CompletedAt: time.Now(),
		})
	}
}

// HandleCategorizationCompleted is not the worker's concern.
func (w *Worker) HandleCategorizationCompleted(context.Context, events.CategorizationCompleted) {}

// HandleIngestFailed is not the worker's concern.
func (w *Worker) HandleIngestFailed(context.Context, events.IngestFailed) {}
