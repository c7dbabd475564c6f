package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fincopilot-dev/fincopilot/internal/domain/chart"
	"github.com/fincopilot-dev/fincopilot/internal/domain/transaction"
	"github.com/fincopilot-dev/fincopilot/pkg/metrics"
)

// Confidence thresholds for the categorization pass. An existing
// categorization above ShortCircuitConfidence is kept as-is; a rule verdict
// below ReviewThreshold is double-checked by the language model when the
// caller allows it.
const (
	ShortCircuitConfidence = 0.8
	ReviewThreshold        = 0.6
)

// LLMClassifier is the model-backed tier of the engine.
type LLMClassifier interface {
	Classify(ctx context.Context, tx *transaction.Transaction, reg *chart.Registry) Classification
}

// Options controls a categorization pass.
type Options struct {
	// UseLLM enables the model fallback when the rule tier misses or is
	// below the review threshold.
	UseLLM bool
	// UpdateExisting recategorizes transactions that already carry a
	// high-confidence code instead of keeping them.
	UpdateExisting bool
}

// BatchMetrics summarizes one categorization pass.
type BatchMetrics struct {
	ConfidenceAvg  float64
	LLMUsed        bool
	ProcessingTime time.Duration
}

// Result is the outcome of categorizing a batch.
type Result struct {
	Transactions    []*transaction.Transaction
	Categorizations []transaction.Categorization
	SuccessCount    int
	FailedCount     int
	Metrics         BatchMetrics
}

// Engine runs the tiered categorization pass: keep existing high-confidence
// codes, then rules, then the language model, then the uncategorized
// fallback. Each transaction gets exactly one categorization record and a
// failure on one transaction never aborts the batch.
type Engine struct {
	matcher Matcher
	llm     LLMClassifier
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewEngine creates a categorization engine. llm may be nil, in which case
// UseLLM is ignored.
func NewEngine(matcher Matcher, llm LLMClassifier, rec metrics.Recorder, logger *slog.Logger) *Engine {
	if matcher == nil {
		matcher = NoopMatcher{}
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Engine{matcher: matcher, llm: llm, metrics: rec, logger: logger}
}

// Categorize assigns a chart code to every transaction in the batch. The
// input transactions are mutated in place with the winning code and
// confidence; the returned categorization records carry the provenance.
func (e *Engine) Categorize(ctx context.Context, reg *chart.Registry, txs []*transaction.Transaction, opts Options) *Result {
	start := time.Now()
	result := &Result{Transactions: txs}

	var confidenceSum float64
	var llmCalls int
	for _, tx := range txs {
		cat, llmUsed, err := e.categorizeOne(ctx, reg, tx, opts)
		if llmUsed {
			llmCalls++
			result.Metrics.LLMUsed = true
		}
		if err != nil {
			result.FailedCount++
			e.logger.Error("categorization failed for transaction",
				slog.String("transaction_id", tx.ID.String()),
				slog.Any("error", err))
			continue
		}

		tx.AccountCode = cat.CategoryCode
		tx.Confidence = cat.Confidence
		result.Categorizations = append(result.Categorizations, cat)
		result.SuccessCount++
		confidenceSum += cat.Confidence
		e.metrics.RecordCategorization(string(cat.Source))
	}

	if result.SuccessCount > 0 {
		result.Metrics.ConfidenceAvg = confidenceSum / float64(result.SuccessCount)
	}
	result.Metrics.ProcessingTime = time.Since(start)
	e.metrics.RecordCategorizeBatch(result.Metrics.ProcessingTime, llmCalls)
	return result
}

func (e *Engine) categorizeOne(ctx context.Context, reg *chart.Registry, tx *transaction.Transaction, opts Options) (cat transaction.Categorization, llmUsed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("categorization panicked: %v", r)
		}
	}()

	if !opts.UpdateExisting && tx.Confidence > ShortCircuitConfidence && tx.AccountCode != chart.UncategorizedCode {
		reason := "existing categorization retained"
		return transaction.Categorization{
			TransactionID: tx.ID,
			CategoryCode:  tx.AccountCode,
			Confidence:    transaction.ClampConfidence(tx.Confidence),
			Source:        transaction.SourceSystem,
			Reasoning:     &reason,
		}, false, nil
	}

	match, matched := e.matcher.Match(tx.Description, tx.Amount)

	if matched && match.Confidence >= ReviewThreshold {
		return ruleCategorization(tx, match), false, nil
	}

	if opts.UseLLM && e.llm != nil {
		llmUsed = true
		if cls := e.llm.Classify(ctx, tx, reg); cls.Code != "" {
			reasoning := cls.Reasoning
			return transaction.Categorization{
				TransactionID: tx.ID,
				CategoryCode:  cls.Code,
				Confidence:    transaction.ClampConfidence(cls.Confidence),
				Source:        transaction.SourceLLM,
				Reasoning:     &reasoning,
			}, llmUsed, nil
		}
	}

	// A low-confidence rule hit still beats no opinion at all.
	if matched {
		return ruleCategorization(tx, match), llmUsed, nil
	}

	// No tier produced a verdict: keep whatever the transaction already
	// carried, down to the uncategorized sentinel.
	code := tx.AccountCode
	if code == "" {
		code = chart.UncategorizedCode
	}
	reason := "no tier produced a verdict"
	return transaction.Categorization{
		TransactionID: tx.ID,
		CategoryCode:  code,
		Confidence:    transaction.ClampConfidence(tx.Confidence),
		Source:        transaction.SourceSystem,
		Reasoning:     &reason,
	}, llmUsed, nil
}

func ruleCategorization(tx *transaction.Transaction, match Match) transaction.Categorization {
	reason := match.Reason
	return transaction.Categorization{
		TransactionID: tx.ID,
		CategoryCode:  match.Code,
		Confidence:    transaction.ClampConfidence(match.Confidence),
		Source:        transaction.SourceRule,
		Reasoning:     &reason,
	}
}
