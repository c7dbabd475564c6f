package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/time/rate"

	"github.com/fincopilot-dev/fincopilot/internal/domain/chart"
	"github.com/fincopilot-dev/fincopilot/internal/domain/transaction"
	"github.com/fincopilot-dev/fincopilot/pkg/metrics"
)

// CompletionRequest is a single prompt sent to a language model.
type CompletionRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// CompletionResponse is the raw model output.
type CompletionResponse struct {
	Text       string
	TokensUsed int
}

// Completer abstracts the language-model backend so the classifier can be
// tested without network access.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Classification is the model's verdict for one transaction.
type Classification struct {
	Code       string  `json:"category_code"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// maxPromptEntries bounds the chart excerpt embedded in each prompt.
const maxPromptEntries = 30

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// Classifier turns transactions into chart codes via a language model. It
// never returns an error: any failure yields the zero Classification, which
// callers treat as "no opinion".
type Classifier struct {
	completer   Completer
	limiter     *rate.Limiter
	model       string
	temperature float64
	maxTokens   int
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// ClassifierConfig carries the model parameters.
type ClassifierConfig struct {
	Model             string
	Temperature       float64
	MaxTokens         int
	RequestsPerSecond float64
}

// NewClassifier creates a classifier over the given backend.
func NewClassifier(completer Completer, cfg ClassifierConfig, rec metrics.Recorder, logger *slog.Logger) *Classifier {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Classifier{
		completer:   completer,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		metrics:     rec,
		logger:      logger,
	}
}

// Classify asks the model to place one transaction in the chart. A zero
// Classification means the model had no usable opinion; the caller decides
// what to do with that.
func (c *Classifier) Classify(ctx context.Context, tx *transaction.Transaction, reg *chart.Registry) Classification {
	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.RecordLLMFailure("rate_limit")
		c.logger.Warn("llm rate limiter interrupted", slog.Any("error", err))
		return Classification{}
	}

	prompt, err := c.buildPrompt(tx, reg)
	if err != nil {
		c.metrics.RecordLLMFailure("prompt")
		c.logger.Error("failed to build classification prompt", slog.Any("error", err))
		return Classification{}
	}

	resp, err := c.completer.Complete(ctx, CompletionRequest{
		Prompt:      prompt,
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		c.metrics.RecordLLMFailure("request")
		c.logger.Warn("llm classification request failed",
			slog.String("transaction_id", tx.ID.String()),
			slog.Any("error", err))
		return Classification{}
	}

	cls, err := parseClassification(resp.Text)
	if err != nil {
		c.metrics.RecordLLMFailure("parse")
		c.logger.Warn("unparseable llm classification",
			slog.String("transaction_id", tx.ID.String()),
			slog.Any("error", err))
		return Classification{}
	}

	if !reg.Has(cls.Code) {
		c.metrics.RecordLLMFailure("unknown_code")
		c.logger.Warn("llm returned code outside the chart",
			slog.String("transaction_id", tx.ID.String()),
			slog.String("code", cls.Code))
		return Classification{}
	}

	cls.Confidence = transaction.ClampConfidence(cls.Confidence)
	return cls
}

func (c *Classifier) buildPrompt(tx *transaction.Transaction, reg *chart.Registry) (string, error) {
	excerpt, err := json.MarshalIndent(reg.Excerpt(maxPromptEntries), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode chart excerpt: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a bookkeeping assistant. Categorize the bank transaction below ")
	b.WriteString("into exactly one account from the chart of accounts.\n\n")
	b.WriteString("Chart of accounts:\n")
	b.Write(excerpt)
	b.WriteString("\n\nTransaction:\n")
	fmt.Fprintf(&b, "  date: %s\n", tx.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "  description: %s\n", tx.Description)
	fmt.Fprintf(&b, "  amount: %s\n", tx.Amount.StringFixed(2))
	fmt.Fprintf(&b, "  type: %s\n", tx.Type)
	b.WriteString("\nRespond with ONLY a JSON object, no markdown fences, in this form:\n")
	b.WriteString(`{"category_code": "230", "confidence": 0.95, "reasoning": "short explanation"}`)
	return b.String(), nil
}

// parseClassification extracts the first JSON object from the model output.
// Models routinely wrap the object in prose or markdown fences.
func parseClassification(text string) (Classification, error) {
	raw := jsonObjectPattern.FindString(text)
	if raw == "" {
		return Classification{}, fmt.Errorf("no JSON object in model output")
	}
	var cls Classification
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		return Classification{}, fmt.Errorf("failed to decode model output: %w", err)
	}
	if cls.Code == "" {
		return Classification{}, fmt.Errorf("model output missing category_code")
	}
	return cls, nil
}
