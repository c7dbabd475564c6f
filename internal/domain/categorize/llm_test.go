package categorize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincopilot-dev/fincopilot/internal/domain/chart"
)

type fakeCompleter struct {
	text string
	err  error

	lastPrompt string
}

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	f.lastPrompt = req.Prompt
	if f.err != nil {
		return CompletionResponse{}, f.err
	}
	return CompletionResponse{Text: f.text}, nil
}

func newTestClassifier(c Completer) *Classifier {
	return NewClassifier(c, ClassifierConfig{
		Model:             "gemini-2.0-flash",
		Temperature:       0.1,
		MaxTokens:         256,
		RequestsPerSecond: 1000,
	}, nil, discardLogger())
}

func TestClassifier_Classify(t *testing.T) {
	reg := chart.NewRegistry(chart.DefaultChart())

	t.Run("clean JSON", func(t *testing.T) {
		c := &fakeCompleter{text: `{"category_code": "272", "confidence": 0.91, "reasoning": "restaurant"}`}
		cls := newTestClassifier(c).Classify(context.Background(), newTx("BISTRO 22"), reg)
		assert.Equal(t, "272", cls.Code)
		assert.Equal(t, 0.91, cls.Confidence)
	})

	t.Run("JSON wrapped in prose and fences", func(t *testing.T) {
		c := &fakeCompleter{text: "Sure! Here is the categorization:\n```json\n" +
			`{"category_code": "230", "confidence": 0.8, "reasoning": "groceries"}` + "\n```"}
		cls := newTestClassifier(c).Classify(context.Background(), newTx("MARKET"), reg)
		assert.Equal(t, "230", cls.Code)
	})

	t.Run("code outside the chart yields no opinion", func(t *testing.T) {
		c := &fakeCompleter{text: `{"category_code": "999", "confidence": 0.9}`}
		cls := newTestClassifier(c).Classify(context.Background(), newTx("???"), reg)
		assert.Equal(t, Classification{}, cls)
	})

	t.Run("request error yields no opinion", func(t *testing.T) {
		c := &fakeCompleter{err: errors.New("quota exceeded")}
		cls := newTestClassifier(c).Classify(context.Background(), newTx("ANY"), reg)
		assert.Equal(t, Classification{}, cls)
	})

	t.Run("non-JSON output yields no opinion", func(t *testing.T) {
		c := &fakeCompleter{text: "I cannot categorize this transaction."}
		cls := newTestClassifier(c).Classify(context.Background(), newTx("ANY"), reg)
		assert.Equal(t, Classification{}, cls)
	})

	t.Run("confidence is clamped", func(t *testing.T) {
		c := &fakeCompleter{text: `{"category_code": "210", "confidence": 2.5}`}
		cls := newTestClassifier(c).Classify(context.Background(), newTx("RENT"), reg)
		assert.Equal(t, "210", cls.Code)
		assert.Equal(t, 1.0, cls.Confidence)
	})

	t.Run("prompt carries the transaction and chart", func(t *testing.T) {
		c := &fakeCompleter{text: `{"category_code": "210", "confidence": 0.7}`}
		newTestClassifier(c).Classify(context.Background(), newTx("MONTHLY RENT PAYMENT"), reg)
		assert.Contains(t, c.lastPrompt, "MONTHLY RENT PAYMENT")
		assert.Contains(t, c.lastPrompt, `"code"`)
	})
}

func TestParseClassification(t *testing.T) {
	t.Run("missing code is an error", func(t *testing.T) {
		_, err := parseClassification(`{"confidence": 0.9}`)
		assert.Error(t, err)
	})

	t.Run("first object is extracted from surrounding text", func(t *testing.T) {
		cls, err := parseClassification(`The answer: {"category_code": "120", "confidence": 0.6, "reasoning": "interest"}`)
		require.NoError(t, err)
		assert.Equal(t, "120", cls.Code)
	})
}

func TestStaticCompleter(t *testing.T) {
	reg := chart.NewRegistry(chart.DefaultChart())
	cls := newTestClassifier(StaticCompleter{Code: "000", Confidence: 0.1}).
		Classify(context.Background(), newTx("ANYTHING"), reg)
	assert.Equal(t, "000", cls.Code)
	assert.Equal(t, 0.1, cls.Confidence)
}
