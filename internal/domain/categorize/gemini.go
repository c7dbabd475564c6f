package categorize

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiCompleter calls the Gemini API through the official client. The
// API key is read from the environment by the client itself.
type GeminiCompleter struct {
	client *genai.Client
}

// NewGeminiCompleter creates the client. Requires GEMINI_API_KEY (or
// GOOGLE_API_KEY) in the environment.
func NewGeminiCompleter(ctx context.Context) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiCompleter{client: client}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: req.Prompt}},
		},
	}

	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return CompletionResponse{}, fmt.Errorf("empty response from model")
	}

	var tokens int
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return CompletionResponse{Text: text, TokensUsed: tokens}, nil
}

// StaticCompleter is the offline backend used when no API key is
// configured. It answers every prompt with the same low-confidence verdict
// so the rest of the pipeline behaves deterministically in development.
type StaticCompleter struct {
	Code       string
	Confidence float64
}

func (s StaticCompleter) Complete(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
	code := s.Code
	if code == "" {
		code = "000"
	}
	text := fmt.Sprintf(`{"category_code": %q, "confidence": %.2f, "reasoning": "offline default"}`,
		code, s.Confidence)
	return CompletionResponse{Text: text}, nil
}
