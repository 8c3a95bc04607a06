package gemini

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// Generator streams the text of a completion for prompt, chunk by chunk.
type Generator func(ctx context.Context, prompt string) iter.Seq2[string, error]

// Model generates text with a Gemini model.
type Model struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

// ModelOption configures a [Model].
type ModelOption func(*Model)

// WithModel sets the model ID. Default is gemini-2.5-flash.
func WithModel(model string) ModelOption {
	return func(m *Model) {
		if model != "" {
			m.model = model
		}
	}
}

// WithMaxTokens sets the output token limit. Default is 1024.
func WithMaxTokens(n int) ModelOption {
	return func(m *Model) { m.maxTokens = int32(n) }
}

// NewModel creates a [Model] with the given API key and options.
func NewModel(ctx context.Context, apiKey string, opts ...ModelOption) (*Model, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	m := &Model{
		client:      gc,
		model:       defaultModel,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Generate implements [Generator].
func (m *Model) Generate(ctx context.Context, prompt string) iter.Seq2[string, error] {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: m.maxTokens,
		Temperature:     genai.Ptr(m.temperature),
	}
	return TextChunks(m.client.Models.GenerateContentStream(ctx, m.model, genai.Text(prompt), config))
}

// TextChunks adapts a genai response stream to a stream of answer text.
// Thought parts and chunks without text are skipped.
func TextChunks(responses iter.Seq2[*genai.GenerateContentResponse, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range responses {
			if err != nil {
				yield("", fmt.Errorf("gemini: %w", err))
				return
			}
			text := chunkText(resp)
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func chunkText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
