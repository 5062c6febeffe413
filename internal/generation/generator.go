package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// GenerateTimeout bounds a single completion request.
	GenerateTimeout = 120 * time.Second

	// ModelsTimeout bounds model listing, which also serves as health probe.
	ModelsTimeout = 10 * time.Second

	// DefaultMaxTokens is the maximum content length before truncation (in tokens).
	DefaultMaxTokens = 4000

	temperature = 0.7
	topP        = 0.9
)

// ErrGenerationUnavailable is returned when the completion endpoint fails.
var ErrGenerationUnavailable = errors.New("generation endpoint unavailable")

// ClientConfig selects an OpenAI-compatible chat endpoint.
type ClientConfig struct {
	BaseURL string
	APIKey  string
}

// NewClient creates an OpenAI client for chat completions. Requests are not retried.
func NewClient(cfg ClientConfig) *openai.Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		opts = append(opts, option.WithAPIKey("unused"))
	}
	client := openai.NewClient(opts...)
	return &client
}

// DocumentSummary is an LLM-generated description of an uploaded document.
type DocumentSummary struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Generator produces answers and document descriptions with a chat model.
type Generator struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewGenerator creates a generator for model. A nil logger uses slog.Default().
func NewGenerator(client *openai.Client, model string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:    client,
		model:     model,
		maxTokens: DefaultMaxTokens,
		logger:    logger,
	}
}

// Model returns the configured chat model name.
func (g *Generator) Model() string {
	return g.model
}

// Generate completes prompt with temperature 0.7 and top_p 0.9.
// maxTokens <= 0 leaves the limit to the server.
func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(temperature),
		TopP:        openai.Float(topP),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := g.client.Chat.Completions.New(ctx, params, option.WithRequestTimeout(GenerateTimeout))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrGenerationUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Models lists the model ids served by the endpoint.
func (g *Generator) Models(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ModelsTimeout)
	defer cancel()

	page, err := g.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list models: %v", ErrGenerationUnavailable, err)
	}

	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Ping reports whether the endpoint answers.
func (g *Generator) Ping(ctx context.Context) error {
	_, err := g.Models(ctx)
	return err
}

// Describe summarizes a document for its listing entry.
func (g *Generator) Describe(ctx context.Context, title, content string) (*DocumentSummary, error) {
	prompt := fmt.Sprintf(`Analyze this document and provide:
1. A concise summary (1-2 sentences) of its main topic
2. Up to five keywords

Document title: %s

Document content:
%s

Respond in JSON format:
{"summary": "Brief description of the document", "keywords": ["keyword1", "keyword2"]}`, title, g.truncateContent(content))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(g.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}, option.WithRequestTimeout(GenerateTimeout))
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	return parseSummary(resp.Choices[0].Message.Content)
}

func parseSummary(raw string) (*DocumentSummary, error) {
	var summary DocumentSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &summary, nil
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (g *Generator) truncateContent(content string) string {
	maxChars := g.maxTokens * 4

	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}

	g.logger.Warn("Truncating content", "from", len(runes), "to", maxChars, "estimated_tokens", g.maxTokens)
	return string(runes[:maxChars])
}
