package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// RequestTimeout bounds every embedding request.
const RequestTimeout = 30 * time.Second

// ClientConfig selects an OpenAI-compatible embeddings endpoint.
type ClientConfig struct {
	BaseURL string // e.g. http://localhost:11434/v1 for Ollama
	APIKey  string
	Model   string
}

// Client calls a remote OpenAI-compatible embeddings endpoint.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates an embeddings client. Requests time out after
// RequestTimeout and are never retried.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model not configured")
	}

	opts := []option.RequestOption{
		option.WithRequestTimeout(RequestTimeout),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		// Local servers ignore the key but the SDK always sends one.
		opts = append(opts, option.WithAPIKey("unused"))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client, model: cfg.Model}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., generation).
func (c *Client) Client() *openai.Client {
	return c.client
}

// Model returns the configured embedding model name.
func (c *Client) Model() string {
	return c.model
}

// EmbedText returns the embedding for a single text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

// toFloat32 converts []float64 to []float32.
// The API returns float64, but storage uses float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
