package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrEmptyInput is returned when there is nothing to embed.
var ErrEmptyInput = errors.New("retrieval: empty input")

// Embedder converts text into dense vectors.
type Embedder interface {
	// Embed returns one vector per text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	// DefaultEmbedModel is served by Ollama's OpenAI-compatible endpoint.
	DefaultEmbedModel = "nomic-embed-text"

	// DefaultEmbedBaseURL is Ollama's OpenAI-compatible API root.
	DefaultEmbedBaseURL = "http://localhost:11434/v1/"

	embedMaxBatch = 512
)

var _ Embedder = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder implements Embedder with the OpenAI embeddings API. By
// default it talks to a local Ollama server.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

type embedConfig struct {
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
}

// EmbedOption configures an OpenAIEmbedder.
type EmbedOption func(*embedConfig)

// WithEmbedModel sets the embedding model.
func WithEmbedModel(model string) EmbedOption {
	return func(c *embedConfig) { c.model = model }
}

// WithDimension requests vectors of the given size. Zero leaves it to the
// model.
func WithDimension(dim int) EmbedOption {
	return func(c *embedConfig) { c.dim = dim }
}

// WithEmbedBaseURL sets the API root.
func WithEmbedBaseURL(url string) EmbedOption {
	return func(c *embedConfig) { c.baseURL = url }
}

// WithEmbedHTTPClient sets the HTTP client.
func WithEmbedHTTPClient(client *http.Client) EmbedOption {
	return func(c *embedConfig) { c.httpClient = client }
}

// NewOpenAIEmbedder creates an embedder. Ollama ignores apiKey but the
// client requires a non-empty value.
func NewOpenAIEmbedder(apiKey string, opts ...EmbedOption) *OpenAIEmbedder {
	cfg := embedConfig{
		model:      DefaultEmbedModel,
		baseURL:    DefaultEmbedBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if apiKey == "" {
		apiKey = "ollama"
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
		option.WithBaseURL(cfg.baseURL),
	)
	return &OpenAIEmbedder{client: &client, model: cfg.model, dim: cfg.dim}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += embedMaxBatch {
		end := min(i+embedMaxBatch, len(texts))
		vecs, err := e.call(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("retrieval: embed [%d:%d]: %w", i, end, err)
		}
		copy(out[i:], vecs)
	}
	return out, nil
}

func (e *OpenAIEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          e.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.dim > 0 {
		params.Dimensions = openai.Int(int64(e.dim))
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch of %d", item.Index, len(texts))
		}
		v := make([]float32, len(item.Embedding))
		for j, f := range item.Embedding {
			v[j] = float32(f)
		}
		vecs[item.Index] = v
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return vecs, nil
}
