package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAITextEncoder is a TextEncoder over an OpenAI-compatible embeddings
// API. It covers deployments where the text modality runs against a hosted
// model while images stay on the local encoder.
type OpenAITextEncoder struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAITextEncoder creates an encoder for the given model. dim must match
// the model's embedding dimension and the aligner's configured text dimension.
func NewOpenAITextEncoder(apiKey, model string, dim int) (*OpenAITextEncoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embed: openai api key is required")
	}
	if model == "" || dim <= 0 {
		return nil, fmt.Errorf("embed: openai encoder needs a model and positive dim")
	}
	return &OpenAITextEncoder{
		client: openai.NewClient(apiKey),
		model:  model,
		dim:    dim,
	}, nil
}

// Dim returns the embedding dimension.
func (e *OpenAITextEncoder) Dim() int { return e.dim }

// EmbedTexts requests embeddings for texts in one API call, preserving order.
func (e *OpenAITextEncoder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embed: no texts to encode")
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d rows for %d texts", ErrNoEmbeddings, len(resp.Data), len(texts))
	}

	rows := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(rows) {
			return nil, fmt.Errorf("embed: openai returned out-of-range index %d", d.Index)
		}
		if len(d.Embedding) != e.dim {
			return nil, fmt.Errorf("embed: openai row has dim %d, want %d", len(d.Embedding), e.dim)
		}
		row := make([]float32, e.dim)
		copy(row, d.Embedding)
		rows[d.Index] = row
	}
	return rows, nil
}
