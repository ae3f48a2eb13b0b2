package embed

import (
	"context"
	"time"
)

// RemoteTextEncoder is a TextEncoder over a per-modality model on the same
// inference server protocol as RemoteEncoder. The model returns raw text
// vectors of the text dimension, not aligned vectors.
type RemoteTextEncoder struct {
	remote *RemoteEncoder
}

// NewRemoteTextEncoder creates a client for the text model at baseURL.
func NewRemoteTextEncoder(baseURL, model string, dim int, timeout time.Duration) (*RemoteTextEncoder, error) {
	r, err := NewRemoteEncoder(baseURL, model, dim, timeout)
	if err != nil {
		return nil, err
	}
	return &RemoteTextEncoder{remote: r}, nil
}

// Dim returns the text embedding dimension.
func (e *RemoteTextEncoder) Dim() int { return e.remote.Dim() }

// EmbedTexts encodes texts through the remote text model.
func (e *RemoteTextEncoder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return e.remote.Embed(ctx, texts, nil)
}

// RemoteImageEncoder is the image-modality counterpart of RemoteTextEncoder.
type RemoteImageEncoder struct {
	remote *RemoteEncoder
}

// NewRemoteImageEncoder creates a client for the image model at baseURL.
func NewRemoteImageEncoder(baseURL, model string, dim int, timeout time.Duration) (*RemoteImageEncoder, error) {
	r, err := NewRemoteEncoder(baseURL, model, dim, timeout)
	if err != nil {
		return nil, err
	}
	return &RemoteImageEncoder{remote: r}, nil
}

// Dim returns the image embedding dimension.
func (e *RemoteImageEncoder) Dim() int { return e.remote.Dim() }

// EmbedImages encodes image references through the remote image model.
func (e *RemoteImageEncoder) EmbedImages(ctx context.Context, refs []string) ([][]float32, error) {
	return e.remote.Embed(ctx, nil, refs)
}
