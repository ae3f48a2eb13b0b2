package embed

import (
	"context"
	"fmt"

	"github.com/orneryd/modalsearch/pkg/fusion"
)

// LocalEncoder computes aligned vectors in process: per-modality encoders
// followed by the shared fusion procedure. This is the same path the build
// pipeline takes, so query vectors land in the same geometry as the index.
type LocalEncoder struct {
	text    TextEncoder
	image   ImageEncoder
	aligner *fusion.Aligner
}

// NewLocalEncoder wires per-modality encoders to an aligner. Encoder
// dimensions must match the aligner's configured modality dimensions.
func NewLocalEncoder(text TextEncoder, image ImageEncoder, aligner *fusion.Aligner) (*LocalEncoder, error) {
	if text == nil || image == nil || aligner == nil {
		return nil, fmt.Errorf("embed: local encoder needs text encoder, image encoder, and aligner")
	}
	if text.Dim() != aligner.TextDim {
		return nil, fmt.Errorf("embed: text encoder dim %d, aligner expects %d", text.Dim(), aligner.TextDim)
	}
	if image.Dim() != aligner.ImageDim {
		return nil, fmt.Errorf("embed: image encoder dim %d, aligner expects %d", image.Dim(), aligner.ImageDim)
	}
	return &LocalEncoder{text: text, image: image, aligner: aligner}, nil
}

// Dim returns the aligned vector dimension.
func (e *LocalEncoder) Dim() int { return e.aligner.Dim() }

// Embed encodes the present modalities and fuses them. A nil modality slice
// is zero-padded by the aligner; both nil is an alignment error.
func (e *LocalEncoder) Embed(ctx context.Context, texts, refs []string) ([][]float32, error) {
	var textVecs, imageVecs [][]float32

	if texts != nil {
		vecs, err := e.text.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed: text encoder: %w", err)
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("%w (text)", ErrNoEmbeddings)
		}
		textVecs = vecs
	}
	if refs != nil {
		vecs, err := e.image.EmbedImages(ctx, refs)
		if err != nil {
			return nil, fmt.Errorf("embed: image encoder: %w", err)
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("%w (image)", ErrNoEmbeddings)
		}
		imageVecs = vecs
	}

	return e.aligner.Align(textVecs, imageVecs)
}
