// Package embed defines the encoder collaborators and the aligned-encoder
// variants used by the build pipeline and the search orchestrator.
//
// The neural encoders themselves are external: TextEncoder and ImageEncoder
// are black boxes mapping strings and image references to fixed-length float
// vectors, deterministic for a given input and model version.
//
// AlignedEncoder is the one capability the orchestrator depends on. It has a
// local-compute variant (per-modality encoders fused in process) and a
// remote-inference variant (an inference server returning already-aligned
// vectors); which one runs is a configuration decision, never a runtime type
// inspection, and both produce vectors with identical fusion semantics.
package embed

import (
	"context"
	"errors"
)

// ErrNoEmbeddings is returned when an encoder collaborator yields an empty
// result for a non-empty input.
var ErrNoEmbeddings = errors.New("embed: encoder returned no embeddings")

// TextEncoder maps texts to fixed-length vectors of dimension Dim.
type TextEncoder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// ImageEncoder maps image references (URL or local path) to fixed-length
// vectors of dimension Dim.
type ImageEncoder interface {
	EmbedImages(ctx context.Context, refs []string) ([][]float32, error)
	Dim() int
}

// AlignedEncoder produces one aligned vector per input row. texts and refs
// follow fusion semantics: either may be nil (zero-padded modality), and when
// both are present they must be the same length.
type AlignedEncoder interface {
	Embed(ctx context.Context, texts, refs []string) ([][]float32, error)
	Dim() int
}
