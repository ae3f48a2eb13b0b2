// Package fusion aligns per-modality embedding matrices into one vector space.
//
// Alignment is normalize-then-concatenate: each present modality matrix is
// L2-normalized per row, an absent modality is replaced by zeros of its
// configured width, and the rows are concatenated. The same procedure must run
// at index-build time and at query time; any divergence silently breaks the
// similarity geometry, so both paths go through the one Aligner.
package fusion

import (
	"errors"
	"fmt"

	"github.com/orneryd/modalsearch/pkg/vector"
)

// ErrAlignment is returned when the text and image matrices disagree on row count.
var ErrAlignment = errors.New("fusion: modality row counts disagree")

// Aligner fuses text and image embedding matrices into aligned vectors.
// TextDim and ImageDim are fixed constants of the deployed encoders and must
// not change between build and query.
type Aligner struct {
	TextDim  int
	ImageDim int
}

// NewAligner returns an Aligner for the given per-modality dimensions.
func NewAligner(textDim, imageDim int) (*Aligner, error) {
	if textDim <= 0 || imageDim <= 0 {
		return nil, fmt.Errorf("fusion: modality dimensions must be positive (text=%d image=%d)", textDim, imageDim)
	}
	return &Aligner{TextDim: textDim, ImageDim: imageDim}, nil
}

// Dim returns the fused vector dimension (TextDim + ImageDim).
func (a *Aligner) Dim() int {
	return a.TextDim + a.ImageDim
}

// Align fuses the given modality matrices into [N][TextDim+ImageDim] rows.
//
// Either matrix may be nil, in which case it is zero-padded so the fused
// dimension stays constant regardless of which modalities were supplied.
// Both nil, or both present with different row counts, is an error.
// Row order is preserved. A zero-norm row fails with vector.ErrDegenerateVector
// rather than being silently zeroed.
func (a *Aligner) Align(text, image [][]float32) ([][]float32, error) {
	n, err := a.rowCount(text, image)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		row := make([]float32, 0, a.Dim())
		row, err = appendNormalized(row, text, i, a.TextDim, "text")
		if err != nil {
			return nil, err
		}
		row, err = appendNormalized(row, image, i, a.ImageDim, "image")
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

// AlignQuery fuses a single optional text vector and optional image vector
// into one aligned query vector. It is Align for N=1 with per-modality
// presence flags, used by the query path.
func (a *Aligner) AlignQuery(text, image []float32) ([]float32, error) {
	var textM, imageM [][]float32
	if text != nil {
		textM = [][]float32{text}
	}
	if image != nil {
		imageM = [][]float32{image}
	}
	rows, err := a.Align(textM, imageM)
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (a *Aligner) rowCount(text, image [][]float32) (int, error) {
	switch {
	case text == nil && image == nil:
		return 0, fmt.Errorf("%w: no modality supplied", ErrAlignment)
	case text == nil:
		return len(image), nil
	case image == nil:
		return len(text), nil
	case len(text) != len(image):
		return 0, fmt.Errorf("%w: text=%d image=%d", ErrAlignment, len(text), len(image))
	default:
		return len(text), nil
	}
}

func appendNormalized(dst []float32, m [][]float32, i, dim int, modality string) ([]float32, error) {
	if m == nil {
		// Absent modality: zero-pad to keep the fused dimension constant.
		return append(dst, make([]float32, dim)...), nil
	}
	row := m[i]
	if len(row) != dim {
		return nil, fmt.Errorf("fusion: %s row %d has dim %d, want %d", modality, i, len(row), dim)
	}
	normalized, err := vector.Normalize(row)
	if err != nil {
		return nil, fmt.Errorf("fusion: %s row %d: %w", modality, i, err)
	}
	return append(dst, normalized...), nil
}
