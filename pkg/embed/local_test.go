package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/modalsearch/pkg/fusion"
)

// fakeTextEncoder maps each text to a fixed-width vector seeded by its length.
type fakeTextEncoder struct {
	dim  int
	err  error
	rows [][]float32
}

func (f *fakeTextEncoder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.rows != nil {
		return f.rows, nil
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(s) + 1)
		out[i] = v
	}
	return out, nil
}

func (f *fakeTextEncoder) Dim() int { return f.dim }

type fakeImageEncoder struct {
	dim int
	err error
}

func (f *fakeImageEncoder) EmbedImages(_ context.Context, refs []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(refs))
	for i := range refs {
		v := make([]float32, f.dim)
		v[f.dim-1] = 2
		out[i] = v
	}
	return out, nil
}

func (f *fakeImageEncoder) Dim() int { return f.dim }

func newLocal(t *testing.T) *LocalEncoder {
	t.Helper()
	aligner, err := fusion.NewAligner(4, 3)
	require.NoError(t, err)
	enc, err := NewLocalEncoder(&fakeTextEncoder{dim: 4}, &fakeImageEncoder{dim: 3}, aligner)
	require.NoError(t, err)
	return enc
}

func TestLocalEncoderBothModalities(t *testing.T) {
	enc := newLocal(t)

	rows, err := enc.Embed(context.Background(), []string{"red shoe"}, []string{"http://img/1.jpg"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 7)

	// Text part normalized into the first 4 dims, image into the last 3.
	assert.InDelta(t, 1, float64(rows[0][0]), 1e-5)
	assert.InDelta(t, 1, float64(rows[0][6]), 1e-5)
}

func TestLocalEncoderTextOnlyZeroPadsImage(t *testing.T) {
	enc := newLocal(t)

	rows, err := enc.Embed(context.Background(), []string{"a", "bb"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.Len(t, row, 7)
		assert.Equal(t, []float32{0, 0, 0}, row[4:])
	}
}

func TestLocalEncoderNoModalities(t *testing.T) {
	enc := newLocal(t)
	_, err := enc.Embed(context.Background(), nil, nil)
	require.ErrorIs(t, err, fusion.ErrAlignment)
}

func TestLocalEncoderPropagatesEncoderError(t *testing.T) {
	aligner, err := fusion.NewAligner(4, 3)
	require.NoError(t, err)
	boom := errors.New("model crashed")
	enc, err := NewLocalEncoder(&fakeTextEncoder{dim: 4, err: boom}, &fakeImageEncoder{dim: 3}, aligner)
	require.NoError(t, err)

	_, err = enc.Embed(context.Background(), []string{"x"}, nil)
	require.ErrorIs(t, err, boom)
}

func TestLocalEncoderEmptyEncoderOutput(t *testing.T) {
	aligner, err := fusion.NewAligner(4, 3)
	require.NoError(t, err)
	enc, err := NewLocalEncoder(&fakeTextEncoder{dim: 4, rows: [][]float32{}}, &fakeImageEncoder{dim: 3}, aligner)
	require.NoError(t, err)

	_, err = enc.Embed(context.Background(), []string{"x"}, nil)
	require.ErrorIs(t, err, ErrNoEmbeddings)
}

func TestNewLocalEncoderDimMismatch(t *testing.T) {
	aligner, err := fusion.NewAligner(4, 3)
	require.NoError(t, err)

	_, err = NewLocalEncoder(&fakeTextEncoder{dim: 5}, &fakeImageEncoder{dim: 3}, aligner)
	require.Error(t, err)
	_, err = NewLocalEncoder(&fakeTextEncoder{dim: 4}, &fakeImageEncoder{dim: 2}, aligner)
	require.Error(t, err)
}
