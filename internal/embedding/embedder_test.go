package embedding

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railog/internal/domain"
)

type lengthEmbedder struct{ dim int }

func (lengthEmbedder) Name() string     { return "length" }
func (e lengthEmbedder) Dimension() int { return e.dim }
func (e lengthEmbedder) Embed(_ context.Context, text string) (domain.Vector, error) {
	if text == "boom" {
		return nil, errors.New("boom")
	}
	v := make(domain.Vector, e.dim)
	v[0] = float64(len(text))
	return v, nil
}

func TestEmbedAllPreservesOrder(t *testing.T) {
	texts := make([]string, 100)
	for i := range texts {
		texts[i] = "line " + strconv.Itoa(i*37)
	}
	vecs, err := EmbedAll(context.Background(), lengthEmbedder{dim: 2}, texts, 8)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float64(len(texts[i])), v[0])
	}
}

func TestEmbedAllPropagatesError(t *testing.T) {
	_, err := EmbedAll(context.Background(), lengthEmbedder{dim: 2}, []string{"a", "boom", "c"}, 2)
	assert.ErrorContains(t, err, "embed line 2")
}

type wrongDim struct{ lengthEmbedder }

func (wrongDim) Dimension() int { return 5 }

func TestEmbedAllChecksDimension(t *testing.T) {
	_, err := EmbedAll(context.Background(), wrongDim{lengthEmbedder{dim: 2}}, []string{"a"}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}
