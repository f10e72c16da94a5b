package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railog/internal/domain"
	"railog/internal/model"
)

func newModel(t *testing.T, vectors ...domain.Vector) *model.Model {
	t.Helper()
	m, err := model.New(len(vectors[0]))
	require.NoError(t, err)
	for _, v := range vectors {
		_, err := m.Append(v, 1, "")
		require.NoError(t, err)
	}
	return m
}

func TestNearest(t *testing.T) {
	m := newModel(t, domain.Vector{0, 0}, domain.Vector{10, 0}, domain.Vector{0, 10})

	got, err := Nearest(m, domain.Vector{9, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)
	assert.InDelta(t, 1.4142135, got.Distance, 1e-6)
}

func TestNearestTieGoesToLowestID(t *testing.T) {
	m := newModel(t, domain.Vector{-1, 0}, domain.Vector{1, 0})
	got, err := Nearest(m, domain.Vector{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, got.ID)
	assert.InDelta(t, 1.0, got.Distance, 1e-12)
}

func TestNearestEmptyModel(t *testing.T) {
	m, err := model.New(2)
	require.NoError(t, err)
	_, err = Nearest(m, domain.Vector{0, 0})
	assert.ErrorIs(t, err, domain.ErrNoCentroids)
}

func TestNearestDimensionMismatch(t *testing.T) {
	m := newModel(t, domain.Vector{0, 0})
	_, err := Nearest(m, domain.Vector{0, 0, 0})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestUpdateFormula(t *testing.T) {
	m := newModel(t, domain.Vector{2, -4})
	v := domain.Vector{4, 6}
	r := 0.25

	require.NoError(t, Update(m, 0, v, r))
	c, ok := m.Centroid(0)
	require.True(t, ok)
	assert.InDelta(t, 2*(1-r)+4*r, c.Vector[0], 1e-12)
	assert.InDelta(t, -4*(1-r)+6*r, c.Vector[1], 1e-12)
	assert.Equal(t, 2, c.Count)
}

func TestValidateRate(t *testing.T) {
	tests := []struct {
		rate  float64
		valid bool
	}{
		{0, false}, {-0.1, false}, {0.1, true}, {1, true}, {1.0001, false},
	}
	for _, tt := range tests {
		err := ValidateRate(tt.rate)
		if tt.valid {
			assert.NoError(t, err, "rate %v", tt.rate)
		} else {
			assert.ErrorIs(t, err, domain.ErrInvalidParameter, "rate %v", tt.rate)
		}
	}
}

func TestValidateThreshold(t *testing.T) {
	assert.NoError(t, ValidateThreshold(0.5))
	assert.ErrorIs(t, ValidateThreshold(0), domain.ErrInvalidParameter)
	assert.ErrorIs(t, ValidateThreshold(-1), domain.ErrInvalidParameter)
}
