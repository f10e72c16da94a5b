package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railog/internal/domain"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     domain.Vector
		expected float64
	}{
		{"Simple", domain.Vector{0, 0}, domain.Vector{3, 4}, 5},
		{"Identical", domain.Vector{1, 2, 3}, domain.Vector{1, 2, 3}, 0},
		{"Negative", domain.Vector{-1, -1}, domain.Vector{1, 1}, math.Sqrt(8)},
		{"Empty", domain.Vector{}, domain.Vector{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}
}

func TestDistanceDimensionMismatch(t *testing.T) {
	_, err := Distance(domain.Vector{1, 2}, domain.Vector{1, 2, 3})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestMean(t *testing.T) {
	got, err := Mean([]domain.Vector{{0, 0}, {2, 4}, {4, 8}})
	require.NoError(t, err)
	assert.Equal(t, domain.Vector{2, 4}, got)

	_, err = Mean(nil)
	assert.ErrorIs(t, err, domain.ErrEmptyInput)

	_, err = Mean([]domain.Vector{{1}, {1, 2}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestLerp(t *testing.T) {
	got, err := Lerp(domain.Vector{0, 10}, domain.Vector{10, 0}, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got[0], 1e-12)
	assert.InDelta(t, 9.0, got[1], 1e-12)

	full, err := Lerp(domain.Vector{0, 10}, domain.Vector{10, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Vector{10, 0}, full)
}

func TestFinite(t *testing.T) {
	assert.True(t, Finite(domain.Vector{1, -2, 0}))
	assert.False(t, Finite(domain.Vector{1, math.NaN()}))
	assert.False(t, Finite(domain.Vector{math.Inf(1)}))
}

func TestCheckDimension(t *testing.T) {
	assert.NoError(t, CheckDimension(2, domain.Vector{1, 2}, domain.Vector{3, 4}))
	assert.ErrorIs(t, CheckDimension(2, domain.Vector{1, 2}, domain.Vector{3}), domain.ErrDimensionMismatch)
}
