package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railog/internal/domain"
)

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	m, err := New(2)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)

	for want := 0; want < 3; want++ {
		id, err := m.Append(domain.Vector{float64(want), 0}, want+1, "")
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 3, m.NextID)
	require.NoError(t, m.Validate())

	_, err = m.Append(domain.Vector{1}, 1, "")
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 3, m.NextID)
}

func TestReplace(t *testing.T) {
	m, err := New(2)
	require.NoError(t, err)
	_, err = m.Append(domain.Vector{0, 0}, 5, "a")
	require.NoError(t, err)

	require.NoError(t, m.Replace(0, domain.Vector{1, 1}, 1))
	c, ok := m.Centroid(0)
	require.True(t, ok)
	assert.Equal(t, domain.Vector{1, 1}, c.Vector)
	assert.Equal(t, 6, c.Count)

	assert.ErrorIs(t, m.Replace(7, domain.Vector{1, 1}, 1), domain.ErrInvalidParameter)
	assert.ErrorIs(t, m.Replace(0, domain.Vector{1}, 1), domain.ErrDimensionMismatch)
}

func TestCentroidReturnsCopy(t *testing.T) {
	m, err := New(1)
	require.NoError(t, err)
	in := domain.Vector{1}
	_, err = m.Append(in, 1, "")
	require.NoError(t, err)
	in[0] = 5

	got, ok := m.Centroid(0)
	require.True(t, ok)
	got.Vector[0] = 9
	again, _ := m.Centroid(0)
	assert.Equal(t, domain.Vector{1}, again.Vector)

	_, ok = m.Centroid(1)
	assert.False(t, ok)
}

func TestRestoreValidation(t *testing.T) {
	meta := Meta{ID: "m", Metric: MetricEuclidean, Dimension: 2, NextID: 2}
	tests := []struct {
		name      string
		meta      Meta
		centroids []domain.Centroid
		wantErr   bool
	}{
		{"valid", meta, []domain.Centroid{{ID: 0, Vector: domain.Vector{0, 0}}, {ID: 1, Vector: domain.Vector{1, 1}}}, false},
		{"empty", Meta{Metric: MetricEuclidean, Dimension: 2}, nil, false},
		{"mixed dimensions", meta, []domain.Centroid{{ID: 0, Vector: domain.Vector{0, 0}}, {ID: 1, Vector: domain.Vector{1}}}, true},
		{"duplicate ids", meta, []domain.Centroid{{ID: 1, Vector: domain.Vector{0, 0}}, {ID: 1, Vector: domain.Vector{1, 1}}}, true},
		{"next id too low", Meta{Metric: MetricEuclidean, Dimension: 2, NextID: 1}, []domain.Centroid{{ID: 1, Vector: domain.Vector{0, 0}}}, true},
		{"unknown metric", Meta{Metric: "cosine", Dimension: 2, NextID: 1}, []domain.Centroid{{ID: 0, Vector: domain.Vector{0, 0}}}, true},
		{"nan component", meta, []domain.Centroid{{ID: 0, Vector: domain.Vector{math.NaN(), 0}}}, true},
		{"negative count", meta, []domain.Centroid{{ID: 0, Vector: domain.Vector{0, 0}, Count: -1}}, true},
		{"zero dimension", Meta{Metric: MetricEuclidean}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Restore(tt.meta, tt.centroids)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrCorruptModel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.centroids), m.Len())
		})
	}
}
