package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railog/internal/domain"
	"railog/internal/model"
)

func TestStorage(t *testing.T) {
	s := NewStorage()
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrModelNotFound)

	m, err := model.New(2)
	require.NoError(t, err)
	_, err = m.Append(domain.Vector{1, 2}, 3, "x")
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), m))

	// Mutating the saved model must not leak into the store.
	require.NoError(t, m.Replace(0, domain.Vector{9, 9}, 1))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	c, _ := got.Centroid(0)
	assert.Equal(t, domain.Vector{1, 2}, c.Vector)
	assert.Equal(t, 3, c.Count)
	assert.Equal(t, 1, s.Saves())
}
