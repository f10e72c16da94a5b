package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railog/internal/domain"
	"railog/internal/model"
)

func openTemp(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "model.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrModelNotFound)

	m, err := model.New(2)
	require.NoError(t, err)
	m.Embedder = "openai/all-minilm"
	_, err = m.Append(domain.Vector{0.25, -1.5}, 7, "cron[<PID>]: session opened")
	require.NoError(t, err)
	_, err = m.Append(domain.Vector{3, 4}, 1, "")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, m))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "openai/all-minilm", got.Embedder)
	assert.Equal(t, m.NextID, got.NextID)
	assert.Equal(t, m.Centroids(), got.Centroids())
	assert.True(t, m.UpdatedAt.Equal(got.UpdatedAt))

	// A second save replaces rather than accumulates.
	_, err = m.Append(domain.Vector{5, 5}, 1, "")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, m))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())
}

func TestLoadCorruptBlob(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	m, err := model.New(1)
	require.NoError(t, err)
	_, err = m.Append(domain.Vector{1}, 1, "")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, m))

	_, err = s.db.Exec("UPDATE centroids SET vector = ? WHERE id = 0", []byte{1, 2, 3})
	require.NoError(t, err)
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrCorruptModel)
}

func TestFloat64Codec(t *testing.T) {
	in := []float64{0, -1.5, 3.14159, 1e-300}
	assert.Equal(t, in, decodeFloat64Slice(encodeFloat64Slice(in)))
}
