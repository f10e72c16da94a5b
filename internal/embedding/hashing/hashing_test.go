package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railog/internal/vecmath"
)

func TestEmbedDeterministicAndNormalized(t *testing.T) {
	e, err := NewEmbedder(DefaultDimension)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := e.Embed(ctx, "sshd[<PID>]: Accepted publickey for user from <IP> port 22")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "sshd[<PID>]: Accepted publickey for user from <IP> port 22")
	require.NoError(t, err)

	assert.Len(t, a, DefaultDimension)
	assert.Equal(t, a, b)

	norm := 0.0
	for _, x := range a {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedSimilarLinesAreCloser(t *testing.T) {
	e, err := NewEmbedder(DefaultDimension)
	require.NoError(t, err)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "kernel: usb device <NUM> connected on port <NUM>")
	near, _ := e.Embed(ctx, "kernel: usb device <NUM> disconnected on port <NUM>")
	far, _ := e.Embed(ctx, "cron: session opened for user root")

	dNear, err := vecmath.Distance(base, near)
	require.NoError(t, err)
	dFar, err := vecmath.Distance(base, far)
	require.NoError(t, err)
	assert.Less(t, dNear, dFar)
}

func TestEmbedEmptyText(t *testing.T) {
	e, err := NewEmbedder(8)
	require.NoError(t, err)
	v, err := e.Embed(context.Background(), " ... ")
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 8), []float64(v))
}

func TestNameTracksFeatureSet(t *testing.T) {
	withBigrams, err := NewEmbedder(8)
	require.NoError(t, err)
	unigrams, err := NewEmbedder(8, WithBigrams(false))
	require.NoError(t, err)
	assert.Equal(t, "hashing/bigrams", withBigrams.Name())
	assert.Equal(t, "hashing/unigrams", unigrams.Name())
}

func TestNewEmbedderRejectsBadDimension(t *testing.T) {
	_, err := NewEmbedder(0)
	assert.Error(t, err)
}
