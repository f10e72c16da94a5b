package embedding

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"railog/internal/domain"
	"railog/internal/vecmath"
)

// Embedder converts normalized text into a fixed-dimensionality vector.
type Embedder = domain.Embedder

// EmbedAll embeds texts with up to workers goroutines and returns the vectors
// in input order. Every vector is checked against the embedder's dimension.
func EmbedAll(ctx context.Context, emb Embedder, texts []string, workers int) ([]domain.Vector, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]domain.Vector, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, text := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := emb.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embed line %d: %w", i+1, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := vecmath.CheckDimension(emb.Dimension(), out...); err != nil {
		return nil, fmt.Errorf("%s embedder: %w", emb.Name(), err)
	}
	return out, nil
}
