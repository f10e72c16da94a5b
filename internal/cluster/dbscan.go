// Package cluster implements deterministic density-based clustering (DBSCAN)
// over embedding vectors.
package cluster

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"railog/internal/domain"
	"railog/internal/vecmath"
)

// Params configures a DBSCAN run.
type Params struct {
	// Epsilon is the neighborhood radius; a neighbor is at distance <= Epsilon.
	Epsilon float64
	// MinPoints is the neighborhood size, the point itself included, that makes a core point.
	MinPoints int
	// Workers bounds the goroutines computing neighborhoods. Zero means GOMAXPROCS.
	Workers int
}

// Validate rejects non-positive epsilon and min points below one.
func (p Params) Validate() error {
	if !(p.Epsilon > 0) {
		return fmt.Errorf("%w: epsilon must be > 0, got %v", domain.ErrInvalidParameter, p.Epsilon)
	}
	if p.MinPoints < 1 {
		return fmt.Errorf("%w: min points must be >= 1, got %d", domain.ErrInvalidParameter, p.MinPoints)
	}
	return nil
}

// Result holds one label per input vector. Cluster indices are assigned in the
// order clusters were opened.
type Result struct {
	Labels   []domain.ClusterLabel
	Clusters int
}

// Noise returns the input indices labeled as noise, ascending.
func (r Result) Noise() []int {
	var out []int
	for i, l := range r.Labels {
		if l.IsNoise() {
			out = append(out, i)
		}
	}
	return out
}

// Members returns the input indices of each cluster, ascending within a cluster.
func (r Result) Members() [][]int {
	out := make([][]int, r.Clusters)
	for i, l := range r.Labels {
		if !l.IsNoise() {
			out[l] = append(out[l], i)
		}
	}
	return out
}

const unvisited domain.ClusterLabel = -2

// DBSCAN labels vectors. Neighborhoods are computed concurrently; labeling
// and expansion run sequentially in input order so the output is identical
// across runs for the same input.
func DBSCAN(ctx context.Context, vectors []domain.Vector, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if len(vectors) == 0 {
		return Result{}, nil
	}
	if err := vecmath.CheckDimension(len(vectors[0]), vectors...); err != nil {
		return Result{}, err
	}
	neighborhoods, err := neighborhoods(ctx, vectors, p)
	if err != nil {
		return Result{}, err
	}

	labels := make([]domain.ClusterLabel, len(vectors))
	for i := range labels {
		labels[i] = unvisited
	}
	expanded := make([]bool, len(vectors))
	clusters := 0

	for i := range vectors {
		if labels[i] != unvisited {
			continue
		}
		if len(neighborhoods[i]) < p.MinPoints {
			labels[i] = domain.Noise
			continue
		}
		c := domain.ClusterLabel(clusters)
		clusters++

		// i is in its own neighborhood, so the queue starts with it.
		var queue []int
		for _, j := range neighborhoods[i] {
			if labels[j] == unvisited || labels[j] == domain.Noise {
				labels[j] = c
				queue = append(queue, j)
			}
		}
		for len(queue) > 0 {
			q := queue[0]
			queue = queue[1:]
			if expanded[q] || len(neighborhoods[q]) < p.MinPoints {
				continue
			}
			expanded[q] = true
			for _, j := range neighborhoods[q] {
				if labels[j] == unvisited || labels[j] == domain.Noise {
					labels[j] = c
					queue = append(queue, j)
				}
			}
		}
	}

	for i, l := range labels {
		if l == unvisited {
			labels[i] = domain.Noise
		}
	}
	return Result{Labels: labels, Clusters: clusters}, nil
}

// neighborhoods returns, for every point, the ascending indices of all points
// (itself included) within epsilon.
func neighborhoods(ctx context.Context, vectors []domain.Vector, p Params) ([][]int, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([][]int, len(vectors))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range vectors {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var hood []int
			for j := range vectors {
				d, err := vecmath.Distance(vectors[i], vectors[j])
				if err != nil {
					return err
				}
				if d <= p.Epsilon {
					hood = append(hood, j)
				}
			}
			out[i] = hood
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
