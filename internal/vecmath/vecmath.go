// Package vecmath holds the Euclidean vector-space helpers used by the
// clusterer, the matcher and the model loader.
package vecmath

import (
	"fmt"
	"math"

	"railog/internal/domain"
)

// Distance returns the Euclidean distance between a and b.
func Distance(a, b domain.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	return math.Sqrt(squaredL2(a, b)), nil
}

// squaredL2 assumes equal lengths.
func squaredL2(a, b domain.Vector) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Mean returns the component-wise arithmetic mean of vectors.
func Mean(vectors []domain.Vector) (domain.Vector, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: mean of no vectors", domain.ErrEmptyInput)
	}
	dim := len(vectors[0])
	out := make(domain.Vector, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(v), dim)
		}
		for i, x := range v {
			out[i] += x
		}
	}
	n := float64(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}

// Lerp moves from toward to by rate: from*(1-rate) + to*rate, written into a new vector.
func Lerp(from, to domain.Vector, rate float64) (domain.Vector, error) {
	if len(from) != len(to) {
		return nil, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(from), len(to))
	}
	out := make(domain.Vector, len(from))
	for i := range from {
		out[i] = from[i]*(1-rate) + to[i]*rate
	}
	return out, nil
}

// CheckDimension verifies that every vector has length dim.
func CheckDimension(dim int, vectors ...domain.Vector) error {
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d components, want %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

// Finite reports whether every component is a finite number.
func Finite(v domain.Vector) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
