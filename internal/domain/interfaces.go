package domain

import "context"

// Vector is a fixed-length embedding of a normalized log line.
type Vector []float64

// Centroid is a learned log pattern: the mean of the vectors that formed it,
// moved online by every match since.
type Centroid struct {
	ID     int
	Vector Vector
	// Count is the number of observations that contributed to the centroid.
	Count int
	// Exemplar is a representative normalized line, informational only.
	Exemplar string
}

// Noise is the ClusterLabel of a point that belongs to no cluster.
const Noise ClusterLabel = -1

// ClusterLabel is a cluster index (0..k-1) or Noise.
type ClusterLabel int

// IsNoise reports whether the label marks an unassigned point.
func (l ClusterLabel) IsNoise() bool { return l < 0 }

// Normalizer rewrites a raw log line before it is embedded.
type Normalizer interface {
	Normalize(line string) string
}

// Embedder converts a normalized line into a fixed-dimensionality vector.
// Implementations must be deterministic and safe for concurrent use.
type Embedder interface {
	// Name identifies the embedding function. It is stored with a trained
	// model and must change whenever the produced vectors would.
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) (Vector, error)
}

// NormalizerFunc adapts a plain function to the Normalizer interface.
type NormalizerFunc func(string) string

// Normalize calls f(line).
func (f NormalizerFunc) Normalize(line string) string { return f(line) }

// Identity leaves lines untouched.
var Identity Normalizer = NormalizerFunc(func(s string) string { return s })
