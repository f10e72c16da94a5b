// Package model holds the centroid model: the single piece of durable state
// shared by the train, ingest and retrain workflows.
//
// A *Model is owned by exactly one running workflow at a time and is passed
// by reference through its fold; it carries no locks.
package model

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"railog/internal/domain"
	"railog/internal/vecmath"
)

// MetricEuclidean is the only distance metric a model can be created with.
const MetricEuclidean = "euclidean"

// Model is an ordered set of centroids (id ascending) plus the next id to assign.
type Model struct {
	ID     string
	Metric string
	// Embedder names the embedding function the centroids were built with.
	// Empty when unknown.
	Embedder  string
	Dimension int
	NextID    int
	CreatedAt time.Time
	UpdatedAt time.Time

	centroids []domain.Centroid
}

// New creates an empty model for vectors of the given dimensionality.
func New(dimension int) (*Model, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be > 0, got %d", domain.ErrInvalidParameter, dimension)
	}
	now := time.Now().UTC()
	return &Model{
		ID:        uuid.NewString(),
		Metric:    MetricEuclidean,
		Dimension: dimension,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Len returns the number of centroids.
func (m *Model) Len() int { return len(m.centroids) }

// Centroids returns the centroids in id order. The slice must not be modified.
func (m *Model) Centroids() []domain.Centroid { return m.centroids }

// Centroid returns a copy of the centroid with the given id.
func (m *Model) Centroid(id int) (domain.Centroid, bool) {
	i, ok := m.index(id)
	if !ok {
		return domain.Centroid{}, false
	}
	c := m.centroids[i]
	c.Vector = slices.Clone(c.Vector)
	return c, true
}

func (m *Model) index(id int) (int, bool) {
	i := sort.Search(len(m.centroids), func(i int) bool { return m.centroids[i].ID >= id })
	return i, i < len(m.centroids) && m.centroids[i].ID == id
}

// Append adds a centroid under the next id and returns that id.
func (m *Model) Append(vector domain.Vector, count int, exemplar string) (int, error) {
	if err := vecmath.CheckDimension(m.Dimension, vector); err != nil {
		return 0, err
	}
	id := m.NextID
	m.centroids = append(m.centroids, domain.Centroid{
		ID:       id,
		Vector:   slices.Clone(vector),
		Count:    count,
		Exemplar: exemplar,
	})
	m.NextID++
	m.touch()
	return id, nil
}

// Replace overwrites the vector of centroid id and adds delta to its count.
func (m *Model) Replace(id int, vector domain.Vector, delta int) error {
	i, ok := m.index(id)
	if !ok {
		return fmt.Errorf("%w: no centroid with id %d", domain.ErrInvalidParameter, id)
	}
	if err := vecmath.CheckDimension(m.Dimension, vector); err != nil {
		return err
	}
	m.centroids[i].Vector = vector
	m.centroids[i].Count += delta
	m.touch()
	return nil
}

func (m *Model) touch() { m.UpdatedAt = time.Now().UTC() }

// Restore builds a model from persisted parts and validates it.
func Restore(meta Meta, centroids []domain.Centroid) (*Model, error) {
	m := &Model{
		ID:        meta.ID,
		Metric:    meta.Metric,
		Embedder:  meta.Embedder,
		Dimension: meta.Dimension,
		NextID:    meta.NextID,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		centroids: centroids,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Meta is the model header without its centroids.
type Meta struct {
	ID        string
	Metric    string
	Embedder  string
	Dimension int
	NextID    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Meta returns the model header.
func (m *Model) Meta() Meta {
	return Meta{
		ID:        m.ID,
		Metric:    m.Metric,
		Embedder:  m.Embedder,
		Dimension: m.Dimension,
		NextID:    m.NextID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// Validate checks the structural invariants. Violations are ErrCorruptModel.
func (m *Model) Validate() error {
	if m.Metric != MetricEuclidean {
		return fmt.Errorf("%w: unsupported metric %q", domain.ErrCorruptModel, m.Metric)
	}
	if m.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be > 0, got %d", domain.ErrCorruptModel, m.Dimension)
	}
	prev := -1
	for i, c := range m.centroids {
		if c.ID < 0 || c.ID <= prev {
			return fmt.Errorf("%w: centroid %d: id %d is not strictly ascending", domain.ErrCorruptModel, i, c.ID)
		}
		prev = c.ID
		if len(c.Vector) != m.Dimension {
			return fmt.Errorf("%w: centroid %d has %d components, want %d", domain.ErrCorruptModel, c.ID, len(c.Vector), m.Dimension)
		}
		if !vecmath.Finite(c.Vector) {
			return fmt.Errorf("%w: centroid %d has non-finite components", domain.ErrCorruptModel, c.ID)
		}
		if c.Count < 0 {
			return fmt.Errorf("%w: centroid %d has negative count %d", domain.ErrCorruptModel, c.ID, c.Count)
		}
	}
	if m.NextID <= prev {
		return fmt.Errorf("%w: next id %d is not above max id %d", domain.ErrCorruptModel, m.NextID, prev)
	}
	return nil
}
