// Package modelstore persists centroid models. The file store is the default;
// the memory, sqlite and qdrant sub-packages provide the alternatives.
package modelstore

import (
	"context"
	"time"

	"railog/internal/domain"
	"railog/internal/model"
)

// Store loads and saves a whole model. Load returns domain.ErrModelNotFound
// when nothing has been saved yet and domain.ErrCorruptModel when the stored
// model fails validation.
type Store interface {
	Load(ctx context.Context) (*model.Model, error)
	Save(ctx context.Context, m *model.Model) error
	String() string
}

// FormatVersion is the current persisted layout version.
const FormatVersion = 1

// Document is the serialized form of a model shared by the file and memory stores.
type Document struct {
	Version   int              `json:"version"`
	ModelID   string           `json:"model_id"`
	Metric    string           `json:"metric"`
	Embedder  string           `json:"embedder,omitempty"`
	Dimension int              `json:"dimension"`
	NextID    int              `json:"next_id"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Centroids []CentroidRecord `json:"centroids"`
}

// CentroidRecord is one persisted centroid.
type CentroidRecord struct {
	ID       int       `json:"id"`
	Vector   []float64 `json:"vector"`
	Count    int       `json:"count"`
	Exemplar string    `json:"exemplar,omitempty"`
}

// ToDocument converts a model into its persisted form.
func ToDocument(m *model.Model) Document {
	meta := m.Meta()
	doc := Document{
		Version:   FormatVersion,
		ModelID:   meta.ID,
		Metric:    meta.Metric,
		Embedder:  meta.Embedder,
		Dimension: meta.Dimension,
		NextID:    meta.NextID,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		Centroids: make([]CentroidRecord, 0, m.Len()),
	}
	for _, c := range m.Centroids() {
		doc.Centroids = append(doc.Centroids, CentroidRecord{
			ID:       c.ID,
			Vector:   append([]float64(nil), c.Vector...),
			Count:    c.Count,
			Exemplar: c.Exemplar,
		})
	}
	return doc
}

// FromDocument validates a persisted document and rebuilds the model.
func FromDocument(doc Document) (*model.Model, error) {
	if doc.Version != FormatVersion {
		return nil, corrupt("unsupported version %d", doc.Version)
	}
	centroids := make([]domain.Centroid, len(doc.Centroids))
	for i, r := range doc.Centroids {
		centroids[i] = domain.Centroid{ID: r.ID, Vector: r.Vector, Count: r.Count, Exemplar: r.Exemplar}
	}
	return model.Restore(model.Meta{
		ID:        doc.ModelID,
		Metric:    doc.Metric,
		Embedder:  doc.Embedder,
		Dimension: doc.Dimension,
		NextID:    doc.NextID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, centroids)
}
