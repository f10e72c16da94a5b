// Package qdrant stores a centroid model as a Qdrant collection: one point per
// centroid plus a header point carrying the model metadata.
package qdrant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"railog/internal/domain"
	"railog/internal/model"
	"railog/internal/modelstore"
)

// headerID is the point id reserved for model metadata. Centroid points use
// their integer centroid id.
const headerID = "00000000-0000-0000-0000-000000000000"

const (
	kindHeader   = "header"
	kindCentroid = "centroid"
	pageSize     = 256
)

var errNotFound = errors.New("not found")

// Storage is a minimal REST client to Qdrant.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "railog"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) String() string { return fmt.Sprintf("qdrant:%s/%s", s.url, s.collection) }

type point struct {
	ID      any            `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Save drops and recreates the collection, then upserts every point.
func (s *Storage) Save(ctx context.Context, m *model.Model) error {
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil); err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     m.Dimension,
			"distance": "Euclid",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
		return err
	}

	meta := m.Meta()
	points := []point{{
		ID:     headerID,
		Vector: make([]float64, m.Dimension),
		Payload: map[string]any{
			"kind":       kindHeader,
			"version":    modelstore.FormatVersion,
			"model_id":   meta.ID,
			"metric":     meta.Metric,
			"embedder":   meta.Embedder,
			"next_id":    meta.NextID,
			"created_at": meta.CreatedAt.Format(time.RFC3339Nano),
			"updated_at": meta.UpdatedAt.Format(time.RFC3339Nano),
		},
	}}
	for _, c := range m.Centroids() {
		points = append(points, point{
			ID:     c.ID,
			Vector: c.Vector,
			Payload: map[string]any{
				"kind":     kindCentroid,
				"count":    c.Count,
				"exemplar": c.Exemplar,
			},
		})
	}
	for start := 0; start < len(points); start += pageSize {
		end := min(start+pageSize, len(points))
		req := map[string]any{"points": points[start:end]}
		if err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", req, nil); err != nil {
			return err
		}
	}
	return nil
}

type scrollResponse struct {
	Result struct {
		Points []struct {
			ID      json.RawMessage `json:"id"`
			Vector  []float64       `json:"vector"`
			Payload struct {
				Kind      string `json:"kind"`
				Version   int    `json:"version"`
				ModelID   string `json:"model_id"`
				Metric    string `json:"metric"`
				Embedder  string `json:"embedder"`
				NextID    int    `json:"next_id"`
				CreatedAt string `json:"created_at"`
				UpdatedAt string `json:"updated_at"`
				Count     int    `json:"count"`
				Exemplar  string `json:"exemplar"`
			} `json:"payload"`
		} `json:"points"`
		NextPageOffset json.RawMessage `json:"next_page_offset"`
	} `json:"result"`
}

// Load scrolls every point of the collection and rebuilds the model.
func (s *Storage) Load(ctx context.Context) (*model.Model, error) {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, &info); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, s)
		}
		return nil, err
	}

	doc := modelstore.Document{Dimension: info.Result.Config.Params.Vectors.Size}
	var sawHeader bool
	var offset json.RawMessage
	for {
		req := map[string]any{"limit": pageSize, "with_payload": true, "with_vector": true}
		if len(offset) > 0 {
			req["offset"] = offset
		}
		var resp scrollResponse
		if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/scroll", req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			switch p.Payload.Kind {
			case kindHeader:
				created, err1 := time.Parse(time.RFC3339Nano, p.Payload.CreatedAt)
				updated, err2 := time.Parse(time.RFC3339Nano, p.Payload.UpdatedAt)
				if err := errors.Join(err1, err2); err != nil {
					return nil, fmt.Errorf("%w: %s: header: %v", domain.ErrCorruptModel, s, err)
				}
				doc.Version = p.Payload.Version
				doc.ModelID = p.Payload.ModelID
				doc.Metric = p.Payload.Metric
				doc.Embedder = p.Payload.Embedder
				doc.NextID = p.Payload.NextID
				doc.CreatedAt = created
				doc.UpdatedAt = updated
				sawHeader = true
			case kindCentroid:
				var id int
				if err := json.Unmarshal(p.ID, &id); err != nil {
					return nil, fmt.Errorf("%w: %s: point id %s: %v", domain.ErrCorruptModel, s, p.ID, err)
				}
				doc.Centroids = append(doc.Centroids, modelstore.CentroidRecord{
					ID:       id,
					Vector:   p.Vector,
					Count:    p.Payload.Count,
					Exemplar: p.Payload.Exemplar,
				})
			default:
				return nil, fmt.Errorf("%w: %s: point %s has unknown kind %q", domain.ErrCorruptModel, s, p.ID, p.Payload.Kind)
			}
		}
		if len(resp.Result.NextPageOffset) == 0 || string(resp.Result.NextPageOffset) == "null" {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	if !sawHeader {
		return nil, fmt.Errorf("%w: %s: header point missing", domain.ErrCorruptModel, s)
	}
	sort.Slice(doc.Centroids, func(i, j int) bool { return doc.Centroids[i].ID < doc.Centroids[j].ID })
	return modelstore.FromDocument(doc)
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("qdrant %s %s: %w", method, url, errNotFound)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
