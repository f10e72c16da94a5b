// Package sqlite stores a centroid model in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"railog/internal/domain"
	"railog/internal/model"
	"railog/internal/modelstore"
)

// Storage keeps one model per database: a key/value header table and one row per centroid.
type Storage struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer, and an in-memory database must not be split across connections.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, path: path}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) init() error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma failed: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS model_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS centroids (
			id       INTEGER PRIMARY KEY,
			count    INTEGER NOT NULL,
			exemplar TEXT NOT NULL DEFAULT '',
			vector   BLOB NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) String() string { return "sqlite:" + s.path }

// Save replaces the stored model in a single transaction.
func (s *Storage) Save(ctx context.Context, m *model.Model) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM model_meta"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM centroids"); err != nil {
		return err
	}

	meta := m.Meta()
	header := map[string]string{
		"version":    strconv.Itoa(modelstore.FormatVersion),
		"model_id":   meta.ID,
		"metric":     meta.Metric,
		"embedder":   meta.Embedder,
		"dimension":  strconv.Itoa(meta.Dimension),
		"next_id":    strconv.Itoa(meta.NextID),
		"created_at": meta.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": meta.UpdatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range header {
		if _, err := tx.ExecContext(ctx, "INSERT INTO model_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO centroids (id, count, exemplar, vector) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range m.Centroids() {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Count, c.Exemplar, encodeFloat64Slice(c.Vector)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load reads the stored model and validates it.
func (s *Storage) Load(ctx context.Context) (*model.Model, error) {
	header, err := s.header(ctx)
	if err != nil {
		return nil, err
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, s)
	}
	doc := modelstore.Document{ModelID: header["model_id"], Metric: header["metric"], Embedder: header["embedder"]}
	ints := map[string]*int{"version": &doc.Version, "dimension": &doc.Dimension, "next_id": &doc.NextID}
	for k, dst := range ints {
		v, err := strconv.Atoi(header[k])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: header %s: %v", domain.ErrCorruptModel, s, k, err)
		}
		*dst = v
	}
	times := map[string]*time.Time{"created_at": &doc.CreatedAt, "updated_at": &doc.UpdatedAt}
	for k, dst := range times {
		v, err := time.Parse(time.RFC3339Nano, header[k])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: header %s: %v", domain.ErrCorruptModel, s, k, err)
		}
		*dst = v
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, count, exemplar, vector FROM centroids ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r modelstore.CentroidRecord
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Count, &r.Exemplar, &blob); err != nil {
			return nil, err
		}
		if len(blob)%8 != 0 {
			return nil, fmt.Errorf("%w: %s: centroid %d vector blob has %d bytes", domain.ErrCorruptModel, s, r.ID, len(blob))
		}
		r.Vector = decodeFloat64Slice(blob)
		doc.Centroids = append(doc.Centroids, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return modelstore.FromDocument(doc)
}

func (s *Storage) header(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM model_meta")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func encodeFloat64Slice(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeFloat64Slice(b []byte) []float64 {
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}
