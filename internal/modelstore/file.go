package modelstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"railog/internal/domain"
	"railog/internal/model"
)

// Compression of a model file, chosen by file extension.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// CompressionFor maps ".zst" and ".lz4" suffixes to their codecs.
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// File stores a model as a JSON document, optionally compressed.
// Saves replace the file atomically.
type File struct {
	path        string
	compression Compression
}

// NewFile returns a file store at path.
func NewFile(path string) *File {
	return &File{path: path, compression: CompressionFor(path)}
}

func (f *File) String() string { return "file:" + f.path }

// Load reads and validates the model file.
func (f *File) Load(_ context.Context) (*model.Model, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, f.path)
		}
		return nil, err
	}
	data, err := decompress(f.compression, raw)
	if err != nil {
		return nil, corrupt("%s: %v", f.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, corrupt("%s: %v", f.path, err)
	}
	m, err := FromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	return m, nil
}

// Save writes the model to a temporary file in the same directory, syncs it
// and renames it over the target, so readers never see a partial file.
func (f *File) Save(_ context.Context, m *model.Model) error {
	data, err := json.Marshal(ToDocument(m))
	if err != nil {
		return err
	}
	data, err = compress(f.compression, data)
	if err != nil {
		return err
	}
	return WriteFileAtomic(f.path, data, 0o644)
}

// WriteFileAtomic writes data next to path and renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func compress(c Compression, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch c {
	case CompressionZstd:
		enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		w = enc
	case CompressionLZ4:
		w = lz4.NewWriter(&buf)
	default:
		return data, nil
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionZstd:
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return data, nil
	}
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrCorruptModel, fmt.Sprintf(format, args...))
}
