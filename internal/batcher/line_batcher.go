package batcher

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// DefaultBatchSize is the number of lines handed to the embedder at once.
const DefaultBatchSize = 1024

// LineBatcher splits a log stream into batches of lines.
type LineBatcher struct {
	batchSize int
}

// NewLineBatcher returns a batcher emitting at most batchSize lines per batch.
func NewLineBatcher(batchSize int) *LineBatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &LineBatcher{batchSize: batchSize}
}

// Each calls fn with consecutive batches read from r. Line endings, including
// a trailing carriage return, are stripped; blank lines are dropped. Lines
// have no length limit.
func (b *LineBatcher) Each(r io.Reader, fn func(batch []string) error) error {
	br := bufio.NewReader(r)
	batch := make([]string, 0, b.batchSize)
	for {
		raw, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
		if strings.TrimSpace(line) != "" {
			batch = append(batch, line)
			if len(batch) == b.batchSize {
				if err := fn(batch); err != nil {
					return err
				}
				batch = make([]string, 0, b.batchSize)
			}
		}
		if err != nil {
			break
		}
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// ReadAll collects every non-blank line of r.
func (b *LineBatcher) ReadAll(r io.Reader) ([]string, error) {
	var lines []string
	err := b.Each(r, func(batch []string) error {
		lines = append(lines, batch...)
		return nil
	})
	return lines, err
}

// ReadFile collects every non-blank line of the file at path.
func (b *LineBatcher) ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return b.ReadAll(f)
}
