// Package watcher follows a growing log file and ingests appended lines.
package watcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"railog/internal/batcher"
	"railog/internal/engine"
	"railog/internal/service"
)

// Follower tails one file. It watches the parent directory since fsnotify
// cannot watch a file across rotation.
type Follower struct {
	svc       *service.PatternService
	path      string
	fromStart bool
	batcher   *batcher.LineBatcher
	onBatch   func(engine.IngestReport)
	ready     chan struct{}

	offset  int64
	pending []byte
}

// Option configures a Follower.
type Option func(*Follower)

// FromStart ingests the existing content before following.
func FromStart(enabled bool) Option { return func(f *Follower) { f.fromStart = enabled } }

// OnBatch is called after each ingested batch has been persisted.
func OnBatch(fn func(engine.IngestReport)) Option { return func(f *Follower) { f.onBatch = fn } }

// WithBatchSize bounds how many lines are folded between saves.
func WithBatchSize(n int) Option { return func(f *Follower) { f.batcher = batcher.NewLineBatcher(n) } }

// New creates a follower for path.
func New(svc *service.PatternService, path string, opts ...Option) *Follower {
	f := &Follower{
		svc:     svc,
		path:    filepath.Clean(path),
		batcher: batcher.NewLineBatcher(0),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ready is closed once the watch is established.
func (f *Follower) Ready() <-chan struct{} { return f.ready }

// Run loads the model and ingests lines appended to the file until ctx is
// done. Every batch is folded by this goroutine and the model is saved
// after each one; unmatched lines are always appended.
func (f *Follower) Run(ctx context.Context) error {
	m, err := f.svc.LoadModel(ctx)
	if err != nil {
		return err
	}
	sess := f.svc.NewIngestSession(m)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}

	if !f.fromStart {
		if st, err := os.Stat(f.path); err == nil {
			f.offset = st.Size()
		}
	}
	if err := f.drain(ctx, sess); err != nil {
		return err
	}
	log.Info().Str("path", f.path).Int64("offset", f.offset).Msg("Following")
	close(f.ready)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Has(fsnotify.Create) {
				log.Info().Str("path", f.path).Msg("File recreated, reading from start")
				f.offset, f.pending = 0, nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := f.drain(ctx, sess); err != nil {
					return err
				}
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// drain reads everything past the current offset and ingests the complete lines.
func (f *Follower) drain(ctx context.Context, sess *service.IngestSession) error {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil {
		return err
	}
	if st.Size() < f.offset {
		log.Info().Str("path", f.path).Msg("File truncated, reading from start")
		f.offset, f.pending = 0, nil
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.offset += int64(len(data))
	f.pending = append(f.pending, data...)

	cut := bytes.LastIndexByte(f.pending, '\n')
	if cut < 0 {
		return nil
	}
	complete := f.pending[:cut+1]
	f.pending = append([]byte(nil), f.pending[cut+1:]...)

	return f.batcher.Each(bytes.NewReader(complete), func(lines []string) error {
		report, err := f.svc.IngestBatch(ctx, sess, lines)
		if err != nil {
			return err
		}
		if err := f.svc.Persist(ctx, sess.Model, report.Unmatched, false); err != nil {
			return err
		}
		if f.onBatch != nil {
			f.onBatch(report)
		}
		return nil
	})
}
