// Package service runs the pattern workflows against files and a model store.
package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"railog/internal/batcher"
	"railog/internal/cluster"
	"railog/internal/domain"
	"railog/internal/engine"
	"railog/internal/model"
	"railog/internal/modelstore"
)

// Options holds the workflow parameters and output locations.
type Options struct {
	Clustering cluster.Params
	Matching   engine.MatchParams
	BatchSize  int

	UnmatchedFile string
	// TruncateUnmatched replaces the unmatched file instead of appending to it.
	TruncateUnmatched bool
	Dedupe            bool
	SkipBeforeModel   bool

	// NoiseFile receives retrain noise lines. Empty discards them.
	NoiseFile string
}

// PatternService wires an engine to a model store and the file system.
type PatternService struct {
	engine  *engine.Engine
	store   modelstore.Store
	batcher *batcher.LineBatcher
	opts    Options
	now     func() time.Time
}

func NewPatternService(eng *engine.Engine, store modelstore.Store, opts Options) *PatternService {
	return &PatternService{
		engine:  eng,
		store:   store,
		batcher: batcher.NewLineBatcher(opts.BatchSize),
		opts:    opts,
		now:     time.Now,
	}
}

// Store returns the model store the service reads and writes.
func (s *PatternService) Store() modelstore.Store { return s.store }

// Engine returns the underlying engine.
func (s *PatternService) Engine() *engine.Engine { return s.engine }

// TrainFile builds a new model from every line of input and saves it,
// replacing any stored model.
func (s *PatternService) TrainFile(ctx context.Context, input string) (engine.ClusterReport, error) {
	lines, err := s.batcher.ReadFile(input)
	if err != nil {
		return engine.ClusterReport{}, err
	}
	log.Info().Str("input", input).Int("lines", len(lines)).Msg("Training")
	m, report, err := s.engine.Train(ctx, lines, s.opts.Clustering)
	if err != nil {
		return engine.ClusterReport{}, err
	}
	if len(report.NewIDs) == 0 {
		log.Warn().Int("lines", len(lines)).Msg("No clusters found; saving an empty model")
	}
	if err := s.store.Save(ctx, m); err != nil {
		return engine.ClusterReport{}, fmt.Errorf("save model: %w", err)
	}
	log.Info().Str("store", s.store.String()).Int("centroids", m.Len()).Msg("Model saved")
	return report, nil
}

// LoadModel loads the stored model.
func (s *PatternService) LoadModel(ctx context.Context) (*model.Model, error) {
	m, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("store", s.store.String()).Str("model_id", m.ID).Int("centroids", m.Len()).Msg("Model loaded")
	return m, nil
}

// IngestSession carries the state shared by consecutive ingest batches.
type IngestSession struct {
	Model  *model.Model
	seen   map[string]struct{}
	cutoff time.Time
}

// NewIngestSession starts a session over m. The timestamp cutoff, when
// enabled, is the model's last update before the session begins.
func (s *PatternService) NewIngestSession(m *model.Model) *IngestSession {
	sess := &IngestSession{Model: m}
	if s.opts.Dedupe {
		sess.seen = map[string]struct{}{}
	}
	if s.opts.SkipBeforeModel {
		sess.cutoff = m.UpdatedAt
	}
	return sess
}

// IngestBatch folds lines into the session's model.
func (s *PatternService) IngestBatch(ctx context.Context, sess *IngestSession, lines []string) (engine.IngestReport, error) {
	opts := engine.IngestOptions{Dedupe: s.opts.Dedupe, Seen: sess.seen}
	if !sess.cutoff.IsZero() {
		now := s.now()
		opts.Skip = func(line string) bool {
			ts, ok := SyslogTime(line, now)
			return ok && ts.Before(sess.cutoff)
		}
	}
	return s.engine.Ingest(ctx, sess.Model, lines, s.opts.Matching, opts)
}

// IngestSummary totals an ingest run.
type IngestSummary struct {
	Lines     int
	Matched   int
	Unmatched int
	Skipped   int
}

// IngestFile folds every line of input into the stored model, saves the
// model, then writes the unmatched raw lines.
func (s *PatternService) IngestFile(ctx context.Context, input string) (IngestSummary, error) {
	f, err := os.Open(input)
	if err != nil {
		return IngestSummary{}, err
	}
	defer f.Close()
	return s.IngestReader(ctx, f)
}

// IngestReader is IngestFile over an arbitrary reader.
func (s *PatternService) IngestReader(ctx context.Context, r io.Reader) (IngestSummary, error) {
	m, err := s.LoadModel(ctx)
	if err != nil {
		return IngestSummary{}, err
	}
	sess := s.NewIngestSession(m)

	var sum IngestSummary
	var unmatched []string
	err = s.batcher.Each(r, func(batch []string) error {
		report, err := s.IngestBatch(ctx, sess, batch)
		if err != nil {
			return err
		}
		sum.Lines += len(batch)
		sum.Matched += report.Matched()
		sum.Unmatched += len(report.Unmatched)
		sum.Skipped += report.Skipped
		unmatched = append(unmatched, report.Unmatched...)
		return nil
	})
	if err != nil {
		return IngestSummary{}, err
	}
	if err := s.Persist(ctx, m, unmatched, s.opts.TruncateUnmatched); err != nil {
		return IngestSummary{}, err
	}
	log.Info().
		Int("lines", sum.Lines).
		Int("matched", sum.Matched).
		Int("unmatched", sum.Unmatched).
		Int("skipped", sum.Skipped).
		Str("unmatched_file", s.opts.UnmatchedFile).
		Msg("Ingest complete")
	return sum, nil
}

// Persist saves m, then writes unmatched to the unmatched file. Nothing is
// written to the unmatched file if the save fails.
func (s *PatternService) Persist(ctx context.Context, m *model.Model, unmatched []string, truncate bool) error {
	if err := s.store.Save(ctx, m); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if s.opts.UnmatchedFile == "" {
		return nil
	}
	if truncate {
		return modelstore.WriteFileAtomic(s.opts.UnmatchedFile, joinLines(unmatched), 0o644)
	}
	return appendLines(s.opts.UnmatchedFile, unmatched)
}

// RetrainFile clusters the lines of input on their own and appends the new
// centroids to the stored model.
func (s *PatternService) RetrainFile(ctx context.Context, input string) (engine.ClusterReport, error) {
	m, err := s.LoadModel(ctx)
	if err != nil {
		return engine.ClusterReport{}, err
	}
	lines, err := s.batcher.ReadFile(input)
	if err != nil {
		return engine.ClusterReport{}, err
	}
	log.Info().Str("input", input).Int("lines", len(lines)).Int("centroids", m.Len()).Msg("Retraining")
	report, err := s.engine.Retrain(ctx, m, lines, s.opts.Clustering)
	if err != nil {
		return engine.ClusterReport{}, err
	}
	if err := s.store.Save(ctx, m); err != nil {
		return engine.ClusterReport{}, fmt.Errorf("save model: %w", err)
	}
	log.Info().Int("added", len(report.NewIDs)).Int("centroids", m.Len()).Int("next_id", m.NextID).Msg("Model saved")
	if s.opts.NoiseFile != "" {
		if err := modelstore.WriteFileAtomic(s.opts.NoiseFile, joinLines(report.Noise), 0o644); err != nil {
			return engine.ClusterReport{}, fmt.Errorf("write noise file: %w", err)
		}
	}
	return report, nil
}

// TestPatterns writes the original and normalized form of every line of r.
// Blank lines are shown too, since they reveal how rules treat whitespace.
func (s *PatternService) TestPatterns(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	for {
		raw, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if raw != "" {
			line := strings.TrimRight(strings.TrimSuffix(raw, "\n"), "\r")
			fmt.Fprintf(bw, "Original:  '%s'\nProcessed: '%s'\n\n", line, s.engine.Normalize(line))
		}
		if err != nil {
			break
		}
	}
	return bw.Flush()
}

// Export copies the model held by s into dst.
func (s *PatternService) Export(ctx context.Context, dst modelstore.Store) (*model.Model, error) {
	m, err := s.LoadModel(ctx)
	if err != nil {
		return nil, err
	}
	if err := dst.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("export to %s: %w", dst, err)
	}
	log.Info().Str("from", s.store.String()).Str("to", dst.String()).Int("centroids", m.Len()).Msg("Model exported")
	return m, nil
}

// Inspection is a loaded model opened for read-only classification.
type Inspection struct {
	svc   *PatternService
	Model *model.Model
}

// Classification is the read-only verdict for one line.
type Classification struct {
	engine.Outcome
	Normalized string
}

// Inspect loads the stored model for browsing.
func (s *PatternService) Inspect(ctx context.Context) (*Inspection, error) {
	m, err := s.LoadModel(ctx)
	if err != nil {
		return nil, err
	}
	return &Inspection{svc: s, Model: m}, nil
}

// Classify matches line against the model using the configured threshold.
func (i *Inspection) Classify(ctx context.Context, line string) (Classification, error) {
	out, err := i.svc.engine.Match(ctx, i.Model, line, i.svc.opts.Matching.Threshold)
	if err != nil {
		return Classification{}, err
	}
	return Classification{Outcome: out, Normalized: i.svc.engine.Normalize(line)}, nil
}

const syslogLayout = "Jan _2 15:04:05 2006"

// SyslogTime parses a leading "Jan _2 15:04:05" timestamp, which carries no
// year, in the local zone and in now's year.
func SyslogTime(line string, now time.Time) (time.Time, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return time.Time{}, false
	}
	value := strings.Join(fields[:3], " ") + fmt.Sprintf(" %d", now.Year())
	ts, err := time.ParseInLocation(syslogLayout, value, now.Location())
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func appendLines(path string, lines []string) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if len(lines) == 0 {
		return nil
	}
	_, err = f.Write(joinLines(lines))
	return err
}

// IsNotFound reports whether err means no model has been stored yet.
func IsNotFound(err error) bool { return errors.Is(err, domain.ErrModelNotFound) }
