// Package engine implements the pattern workflows over in-memory lines and a
// centroid model: train, ingest (one line or many) and retrain.
//
// Normalization and embedding of distinct lines run concurrently; every model
// mutation is applied by the calling goroutine, one line at a time, in input
// order.
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"railog/internal/cluster"
	"railog/internal/domain"
	"railog/internal/embedding"
	"railog/internal/exemplar"
	"railog/internal/matcher"
	"railog/internal/model"
	"railog/internal/vecmath"
)

// Engine wires a normalizer and an embedder to the model operations.
type Engine struct {
	normalizer domain.Normalizer
	embedder   domain.Embedder
	exemplars  *exemplar.FrequencyPicker
	workers    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the goroutines used for embedding and neighborhood queries.
func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

// New creates an engine. A nil normalizer leaves lines unchanged.
func New(normalizer domain.Normalizer, embedder domain.Embedder, opts ...Option) *Engine {
	if normalizer == nil {
		normalizer = domain.Identity
	}
	e := &Engine{
		normalizer: normalizer,
		embedder:   embedder,
		exemplars:  exemplar.NewFrequencyPicker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embedder returns the engine's embedder.
func (e *Engine) Embedder() domain.Embedder { return e.embedder }

// Normalize applies the engine's normalizer.
func (e *Engine) Normalize(line string) string { return e.normalizer.Normalize(line) }

// MatchParams are the ingest parameters.
type MatchParams struct {
	Threshold    float64
	LearningRate float64
}

// Validate rejects a non-positive threshold and a learning rate outside (0, 1].
func (p MatchParams) Validate() error {
	if err := matcher.ValidateThreshold(p.Threshold); err != nil {
		return err
	}
	return matcher.ValidateRate(p.LearningRate)
}

// ClusterReport describes one clustering run.
type ClusterReport struct {
	Lines int
	// NewIDs are the ids of the centroids created, in cluster-discovery order.
	NewIDs []int
	// Noise holds the raw lines that joined no cluster, in input order.
	Noise []string
}

// Train clusters lines and returns a new model with one centroid per cluster.
func (e *Engine) Train(ctx context.Context, lines []string, p cluster.Params) (*model.Model, ClusterReport, error) {
	if err := p.Validate(); err != nil {
		return nil, ClusterReport{}, err
	}
	if len(lines) == 0 {
		return nil, ClusterReport{}, fmt.Errorf("%w: no lines to train on", domain.ErrEmptyInput)
	}
	m, err := model.New(e.embedder.Dimension())
	if err != nil {
		return nil, ClusterReport{}, err
	}
	m.Embedder = e.embedder.Name()
	report, err := e.discover(ctx, m, lines, p)
	if err != nil {
		return nil, ClusterReport{}, err
	}
	return m, report, nil
}

// Retrain clusters lines on their own and appends one centroid per cluster
// to m. Existing centroids are left untouched.
func (e *Engine) Retrain(ctx context.Context, m *model.Model, lines []string, p cluster.Params) (ClusterReport, error) {
	if err := p.Validate(); err != nil {
		return ClusterReport{}, err
	}
	if len(lines) == 0 {
		return ClusterReport{}, fmt.Errorf("%w: no lines to retrain on", domain.ErrEmptyInput)
	}
	if err := e.checkDimension(m); err != nil {
		return ClusterReport{}, err
	}
	return e.discover(ctx, m, lines, p)
}

// discover embeds lines, runs DBSCAN and appends the cluster means to m.
// Nothing is appended if any step fails.
func (e *Engine) discover(ctx context.Context, m *model.Model, lines []string, p cluster.Params) (ClusterReport, error) {
	normalized, vectors, err := e.embedLines(ctx, lines)
	if err != nil {
		return ClusterReport{}, err
	}
	if p.Workers == 0 {
		p.Workers = e.workers
	}
	res, err := cluster.DBSCAN(ctx, vectors, p)
	if err != nil {
		return ClusterReport{}, err
	}
	groups, err := cluster.Groups(vectors, res)
	if err != nil {
		return ClusterReport{}, err
	}

	for _, g := range groups {
		if err := vecmath.CheckDimension(m.Dimension, g.Mean); err != nil {
			return ClusterReport{}, err
		}
	}

	report := ClusterReport{Lines: len(lines)}
	for _, i := range res.Noise() {
		report.Noise = append(report.Noise, lines[i])
	}
	for _, g := range groups {
		members := make([]string, len(g.Members))
		for k, i := range g.Members {
			members[k] = normalized[i]
		}
		id, err := m.Append(g.Mean, len(g.Members), e.exemplars.Pick(members))
		if err != nil {
			return ClusterReport{}, err
		}
		report.NewIDs = append(report.NewIDs, id)
		log.Debug().Int("id", id).Int("members", len(g.Members)).Msg("Created centroid")
	}
	log.Info().
		Int("lines", len(lines)).
		Int("clusters", len(groups)).
		Int("noise", len(report.Noise)).
		Float64("epsilon", p.Epsilon).
		Int("min_points", p.MinPoints).
		Msg("Clustering complete")
	return report, nil
}

// Outcome is the result of ingesting one line.
type Outcome struct {
	Line     string
	Matched  bool
	ID       int
	Distance float64
}

// IngestOne classifies line against m. On a match within the threshold the
// matched centroid moves toward the line's vector and its count grows by one;
// otherwise m is unchanged.
func (e *Engine) IngestOne(ctx context.Context, m *model.Model, line string, p MatchParams) (Outcome, error) {
	if err := p.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := e.checkDimension(m); err != nil {
		return Outcome{}, err
	}
	v, err := e.embedder.Embed(ctx, e.normalizer.Normalize(line))
	if err != nil {
		return Outcome{}, err
	}
	return fold(m, line, v, p)
}

// Match classifies line against m without changing it. The outcome's
// Matched flag reports whether the nearest centroid is within threshold.
func (e *Engine) Match(ctx context.Context, m *model.Model, line string, threshold float64) (Outcome, error) {
	if err := matcher.ValidateThreshold(threshold); err != nil {
		return Outcome{}, err
	}
	if err := e.checkDimension(m); err != nil {
		return Outcome{}, err
	}
	out := Outcome{Line: line, ID: -1}
	if m.Len() == 0 {
		return out, nil
	}
	v, err := e.embedder.Embed(ctx, e.normalizer.Normalize(line))
	if err != nil {
		return Outcome{}, err
	}
	best, err := matcher.Nearest(m, v)
	if err != nil {
		return Outcome{}, err
	}
	out.ID, out.Distance = best.ID, best.Distance
	out.Matched = best.Distance <= threshold
	return out, nil
}

// IngestReport lists the outcome of every ingested line and the unmatched lines.
type IngestReport struct {
	Outcomes  []Outcome
	Unmatched []string
	Skipped   int
}

// Matched returns the number of lines that matched a centroid.
func (r IngestReport) Matched() int { return len(r.Outcomes) - len(r.Unmatched) }

// IngestOptions enable the optional line filters.
type IngestOptions struct {
	// Dedupe skips a line whose normalized form was already seen in this run.
	Dedupe bool
	// Seen carries the dedupe set across calls; a fresh set is used when nil.
	Seen map[string]struct{}
	// Skip, when set, drops lines for which it returns true before they are embedded.
	Skip func(line string) bool
}

// Ingest folds IngestOne over lines in order. Each decision sees the updates
// made by all earlier lines of the run.
func (e *Engine) Ingest(ctx context.Context, m *model.Model, lines []string, p MatchParams, opts IngestOptions) (IngestReport, error) {
	if err := p.Validate(); err != nil {
		return IngestReport{}, err
	}
	if err := e.checkDimension(m); err != nil {
		return IngestReport{}, err
	}

	var report IngestReport
	kept := make([]string, 0, len(lines))
	normalized := make([]string, 0, len(lines))
	seen := opts.Seen
	if seen == nil {
		seen = map[string]struct{}{}
	}
	for _, line := range lines {
		if opts.Skip != nil && opts.Skip(line) {
			report.Skipped++
			continue
		}
		norm := e.normalizer.Normalize(line)
		if opts.Dedupe {
			if _, dup := seen[norm]; dup {
				report.Skipped++
				continue
			}
			seen[norm] = struct{}{}
		}
		kept = append(kept, line)
		normalized = append(normalized, norm)
	}

	vectors, err := embedding.EmbedAll(ctx, e.embedder, normalized, e.workers)
	if err != nil {
		return IngestReport{}, err
	}
	for i, line := range kept {
		out, err := fold(m, line, vectors[i], p)
		if err != nil {
			return IngestReport{}, err
		}
		report.Outcomes = append(report.Outcomes, out)
		if !out.Matched {
			report.Unmatched = append(report.Unmatched, line)
		}
	}
	log.Info().
		Int("lines", len(lines)).
		Int("matched", report.Matched()).
		Int("unmatched", len(report.Unmatched)).
		Int("skipped", report.Skipped).
		Msg("Ingestion complete")
	return report, nil
}

// fold applies one match decision to m.
func fold(m *model.Model, line string, v domain.Vector, p MatchParams) (Outcome, error) {
	out := Outcome{Line: line, ID: -1}
	if m.Len() == 0 {
		log.Debug().Str("line", line).Msg("No match (model is empty)")
		return out, nil
	}
	best, err := matcher.Nearest(m, v)
	if err != nil {
		return Outcome{}, err
	}
	out.Distance = best.Distance
	if best.Distance > p.Threshold {
		log.Debug().Str("line", line).Float64("distance", best.Distance).Msg("No match")
		return out, nil
	}
	if err := matcher.Update(m, best.ID, v, p.LearningRate); err != nil {
		return Outcome{}, err
	}
	out.Matched = true
	out.ID = best.ID
	log.Debug().Str("line", line).Int("id", best.ID).Float64("distance", best.Distance).Msg("Match")
	return out, nil
}

// checkDimension rejects a model built by a different embedding function:
// a different vector length, or the same length under another embedder name.
func (e *Engine) checkDimension(m *model.Model) error {
	if m.Dimension != e.embedder.Dimension() {
		return fmt.Errorf("%w: model has dimension %d, %s embedder produces %d",
			domain.ErrDimensionMismatch, m.Dimension, e.embedder.Name(), e.embedder.Dimension())
	}
	if m.Embedder != "" && m.Embedder != e.embedder.Name() {
		return fmt.Errorf("%w: model was built with the %s embedder, configured embedder is %s",
			domain.ErrDimensionMismatch, m.Embedder, e.embedder.Name())
	}
	return nil
}

func (e *Engine) embedLines(ctx context.Context, lines []string) ([]string, []domain.Vector, error) {
	normalized := make([]string, len(lines))
	for i, line := range lines {
		normalized[i] = e.normalizer.Normalize(line)
	}
	vectors, err := embedding.EmbedAll(ctx, e.embedder, normalized, e.workers)
	if err != nil {
		return nil, nil, err
	}
	return normalized, vectors, nil
}
