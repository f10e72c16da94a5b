package hashing

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"railog/internal/domain"
)

// DefaultDimension matches the sentence-embedding models usually paired with this tool.
const DefaultDimension = 384

// Embedder implements a signed feature-hashing vectorizer over word unigrams
// and bigrams. It needs no corpus preparation, so vectors from different runs
// are comparable as long as the dimension is unchanged.
type Embedder struct {
	dimension    int
	bigrams      bool
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithBigrams toggles adjacent-token features.
func WithBigrams(enabled bool) Option { return func(e *Embedder) { e.bigrams = enabled } }

// NewEmbedder creates a hashing embedder producing vectors of the given dimension.
func NewEmbedder(dimension int, opts ...Option) (*Embedder, error) {
	if dimension <= 0 {
		return nil, errors.New("hashing embedder: dimension must be > 0")
	}
	e := &Embedder{
		dimension:    dimension,
		bigrams:      true,
		tokenPattern: regexp.MustCompile(`<[A-Za-z_]+>|\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Name identifies the embedder and its feature set. Vectors from embedders
// with different names are not comparable.
func (e *Embedder) Name() string {
	if e.bigrams {
		return "hashing/bigrams"
	}
	return "hashing/unigrams"
}

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the hashed, L2-normalized embedding for the given text.
// Text without tokens yields the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) (domain.Vector, error) {
	vec := make(domain.Vector, e.dimension)
	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}
	// Features are kept in first-seen order so bucket sums are bit-identical across runs.
	tf := make(map[string]int, len(tokens)*2)
	var features []string
	add := func(f string) {
		if tf[f] == 0 {
			features = append(features, f)
		}
		tf[f]++
	}
	for i, tok := range tokens {
		add(tok)
		if e.bigrams && i > 0 {
			add(tokens[i-1] + "\x00" + tok)
		}
	}
	for _, feature := range features {
		count := tf[feature]
		h := xxhash.Sum64String(feature)
		idx := int(h % uint64(e.dimension))
		sign := 1.0
		if h&(1<<63) != 0 {
			sign = -1.0
		}
		vec[idx] += sign * (1 + math.Log(float64(count)))
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
