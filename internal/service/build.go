package service

import (
	"fmt"
	"os"
	"time"

	"railog/internal/cluster"
	"railog/internal/config"
	"railog/internal/domain"
	"railog/internal/embedding/hashing"
	"railog/internal/embedding/openai"
	"railog/internal/engine"
	"railog/internal/modelstore"
	"railog/internal/modelstore/qdrant"
	"railog/internal/modelstore/sqlite"
	"railog/internal/normalizer"
)

// NewEmbedder builds the embedder selected by cfg.
func NewEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		emb, err := hashing.NewEmbedder(cfg.Embedder.Dimension, hashing.WithBigrams(cfg.Embedder.Bigrams))
		if err != nil {
			return nil, err
		}
		return emb, nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrInvalidParameter)
		}
		oc := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:           oc.BaseURL,
			APIKeyEnv:         oc.APIKeyEnv,
			Model:             oc.Model,
			Dimension:         cfg.Embedder.Dimension,
			Timeout:           cfg.OpenAITimeout(),
			RequestsPerSecond: oc.RequestsPerSecond,
			AllowMissingKey:   oc.AllowMissingKey,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidParameter, cfg.Embedder.Type)
	}
}

// NewStore builds the model store selected by cfg. The returned close
// function releases any held resources.
func NewStore(cfg *config.AppConfig) (modelstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.ModelStore.Type {
	case "file", "":
		return modelstore.NewFile(cfg.ModelStore.Path), noop, nil
	case "sqlite":
		st, err := sqlite.Open(cfg.ModelStore.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "qdrant":
		qc := cfg.ModelStore.Qdrant
		if qc == nil {
			return nil, nil, fmt.Errorf("%w: qdrant config missing", domain.ErrInvalidParameter)
		}
		var key string
		if qc.APIKeyEnv != "" {
			key = os.Getenv(qc.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        qc.URL,
			APIKey:     key,
			Collection: qc.Collection,
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
		}), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown model store %q", domain.ErrInvalidParameter, cfg.ModelStore.Type)
	}
}

// NewEngine loads the normalization rules (the configured file, or
// patterns.txt when none is set) and builds the engine.
func NewEngine(cfg *config.AppConfig, emb domain.Embedder) (*engine.Engine, error) {
	norm, err := normalizer.Open(cfg.Normalizer.RulesFile, normalizer.WithReplaceAll(cfg.Normalizer.ReplaceAll))
	if err != nil {
		return nil, err
	}
	return engine.New(norm, emb, engine.WithWorkers(cfg.Embedder.Workers)), nil
}

// OptionsFromConfig maps config sections to workflow options.
func OptionsFromConfig(cfg *config.AppConfig) Options {
	return Options{
		Clustering: cluster.Params{
			Epsilon:   cfg.Clustering.Epsilon,
			MinPoints: cfg.Clustering.MinPoints,
			Workers:   cfg.Embedder.Workers,
		},
		Matching: engine.MatchParams{
			Threshold:    cfg.Matching.Threshold,
			LearningRate: cfg.Matching.LearningRate,
		},
		BatchSize:         cfg.Embedder.BatchSize,
		UnmatchedFile:     cfg.Ingest.UnmatchedFile,
		TruncateUnmatched: cfg.Ingest.UnmatchedMode == config.UnmatchedTruncate,
		Dedupe:            cfg.Ingest.Dedupe,
		SkipBeforeModel:   cfg.Ingest.SkipBeforeModel,
		NoiseFile:         cfg.Retrain.NoiseFile,
	}
}

// New assembles a PatternService from cfg. Call the returned close function
// when done.
func New(cfg *config.AppConfig) (*PatternService, func() error, error) {
	emb, err := NewEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	eng, err := NewEngine(cfg, emb)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := NewStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewPatternService(eng, store, OptionsFromConfig(cfg)), closeStore, nil
}
