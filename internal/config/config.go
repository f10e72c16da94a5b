package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"railog/internal/cluster"
	"railog/internal/domain"
	"railog/internal/matcher"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	AllowMissingKey   bool    `yaml:"allow_missing_key"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	Workers   int                   `yaml:"workers"`
	BatchSize int                   `yaml:"batch_size"`
	Bigrams   bool                  `yaml:"bigrams"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// NormalizerConfig points at the rewrite rules file.
type NormalizerConfig struct {
	RulesFile  string `yaml:"rules_file"`
	ReplaceAll bool   `yaml:"replace_all"`
}

// ClusteringConfig holds the DBSCAN parameters used by train and retrain.
type ClusteringConfig struct {
	Epsilon   float64 `yaml:"epsilon"`
	MinPoints int     `yaml:"min_points"`
}

// MatchingConfig holds the ingest parameters.
type MatchingConfig struct {
	Threshold    float64 `yaml:"threshold"`
	LearningRate float64 `yaml:"learning_rate"`
}

// Unmatched file modes.
const (
	UnmatchedAppend   = "append"
	UnmatchedTruncate = "truncate"
)

// IngestConfig configures the ingest workflow outputs and filters.
type IngestConfig struct {
	UnmatchedFile   string `yaml:"unmatched_file"`
	UnmatchedMode   string `yaml:"unmatched_mode"`
	Dedupe          bool   `yaml:"dedupe"`
	SkipBeforeModel bool   `yaml:"skip_before_model"`
}

// RetrainConfig configures the retrain workflow.
type RetrainConfig struct {
	// NoiseFile receives lines that joined no new cluster. Empty discards them.
	NoiseFile string `yaml:"noise_file"`
}

// ModelStoreConfig selects and configures where the model is persisted.
type ModelStoreConfig struct {
	Type   string        `yaml:"type"`
	Path   string        `yaml:"path"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant model store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Matching   MatchingConfig   `yaml:"matching"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retrain    RetrainConfig    `yaml:"retrain"`
	ModelStore ModelStoreConfig `yaml:"model_store"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	// Keys absent from the file keep their built-in values; keys present,
	// including explicit zeros, replace them.
	cfg := builtin()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./railog.yaml first, then ~/.config/railog/config.yaml.
// If neither exists, it writes defaults to ~/.config/railog/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "railog.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "railog", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := builtin()
	applyConfigDefaults(cfg)
	return cfg
}

// builtin holds the values a config file overrides key by key. Settings that
// depend on a chosen implementation are filled in by applyConfigDefaults.
// The rules file stays empty: that means "patterns.txt if it exists".
func builtin() *AppConfig {
	return &AppConfig{
		Embedder:   EmbedderConfig{Type: "hashing", Dimension: 384, BatchSize: 1024, Bigrams: true},
		Clustering: ClusteringConfig{Epsilon: 0.5, MinPoints: 3},
		Matching:   MatchingConfig{Threshold: 0.5, LearningRate: 0.1},
		Ingest:     IngestConfig{UnmatchedFile: "unmatched.log", UnmatchedMode: UnmatchedAppend},
		ModelStore: ModelStoreConfig{Type: "file"},
		Logging:    LoggingConfig{Level: "info"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Ingest.UnmatchedMode == "" {
		cfg.Ingest.UnmatchedMode = UnmatchedAppend
	}
	if cfg.ModelStore.Type == "" {
		cfg.ModelStore.Type = "file"
	}
	if cfg.ModelStore.Path == "" {
		switch cfg.ModelStore.Type {
		case "sqlite":
			cfg.ModelStore.Path = "centroids.db"
		default:
			cfg.ModelStore.Path = "centroids.json"
		}
	}
	if cfg.ModelStore.Type == "qdrant" {
		if cfg.ModelStore.Qdrant == nil {
			cfg.ModelStore.Qdrant = &QdrantConfig{}
		}
		if cfg.ModelStore.Qdrant.URL == "" {
			cfg.ModelStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.ModelStore.Qdrant.Collection == "" {
			cfg.ModelStore.Qdrant.Collection = "railog"
		}
		if cfg.ModelStore.Qdrant.TimeoutSecs == 0 {
			cfg.ModelStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate rejects unknown implementation names and out-of-range parameters.
// The engine checks the parameters again when a workflow starts, since CLI
// flags may override them after loading.
func (c *AppConfig) Validate() error {
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("%w: embedder dimension must be > 0, got %d", domain.ErrInvalidParameter, c.Embedder.Dimension)
	}
	p := cluster.Params{Epsilon: c.Clustering.Epsilon, MinPoints: c.Clustering.MinPoints}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := matcher.ValidateThreshold(c.Matching.Threshold); err != nil {
		return err
	}
	if err := matcher.ValidateRate(c.Matching.LearningRate); err != nil {
		return err
	}
	switch c.Embedder.Type {
	case "hashing", "openai":
	default:
		return fmt.Errorf("%w: unknown embedder type %q", domain.ErrInvalidParameter, c.Embedder.Type)
	}
	switch c.ModelStore.Type {
	case "file", "sqlite", "qdrant":
	default:
		return fmt.Errorf("%w: unknown model store type %q", domain.ErrInvalidParameter, c.ModelStore.Type)
	}
	switch c.Ingest.UnmatchedMode {
	case UnmatchedAppend, UnmatchedTruncate:
	default:
		return fmt.Errorf("%w: unknown unmatched mode %q", domain.ErrInvalidParameter, c.Ingest.UnmatchedMode)
	}
	return nil
}

// OpenAITimeout returns the embedder request timeout.
func (c *AppConfig) OpenAITimeout() time.Duration {
	if c.Embedder.OpenAI == nil {
		return 0
	}
	return time.Duration(c.Embedder.OpenAI.TimeoutSecs) * time.Second
}
