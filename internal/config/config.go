package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"studyrag/internal/logging"
	"studyrag/internal/retrieval"
)

// RemoteEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type RemoteEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries"`
}

// BreakerConfig controls when a failing remote embedder is skipped.
type BreakerConfig struct {
	MaxFailures  uint32 `yaml:"max_failures"`
	CooldownSecs int    `yaml:"cooldown_secs"`
}

// EmbedderConfig configures the remote embedder and its local fallback.
// Remote is optional; both produce vectors of Dimension.
type EmbedderConfig struct {
	Dimension int                   `yaml:"dimension"`
	CacheSize int                   `yaml:"cache_size"`
	Remote    *RemoteEmbedderConfig `yaml:"remote,omitempty"`
	Breaker   BreakerConfig         `yaml:"breaker"`
}

type ExtractorConfig struct {
	PageMarkers bool `yaml:"page_markers"`
}

// ChunkerConfig configures the sliding window, in characters.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Metric string        `yaml:"metric"`
	Dir    string        `yaml:"dir"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	CollectionPrefix string `yaml:"collection_prefix"`
	Distance         string `yaml:"distance"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// BandsConfig overrides the score normalization cut-offs. Omitted fields
// keep their defaults.
type BandsConfig struct {
	DistanceAbove *float64 `yaml:"distance_above,omitempty"`
	CosineLow     *float64 `yaml:"cosine_low,omitempty"`
	CosineHigh    *float64 `yaml:"cosine_high,omitempty"`
}

// Bands applies the override to the default bands. A nil override yields
// the defaults.
func (b *BandsConfig) Bands() retrieval.Bands {
	out := retrieval.DefaultBands()
	if b == nil {
		return out
	}
	if b.DistanceAbove != nil {
		out.DistanceAbove = *b.DistanceAbove
	}
	if b.CosineLow != nil {
		out.CosineLow = *b.CosineLow
	}
	if b.CosineHigh != nil {
		out.CosineHigh = *b.CosineHigh
	}
	return out
}

type RetrievalConfig struct {
	TopK           int          `yaml:"top_k"`
	Threshold      float64      `yaml:"threshold"`
	CandidateLimit int          `yaml:"candidate_limit"`
	Bands          *BandsConfig `yaml:"bands,omitempty"`
}

// GeneratorConfig selects the answer generator. "extractive" works offline.
type GeneratorConfig struct {
	Type             string  `yaml:"type"`
	BaseURL          string  `yaml:"base_url"`
	APIKeyEnv        string  `yaml:"api_key_env"`
	Model            string  `yaml:"model"`
	Temperature      float32 `yaml:"temperature"`
	NotesTemperature float32 `yaml:"notes_temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	NotesMaxTokens   int     `yaml:"notes_max_tokens"`
	HistoryTurns     int     `yaml:"history_turns"`
	TimeoutSecs      int     `yaml:"timeout_secs"`
	MaxRetries       int     `yaml:"max_retries"`
}

type TranslatorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	TargetLanguage string `yaml:"target_language"`
	Model          string `yaml:"model"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Translator  TranslatorConfig  `yaml:"translator"`
	Log         logging.Config    `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/studyrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/studyrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
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
	cfg := defaultConfig()
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

// Validate rejects settings no component could run with.
func (c *AppConfig) Validate() error {
	if c.Chunker.Size <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunker: need size > 0 and 0 <= overlap < size, got size %d overlap %d", c.Chunker.Size, c.Chunker.Overlap)
	}
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("embedder: dimension must be positive, got %d", c.Embedder.Dimension)
	}
	switch c.VectorStore.Type {
	case "memory":
		switch c.VectorStore.Metric {
		case "l2", "cosine", "dot":
		default:
			return fmt.Errorf("vector_store: unknown metric %q", c.VectorStore.Metric)
		}
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return errors.New("vector_store: qdrant.url is required for the qdrant store")
		}
	default:
		return fmt.Errorf("vector_store: unknown type %q", c.VectorStore.Type)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval: top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval: threshold must be within [0,1], got %v", c.Retrieval.Threshold)
	}
	if b := c.Retrieval.Bands.Bands(); b.CosineLow > b.CosineHigh {
		return fmt.Errorf("retrieval: bands cosine_low %v above cosine_high %v", b.CosineLow, b.CosineHigh)
	}
	switch c.Generator.Type {
	case "openai", "extractive":
	default:
		return fmt.Errorf("generator: unknown type %q", c.Generator.Type)
	}
	return nil
}

// Seconds converts a *_secs setting into a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "studyrag", "config.yaml"), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vector_store"
	}
	return filepath.Join(home, ".local", "share", "studyrag", "indexes")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 256
	}
	if cfg.Embedder.Breaker.MaxFailures == 0 {
		cfg.Embedder.Breaker.MaxFailures = 3
	}
	if cfg.Embedder.Breaker.CooldownSecs == 0 {
		cfg.Embedder.Breaker.CooldownSecs = 60
	}
	if r := cfg.Embedder.Remote; r != nil {
		if r.BaseURL == "" {
			r.BaseURL = "https://api.openai.com/v1"
		}
		if r.APIKeyEnv == "" {
			r.APIKeyEnv = "OPENAI_API_KEY"
		}
		if r.Model == "" {
			r.Model = "text-embedding-3-small"
		}
		if r.TimeoutSecs == 0 {
			r.TimeoutSecs = 30
		}
		if r.BatchSize == 0 {
			r.BatchSize = 32
		}
		if r.MaxRetries == 0 {
			r.MaxRetries = 2
		}
	}

	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1000
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = 200
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Metric == "" {
		cfg.VectorStore.Metric = "l2"
	}
	if cfg.VectorStore.Dir == "" {
		cfg.VectorStore.Dir = defaultDataDir()
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "studyrag"
		}
		if q.Distance == "" {
			q.Distance = "Cosine"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = 0.75
	}
	if cfg.Retrieval.CandidateLimit == 0 {
		cfg.Retrieval.CandidateLimit = 50
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Generator.HistoryTurns == 0 {
		cfg.Generator.HistoryTurns = 5
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if cfg.Translator.TargetLanguage == "" {
		cfg.Translator.TargetLanguage = "Sinhala"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
