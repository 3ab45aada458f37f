package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the document chat pipeline.
type Config struct {
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Assembly   AssemblyConfig   `yaml:"assembly"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retry      RetryConfig      `yaml:"retry"`
	Upload     UploadConfig     `yaml:"upload"`
}

// ChunkingConfig holds text segmentation configuration. Sizes are in
// characters.
type ChunkingConfig struct {
	MaxChars     int `yaml:"max_chars"`
	OverlapChars int `yaml:"overlap_chars"`
}

// RetrievalConfig holds retrieval configuration.
type RetrievalConfig struct {
	TopK            int     `yaml:"top_k"`
	MinScore        float64 `yaml:"min_score"` // Filter results below this similarity (0 = disabled)
	CacheSize       int     `yaml:"cache_size"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// AssemblyConfig holds prompt assembly configuration. The budget is a hard
// ceiling in characters.
type AssemblyConfig struct {
	CharBudget      int    `yaml:"char_budget"`
	MaxHistoryTurns int    `yaml:"max_history_turns"`
	Preamble        string `yaml:"preamble,omitempty"` // Empty uses the built-in preamble
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`    // "openai", "ollama", "mock"
	Model     string `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string `yaml:"base_url,omitempty"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// GenerationConfig holds language model provider configuration.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // "openai", "xai", "deepseek", "local"
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Stream      bool    `yaml:"stream"`
	Fallback    bool    `yaml:"fallback"` // Answer from excerpts when the service is down
}

// RetryConfig holds the backoff policy for external calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms"`
}

// UploadConfig holds upload limits and bulk-upload patterns.
type UploadConfig struct {
	MaxFileBytes int64    `yaml:"max_file_bytes"`
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			MaxChars:     1000,
			OverlapChars: 100,
		},
		Retrieval: RetrievalConfig{
			TopK:            3,
			MinScore:        0,
			CacheSize:       100,
			CacheTTLSeconds: 300,
		},
		Assembly: AssemblyConfig{
			CharBudget:      12000,
			MaxHistoryTurns: 10,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
			BatchSize: 100,
		},
		Generation: GenerationConfig{
			Provider:    "xai",
			Model:       "grok-beta",
			MaxTokens:   1000,
			Temperature: 0.7,
			Fallback:    true,
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			InitialBackoffMS: 500,
			MaxBackoffMS:     5000,
		},
		Upload: UploadConfig{
			MaxFileBytes: 10 * 1024 * 1024,
			Includes:     []string{"**/*.txt", "**/*.md", "**/*.markdown"},
			Excludes:     []string{"**/node_modules/**", "**/.git/**", "**/.docchat/**"},
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docchat.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docchat.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".docchat", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StoreDBPath returns the path to the database file.
func StoreDBPath(dir string) string {
	return filepath.Join(dir, ".docchat", "docchat.db")
}

// EnsureDataDir ensures the .docchat directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".docchat"), 0755)
}
