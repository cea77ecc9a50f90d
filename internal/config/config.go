package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvDBPath            = "DOCSEARCH_DB_PATH"
	EnvRedisURL          = "REDIS_URL"
	EnvGeminiAPIKey      = "GEMINI_API_KEY"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvEmbeddingProvider = "DOCSEARCH_EMBEDDING_PROVIDER"
	EnvLogLevel          = "DOCSEARCH_LOG_LEVEL"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// DatabaseConfig locates the SQLite database
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig selects and tunes the embedding provider
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model,omitempty"`
	BaseURL           string        `yaml:"base_url,omitempty"`
	APIKey            string        `yaml:"-"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheSize         int           `yaml:"cache_size"`
	ProviderBatchSize int           `yaml:"provider_batch_size"`
	InterCallDelay    time.Duration `yaml:"inter_call_delay"`
	FallbackDelay     time.Duration `yaml:"fallback_delay"`
}

// BatchConfig bounds request coalescing
type BatchConfig struct {
	MaxBatchSize int           `yaml:"max_batch_size"`
	MaxWaitTime  time.Duration `yaml:"max_wait_time"`
	Concurrency  int           `yaml:"concurrency"`
}

// RateLimitConfig bounds provider calls
type RateLimitConfig struct {
	Ceiling     int           `yaml:"ceiling"`
	Window      time.Duration `yaml:"window"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// ChunkingConfig configures passage windows
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// CacheConfig selects the cache backing store
type CacheConfig struct {
	Backend  string        `yaml:"backend"` // memory or redis
	RedisURL string        `yaml:"redis_url,omitempty"`
	TTL      time.Duration `yaml:"ttl"`
	TagGrace time.Duration `yaml:"tag_grace"`
}

// SearchConfig tunes query handling and result assembly
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	OverFetch    int `yaml:"over_fetch"`
	MinOverlap   int `yaml:"min_overlap"`
}

// IngestConfig tunes directory ingestion
type IngestConfig struct {
	Extensions []string `yaml:"extensions"`
	Workers    int      `yaml:"workers"`
}

// MCPConfig sets per-tool request budgets
type MCPConfig struct {
	SearchPerMinute int `yaml:"search_per_minute"`
	UploadPerHour   int `yaml:"upload_per_hour"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Config is the root application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Batch     BatchConfig     `yaml:"batch"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	MCP       MCPConfig       `yaml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads a config from path. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadDefault loads .env, then tries ./docsearch.yaml and
// ~/.config/docsearch/config.yaml. With neither present it returns defaults
// and an empty path.
func LoadDefault() (*Config, string, error) {
	_ = godotenv.Load()

	cwdPath := "docsearch.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}

	userPath, err := DefaultUserConfigPath()
	if err == nil {
		if _, statErr := os.Stat(userPath); statErr == nil {
			cfg, err := Load(userPath)
			return cfg, userPath, err
		}
	}

	cfg := Default()
	applyEnv(cfg)
	return cfg, "", nil
}

// Save writes the config to path, creating directories as needed
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath returns ~/.config/docsearch/config.yaml
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docsearch", "config.yaml"), nil
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "docsearch.db"
	}

	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = "gemini"
	}
	if e.Timeout == 0 {
		e.Timeout = 30 * time.Second
	}
	if e.CacheSize == 0 {
		e.CacheSize = 10000
	}
	if e.ProviderBatchSize == 0 {
		e.ProviderBatchSize = 1
	}
	if e.InterCallDelay == 0 {
		e.InterCallDelay = 500 * time.Millisecond
	}
	if e.FallbackDelay == 0 {
		e.FallbackDelay = time.Second
	}

	if cfg.Batch.MaxBatchSize == 0 {
		cfg.Batch.MaxBatchSize = 5
	}
	if cfg.Batch.MaxWaitTime == 0 {
		cfg.Batch.MaxWaitTime = 2 * time.Second
	}
	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = 2
	}

	r := &cfg.RateLimit
	if r.Ceiling == 0 {
		r.Ceiling = 40
	}
	if r.Window == 0 {
		r.Window = 60 * time.Second
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.BaseDelay == 0 {
		r.BaseDelay = 30 * time.Second
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = 120 * time.Second
	}

	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1500
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 200
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 15 * time.Minute
	}
	if cfg.Cache.TagGrace == 0 {
		cfg.Cache.TagGrace = 60 * time.Second
	}

	s := &cfg.Search
	if s.DefaultLimit == 0 {
		s.DefaultLimit = 10
	}
	if s.MaxLimit == 0 {
		s.MaxLimit = 100
	}
	if s.OverFetch == 0 {
		s.OverFetch = 3
	}
	if s.MinOverlap == 0 {
		s.MinOverlap = 10
	}

	if len(cfg.Ingest.Extensions) == 0 {
		cfg.Ingest.Extensions = []string{".txt", ".md"}
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 2
	}

	if cfg.MCP.SearchPerMinute == 0 {
		cfg.MCP.SearchPerMinute = 100
	}
	if cfg.MCP.UploadPerHour == 0 {
		cfg.MCP.UploadPerHour = 25
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		cfg.Cache.RedisURL = v
		cfg.Cache.Backend = "redis"
	}
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		cfg.Embedding.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}

	cfg.ApplyProviderKey()
}

// ApplyProviderKey fills a missing API key from the environment variable of
// the selected provider
func (c *Config) ApplyProviderKey() {
	if c.Embedding.APIKey != "" {
		return
	}
	switch c.Embedding.Provider {
	case "gemini":
		c.Embedding.APIKey = os.Getenv(EnvGeminiAPIKey)
	case "openai":
		c.Embedding.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
}

// Validate rejects configurations the services cannot start with
func (c *Config) Validate() error {
	var errs []error

	if c.Chunking.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunking.chunk_size must be positive"))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		errs = append(errs, fmt.Errorf("chunking.overlap %d must be in [0, %d)", c.Chunking.Overlap, c.Chunking.ChunkSize))
	}

	switch c.Embedding.Provider {
	case "gemini", "openai":
		if c.Embedding.APIKey == "" {
			errs = append(errs, fmt.Errorf("embedding provider %s requires an API key", c.Embedding.Provider))
		}
	case "local":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, fmt.Errorf("cache backend redis requires redis_url or %s", EnvRedisURL))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	if c.Batch.MaxBatchSize < 1 || c.Batch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("batch.max_batch_size and batch.concurrency must be at least 1"))
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		errs = append(errs, fmt.Errorf("search.default_limit %d exceeds max_limit %d", c.Search.DefaultLimit, c.Search.MaxLimit))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown logging format %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
