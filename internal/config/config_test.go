package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvDBPath, EnvRedisURL, EnvGeminiAPIKey, EnvOpenAIAPIKey, EnvEmbeddingProvider, EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "gemini", cfg.Embedding.Provider)
	assert.Equal(t, 1500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 5, cfg.Batch.MaxBatchSize)
	assert.Equal(t, 2*time.Second, cfg.Batch.MaxWaitTime)
	assert.Equal(t, 2, cfg.Batch.Concurrency)
	assert.Equal(t, 40, cfg.RateLimit.Ceiling)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.BaseDelay)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 3, cfg.Search.OverFetch)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileWithPartialSettings(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "docsearch.yaml")
	content := `
embedding:
  provider: local
chunking:
  chunk_size: 800
  overlap: 100
batch:
  max_wait_time: 500ms
cache:
  ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 800, cfg.Chunking.ChunkSize)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 500*time.Millisecond, cfg.Batch.MaxWaitTime)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)

	// Unset fields fall back to defaults
	assert.Equal(t, 5, cfg.Batch.MaxBatchSize)
	assert.Equal(t, 40, cfg.RateLimit.Ceiling)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDBPath, "/tmp/override.db")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	t.Setenv(EnvEmbeddingProvider, "OpenAI")
	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Embedding.Provider = "local"
	cfg.Search.MinOverlap = 25

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "local provider defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "overlap equals chunk size",
			mutate:  func(c *Config) { c.Chunking.Overlap = c.Chunking.ChunkSize },
			wantErr: true,
		},
		{
			name:    "gemini without key",
			mutate:  func(c *Config) { c.Embedding.Provider = "gemini"; c.Embedding.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Embedding.Provider = "jina" },
			wantErr: true,
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Cache.Backend = "redis" },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Embedding.Provider = "local"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
