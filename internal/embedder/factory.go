package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvProvider selects the provider explicitly
const EnvProvider = "DOCSEARCH_EMBEDDING_PROVIDER"

// Config holds embedder configuration
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. DOCSEARCH_EMBEDDING_PROVIDER (gemini, openai, local)
// 2. Check for API keys: GEMINI_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	return New(Config{Provider: DetectProvider()})
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	opts := ProviderOptions{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini:
		return NewGeminiProvider(opts)
	case ProviderOpenAI:
		return NewOpenAIProvider(opts)
	case ProviderLocal:
		return NewLocalProvider()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvGeminiAPIKey) != "" {
		return ProviderGemini
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
