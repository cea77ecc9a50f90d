package embedder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name           string
		provider       string
		geminiKey      string
		openaiKey      string
		expectedResult string
	}{
		{
			name:           "explicit gemini provider",
			provider:       "gemini",
			expectedResult: ProviderGemini,
		},
		{
			name:           "explicit provider is case insensitive",
			provider:       "OpenAI",
			expectedResult: ProviderOpenAI,
		},
		{
			name:           "explicit local provider wins over keys",
			provider:       "local",
			geminiKey:      "g-key",
			expectedResult: ProviderLocal,
		},
		{
			name:           "gemini key present",
			geminiKey:      "test-key",
			expectedResult: ProviderGemini,
		},
		{
			name:           "openai key present",
			openaiKey:      "test-key",
			expectedResult: ProviderOpenAI,
		},
		{
			name:           "both keys, gemini takes precedence",
			geminiKey:      "gemini-key",
			openaiKey:      "openai-key",
			expectedResult: ProviderGemini,
		},
		{
			name:           "no provider, no keys - fallback to local",
			expectedResult: ProviderLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvGeminiAPIKey, tt.geminiKey)
			t.Setenv(EnvOpenAIAPIKey, tt.openaiKey)

			assert.Equal(t, tt.expectedResult, DetectProvider())
		})
	}
}

func TestNew(t *testing.T) {
	t.Setenv(EnvGeminiAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	tests := []struct {
		name         string
		cfg          Config
		wantProvider string
		wantErr      error
	}{
		{
			name:         "gemini with key",
			cfg:          Config{Provider: ProviderGemini, APIKey: "k"},
			wantProvider: ProviderGemini,
		},
		{
			name:         "openai with key",
			cfg:          Config{Provider: ProviderOpenAI, APIKey: "k"},
			wantProvider: ProviderOpenAI,
		},
		{
			name:         "local needs no key",
			cfg:          Config{Provider: ProviderLocal},
			wantProvider: ProviderLocal,
		},
		{
			name:    "gemini without key",
			cfg:     Config{Provider: ProviderGemini},
			wantErr: ErrNoProviderEnabled,
		},
		{
			name:    "unknown provider",
			cfg:     Config{Provider: "jina"},
			wantErr: ErrUnknownProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := New(tt.cfg)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			defer emb.Close()
			assert.Equal(t, tt.wantProvider, emb.Provider())
			assert.Equal(t, 768, emb.Dimension())
		})
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvGeminiAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "sk-test")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	defer emb.Close()

	assert.Equal(t, ProviderOpenAI, emb.Provider())
	assert.Equal(t, DefaultOpenAIModel, emb.Model())
}
