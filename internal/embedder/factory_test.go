package embedder

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/sortir-go/internal/config"
)

// clearEmbeddingEnv blanks every variable the factory reads.
func clearEmbeddingEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY", "EMBEDDING_ENDPOINT",
		"EMBEDDING_DIMENSIONS", "EMBEDDING_BATCH_SIZE", "EMBEDDING_BATCH_DELAY",
		"EMBEDDING_MAX_RETRIES", "EMBEDDING_TIMEOUT", "MODEL_PROVIDER",
		"MISTRAL_API_KEY", "MISTRAL_ENDPOINT", "OPENAI_API_KEY",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "OLLAMA_HOST",
	} {
		t.Setenv(k, "")
	}
}

func TestResolveBackend(t *testing.T) {
	tests := []struct {
		name      string
		embedding string
		model     string
		want      string
	}{
		{name: "default is mistral", want: BackendMistral},
		{name: "explicit wins", embedding: "ollama", model: "openai", want: BackendOllama},
		{name: "inherits openai", model: "openai", want: BackendOpenAI},
		{name: "inherits azure", model: "azure", want: BackendAzure},
		{name: "chat-only provider falls back", model: "gemini", want: BackendMistral},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEmbeddingEnv(t)
			t.Setenv("EMBEDDING_PROVIDER", tc.embedding)
			t.Setenv("MODEL_PROVIDER", tc.model)
			assert.Equal(t, tc.want, ResolveBackend())
		})
	}
}

func TestDefaultDimensions(t *testing.T) {
	clearEmbeddingEnv(t)
	assert.Equal(t, 1024, DefaultDimensions(BackendMistral))
	assert.Equal(t, 1536, DefaultDimensions(BackendOpenAI))
	assert.Equal(t, 768, DefaultDimensions(BackendOllama))

	t.Setenv("EMBEDDING_DIMENSIONS", "384")
	assert.Equal(t, 384, DefaultDimensions(BackendMistral))
}

func TestKnownDimensions(t *testing.T) {
	clearEmbeddingEnv(t)
	assert.Equal(t, "nomic-embed-text", ModelName(BackendOllama))
	assert.Equal(t, 768, KnownDimensions(BackendOllama))
	assert.Equal(t, 1024, KnownDimensions(BackendMistral))

	t.Setenv("EMBEDDING_MODEL", "mxbai-embed-large")
	assert.Equal(t, "mxbai-embed-large", ModelName(BackendOllama))
	assert.Zero(t, KnownDimensions(BackendOllama))

	t.Setenv("EMBEDDING_DIMENSIONS", "1024")
	assert.Equal(t, 1024, KnownDimensions(BackendOllama))
}

func TestNewBackendFromEnv_MissingCredentials(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantKey string
	}{
		{name: "mistral", wantKey: "MISTRAL_API_KEY"},
		{name: "openai", env: map[string]string{"EMBEDDING_PROVIDER": "openai"}, wantKey: "OPENAI_API_KEY"},
		{name: "azure key", env: map[string]string{"EMBEDDING_PROVIDER": "azure"}, wantKey: "AZURE_OPENAI_API_KEY"},
		{
			name:    "azure endpoint",
			env:     map[string]string{"EMBEDDING_PROVIDER": "azure", "AZURE_OPENAI_API_KEY": "k"},
			wantKey: "AZURE_OPENAI_ENDPOINT",
		},
		{name: "unknown", env: map[string]string{"EMBEDDING_PROVIDER": "cohere"}, wantKey: "EMBEDDING_PROVIDER"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEmbeddingEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := NewBackendFromEnv()
			var cfgErr *config.Error
			require.True(t, errors.As(err, &cfgErr), "want *config.Error, got %v", err)
			assert.Equal(t, tc.wantKey, cfgErr.Key)
		})
	}
}

func TestNewBackendFromEnv_Backends(t *testing.T) {
	clearEmbeddingEnv(t)
	t.Setenv("MISTRAL_API_KEY", "m")
	b, err := NewBackendFromEnv()
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEmbedder{}, b)
	assert.Equal(t, "mistral-embed", b.(*OpenAIEmbedder).model)

	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	b, err = NewBackendFromEnv()
	require.NoError(t, err)
	assert.IsType(t, &OllamaEmbedder{}, b)
	assert.Equal(t, "nomic-embed-text", b.(*OllamaEmbedder).model)
}

func TestClientConfigFromEnv(t *testing.T) {
	clearEmbeddingEnv(t)
	cfg := ClientConfigFromEnv(nil)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultBatchDelay, cfg.BatchDelay)

	t.Setenv("EMBEDDING_BATCH_SIZE", "50")
	t.Setenv("EMBEDDING_BATCH_DELAY", "1.5")
	t.Setenv("EMBEDDING_MAX_RETRIES", "3")
	cfg = ClientConfigFromEnv(nil)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 1500, int(cfg.BatchDelay.Milliseconds()))
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  bool
	}{
		{"mistral-embed", false},
		{"text-embedding-3-small", false},
		{"nomic-embed-text", false},
		{"mistral-medium-latest", true},
		{"gpt-4o", true},
		{"llama3.2", true},
		{"bge-m3", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, looksLikeChatModel(tc.model), tc.model)
	}
}

func TestValidate(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	clearEmbeddingEnv(t)
	assert.Error(t, Validate(log))

	t.Setenv("MISTRAL_API_KEY", "m")
	t.Setenv("EMBEDDING_MODEL", "mistral-large-latest")
	assert.NoError(t, Validate(log))
}
