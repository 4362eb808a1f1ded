package embedder

import (
	"fmt"

	"github.com/54b3r/sortir-go/internal/config"
	"github.com/54b3r/sortir-go/internal/rag"
)

// Supported embedding backends.
const (
	BackendMistral = "mistral"
	BackendOpenAI  = "openai"
	BackendAzure   = "azure"
	BackendOllama  = "ollama"
)

// Default embedding models and endpoints per backend.
const (
	defaultMistralModel    = "mistral-embed"
	defaultMistralEndpoint = "https://api.mistral.ai/v1"
	defaultOpenAIModel     = "text-embedding-3-small"
	defaultOllamaModel     = "nomic-embed-text"
	defaultOllamaHost      = "http://localhost:11434"
	defaultAzureAPIVersion = "2025-04-01-preview"

	defaultMistralDimensions = 1024
	defaultOpenAIDimensions  = 1536
	defaultOllamaDimensions  = 768
)

// ResolveBackend returns the effective embedding backend. EMBEDDING_PROVIDER
// wins; otherwise MODEL_PROVIDER is inherited when it can embed, and
// Mistral is the fallback.
func ResolveBackend() string {
	if b := config.String("EMBEDDING_PROVIDER", ""); b != "" {
		return b
	}
	switch b := config.String("MODEL_PROVIDER", ""); b {
	case BackendOpenAI, BackendAzure, BackendOllama:
		return b
	default:
		return BackendMistral
	}
}

// DefaultDimensions returns the default vector size for backend.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := config.Int("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case BackendOllama:
		return defaultOllamaDimensions
	case BackendOpenAI, BackendAzure:
		return defaultOpenAIDimensions
	default:
		return defaultMistralDimensions
	}
}

// ModelName returns the embedding model the backend will use.
func ModelName(backend string) string {
	return config.String("EMBEDDING_MODEL", defaultModel(backend))
}

func defaultModel(backend string) string {
	switch backend {
	case BackendOpenAI, BackendAzure:
		return defaultOpenAIModel
	case BackendOllama:
		return defaultOllamaModel
	default:
		return defaultMistralModel
	}
}

// KnownDimensions returns the vector size backend is known to produce:
// EMBEDDING_DIMENSIONS when set, the default size when the default model is
// in use, and 0 when a custom model makes it unknown.
func KnownDimensions(backend string) int {
	if v := config.Int("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if ModelName(backend) != defaultModel(backend) {
		return 0
	}
	return DefaultDimensions(backend)
}

// NewBackendFromEnv constructs the embedding backend selected by
// [ResolveBackend]. Credentials are inherited from the chat provider's env
// vars unless EMBEDDING_API_KEY / EMBEDDING_ENDPOINT override them. A
// missing credential yields a *config.Error.
func NewBackendFromEnv() (rag.Embedder, error) {
	backend := ResolveBackend()
	model := ModelName(backend)

	switch backend {
	case BackendMistral:
		apiKey := config.FirstString("", "EMBEDDING_API_KEY", "MISTRAL_API_KEY")
		if apiKey == "" {
			return nil, config.Missing("MISTRAL_API_KEY", "or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL: config.FirstString(defaultMistralEndpoint, "EMBEDDING_ENDPOINT", "MISTRAL_ENDPOINT"),
			APIKey:  apiKey,
			Model:   model,
		}), nil

	case BackendOpenAI:
		apiKey := config.FirstString("", "EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, config.Missing("OPENAI_API_KEY", "or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    config.String("EMBEDDING_ENDPOINT", ""),
			APIKey:     apiKey,
			Model:      model,
			Dimensions: config.Int("EMBEDDING_DIMENSIONS", 0),
		}), nil

	case BackendAzure:
		apiKey := config.FirstString("", "EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, config.Missing("AZURE_OPENAI_API_KEY", "or EMBEDDING_API_KEY")
		}
		endpoint := config.FirstString("", "EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, config.Missing("AZURE_OPENAI_ENDPOINT", "or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint,
			APIKey:     apiKey,
			Model:      model,
			Dimensions: config.Int("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: config.String("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion),
		}), nil

	case BackendOllama:
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  config.FirstString(defaultOllamaHost, "EMBEDDING_ENDPOINT", "OLLAMA_HOST"),
			Model: model,
		}), nil

	default:
		return nil, &config.Error{
			Key:    "EMBEDDING_PROVIDER",
			Reason: fmt.Sprintf("unknown backend %q (valid: mistral, openai, azure, ollama)", backend),
		}
	}
}

// ClientConfigFromEnv reads the batching policy from the environment.
func ClientConfigFromEnv(metrics *Metrics) ClientConfig {
	return ClientConfig{
		BatchSize:  config.Int("EMBEDDING_BATCH_SIZE", DefaultBatchSize),
		BatchDelay: config.Duration("EMBEDDING_BATCH_DELAY", DefaultBatchDelay),
		MaxRetries: config.Int("EMBEDDING_MAX_RETRIES", DefaultMaxRetries),
		Timeout:    config.Duration("EMBEDDING_TIMEOUT", DefaultTimeout),
		Metrics:    metrics,
	}
}

// NewFromEnv builds the backend and wraps it in a [Client].
func NewFromEnv(metrics *Metrics) (*Client, error) {
	backend, err := NewBackendFromEnv()
	if err != nil {
		return nil, err
	}
	return NewClient(backend, ClientConfigFromEnv(metrics))
}
