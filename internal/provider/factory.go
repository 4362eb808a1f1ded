package provider

import (
	"context"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/sortir-go/internal/config"
)

// Defaults applied by [ConfigFromEnv].
const (
	defaultMistralEndpoint = "https://api.mistral.ai/v1"
	defaultMistralModel    = "mistral-medium"
	defaultOllamaHost      = "http://localhost:11434"
	defaultAzureAPIVersion = "2024-02-01"
	defaultMaxTokens       = 1024
	defaultTemperature     = 0.2
)

// ConfigFromEnv resolves provider configuration from environment variables.
// MODEL_PROVIDER selects the backend; each provider uses its own native
// credential env vars.
//
// Environment variables:
//
//	MODEL_PROVIDER = mistral | openai | azure | ollama | gemini | ark (default: mistral)
//
//	Mistral: MISTRAL_API_KEY, MISTRAL_MODEL (default: mistral-medium),
//	         MISTRAL_ENDPOINT (default: https://api.mistral.ai/v1)
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini)
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-flash)
//	Ark:     ARK_API_KEY, ARK_MODEL, ARK_ENDPOINT
//
//	Shared:  MODEL_MAX_TOKENS (default: 1024), MODEL_TEMPERATURE (default: 0.2)
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(config.String("MODEL_PROVIDER", string(BackendMistral))),
		Mistral: ProviderMistral{
			APIKey:   config.String("MISTRAL_API_KEY", ""),
			Model:    config.String("MISTRAL_MODEL", defaultMistralModel),
			Endpoint: config.String("MISTRAL_ENDPOINT", defaultMistralEndpoint),
		},
		Ollama: ProviderOllama{
			Host:  config.String("OLLAMA_HOST", defaultOllamaHost),
			Model: config.String("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: config.String("OPENAI_API_KEY", ""),
			Model:  config.String("OPENAI_MODEL", "gpt-4o-mini"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     config.String("AZURE_OPENAI_API_KEY", ""),
			Endpoint:   config.String("AZURE_OPENAI_ENDPOINT", ""),
			Deployment: config.String("AZURE_OPENAI_DEPLOYMENT", ""),
			APIVersion: config.String("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion),
		},
		Gemini: ProviderGemini{
			APIKey: config.String("GOOGLE_API_KEY", ""),
			Model:  config.String("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Ark: ProviderArk{
			APIKey:   config.String("ARK_API_KEY", ""),
			Model:    config.String("ARK_MODEL", ""),
			Endpoint: config.String("ARK_ENDPOINT", ""),
		},
		Tuning: SharedTuning{
			MaxTokens:   config.Int("MODEL_MAX_TOKENS", defaultMaxTokens),
			Temperature: config.Float32("MODEL_TEMPERATURE", defaultTemperature),
		},
	}
}

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend constructor. It validates the config first so callers
// get a clear error at startup rather than on the first question.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendMistral:
		return newMistral(ctx, cfg)
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	default:
		return newArk(ctx, cfg)
	}
}
