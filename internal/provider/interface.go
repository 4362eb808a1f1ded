// Package provider selects and constructs the chat model that writes
// replies. Supported backends: Mistral (default), OpenAI, Azure OpenAI,
// Ollama, Google Gemini and Volcengine Ark.
package provider

import (
	"fmt"
	"strings"

	"github.com/54b3r/sortir-go/internal/config"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendMistral selects the Mistral API through its OpenAI-compatible
	// endpoint.
	BackendMistral Backend = "mistral"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// ProviderMistral holds Mistral settings.
type ProviderMistral struct {
	APIKey   string
	Model    string
	Endpoint string
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	APIKey string
	Model  string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	APIKey   string
	Model    string
	Endpoint string
}

// SharedTuning holds generation settings applied to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per reply.
	MaxTokens int
	// Temperature controls response randomness (0.0-1.0).
	Temperature float32
}

// Config holds all provider-level configuration. Only the block matching
// Backend is consulted.
type Config struct {
	Backend Backend

	Mistral     ProviderMistral
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Gemini      ProviderGemini
	Ark         ProviderArk

	Tuning SharedTuning
}

// Validate checks that the selected backend has everything it needs. Missing
// values are reported as *config.Error naming the env var to set.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMistral:
		if c.Mistral.APIKey == "" {
			return config.Missing("MISTRAL_API_KEY", "required for mistral backend")
		}
		if c.Mistral.Model == "" {
			return config.Missing("MISTRAL_MODEL", "required for mistral backend")
		}
	case BackendOllama:
		if c.Ollama.Model == "" {
			return config.Missing("OLLAMA_MODEL", "required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return config.Missing("OPENAI_API_KEY", "required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return config.Missing("OPENAI_MODEL", "required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return config.Missing("AZURE_OPENAI_API_KEY", "required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return config.Missing("AZURE_OPENAI_ENDPOINT", "required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return config.Missing("AZURE_OPENAI_DEPLOYMENT", "required for azure backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return config.Missing("GOOGLE_API_KEY", "required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return config.Missing("GEMINI_MODEL", "required for gemini backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return config.Missing("ARK_API_KEY", "required for ark backend")
		}
		if c.Ark.Model == "" {
			return config.Missing("ARK_MODEL", "required for ark backend")
		}
	default:
		return &config.Error{
			Key:    "MODEL_PROVIDER",
			Reason: fmt.Sprintf("unknown backend %q, valid values: mistral, openai, azure, ollama, gemini, ark", c.Backend),
		}
	}
	return nil
}

// ModelName returns the model or deployment the selected backend will call.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendMistral:
		return c.Mistral.Model
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	default:
		return ""
	}
}

// SupportsSampling reports whether the selected model accepts temperature
// and top-p. Azure reasoning deployments reject both.
func (c *Config) SupportsSampling() bool {
	return !(c.Backend == BackendAzure && isAzureReasoningModel(c.AzureOpenAI.Deployment))
}

// isAzureReasoningModel reports whether an Azure deployment name refers to
// an o-series or codex reasoning model.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
