package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNoHealthCheck is returned by [Config.HealthCheck] for backends without
// a token-free probe.
var ErrNoHealthCheck = errors.New("provider: backend has no health check")

// healthClient is shared by all probes.
var healthClient = &http.Client{Timeout: 10 * time.Second}

// HealthCheck probes the selected backend by listing its models, which costs
// no tokens. Gemini and Ark return [ErrNoHealthCheck].
func (c *Config) HealthCheck(ctx context.Context) error {
	var (
		url    string
		header = http.Header{}
	)
	switch c.Backend {
	case BackendMistral:
		url = strings.TrimRight(c.Mistral.Endpoint, "/") + "/models"
		header.Set("Authorization", "Bearer "+c.Mistral.APIKey)
	case BackendOpenAI:
		url = "https://api.openai.com/v1/models"
		header.Set("Authorization", "Bearer "+c.OpenAI.APIKey)
	case BackendAzure:
		url = fmt.Sprintf("%s/openai/models?api-version=%s",
			strings.TrimRight(c.AzureOpenAI.Endpoint, "/"), c.AzureOpenAI.APIVersion)
		header.Set("api-key", c.AzureOpenAI.APIKey)
	case BackendOllama:
		url = strings.TrimRight(c.Ollama.Host, "/") + "/api/tags"
	default:
		return ErrNoHealthCheck
	}
	return probe(ctx, url, header)
}

func probe(ctx context.Context, url string, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("provider: health check request: %w", err)
	}
	req.Header = header
	resp, err := healthClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider: health check: status %d", resp.StatusCode)
	}
	return nil
}
