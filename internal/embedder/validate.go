package embedder

import (
	"log/slog"
	"strings"

	"github.com/54b3r/sortir-go/internal/config"
)

// knownChatModelPrefixes contains name fragments that identify chat models
// which are not suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama-3",
	"mistral-small",
	"mistral-medium",
	"mistral-large",
	"mixtral",
	"ministral",
	"gemma",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
}

// looksLikeChatModel reports whether model resembles a chat model rather
// than a dedicated embedding model. Names containing "embed" never match.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is the startup pre-flight for the embedding configuration. It
// returns a *config.Error when a required credential is missing and logs a
// warning when EMBEDDING_MODEL looks like a chat model or the client policy
// is unusual. Call it before building the index or the responder.
func Validate(log *slog.Logger) error {
	if _, err := NewBackendFromEnv(); err != nil {
		return err
	}

	backend := ResolveBackend()
	if config.String("EMBEDDING_PROVIDER", "") == "" && backend != BackendMistral {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER",
			slog.String("backend", backend),
		)
	}

	if model := ModelName(backend); looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. mistral-embed, text-embedding-3-small"),
		)
	}

	cfg := ClientConfigFromEnv(nil)
	if cfg.BatchSize > 512 {
		log.Warn("embedder: EMBEDDING_BATCH_SIZE is large, providers may reject the request",
			slog.Int("batch_size", cfg.BatchSize),
		)
	}
	return nil
}
