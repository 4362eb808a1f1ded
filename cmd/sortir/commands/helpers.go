package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/sortir-go/internal/config"
	"github.com/54b3r/sortir-go/internal/embedder"
	"github.com/54b3r/sortir-go/internal/index"
	"github.com/54b3r/sortir-go/internal/provider"
	"github.com/54b3r/sortir-go/internal/rag"
	"github.com/54b3r/sortir-go/internal/responder"
)

// Index backends selectable via SORTIR_INDEX_BACKEND.
const (
	backendFlat   = "flat"
	backendQdrant = "qdrant"
)

// indexBackend returns override, or SORTIR_INDEX_BACKEND when override is
// empty.
func indexBackend(override string) (string, error) {
	b := override
	if b == "" {
		b = config.String("SORTIR_INDEX_BACKEND", backendFlat)
	}
	switch b {
	case backendFlat, backendQdrant:
		return b, nil
	default:
		return "", &config.Error{
			Key:    "SORTIR_INDEX_BACKEND",
			Reason: fmt.Sprintf("unknown backend %q, valid values: flat, qdrant", b),
		}
	}
}

// indexDir returns SORTIR_INDEX_PATH, or ~/.sortir/index when unset.
func indexDir() (string, error) {
	if dir := config.String("SORTIR_INDEX_PATH", ""); dir != "" {
		return dir, nil
	}
	return index.DefaultDir()
}

// searchBackend bundles the searcher used by the responder with the pieces
// serve needs for readiness and hot reload. Exactly one of holder and qdrant
// is set.
type searchBackend struct {
	searcher rag.Searcher
	holder   *index.Holder
	dir      string
	qdrant   *index.QdrantStore
}

// close releases the Qdrant connection, if any.
func (b *searchBackend) close() {
	if b.qdrant != nil {
		_ = b.qdrant.Close()
	}
}

// indexCompat describes the embedder queries will go through, so a loaded
// index built by another model or vector size is refused.
func indexCompat() index.Compat {
	b := embedder.ResolveBackend()
	return index.Compat{
		Model:     embedder.ModelName(b),
		Dimension: embedder.KnownDimensions(b),
	}
}

// openSearchBackend loads the persisted flat index or connects to Qdrant.
// A missing, corrupt or incompatible index is an *index.LoadError and
// aborts startup.
func openSearchBackend(ctx context.Context, log *slog.Logger, compat index.Compat) (*searchBackend, error) {
	backend, err := indexBackend("")
	if err != nil {
		return nil, err
	}

	if backend == backendQdrant {
		qcfg := index.QdrantConfigFromEnv()
		qs, err := index.NewQdrantStore(qcfg)
		if err != nil {
			return nil, err
		}
		points, err := qs.Verify(ctx, compat)
		if err != nil {
			_ = qs.Close()
			return nil, err
		}
		log.Info("index: using qdrant",
			slog.String("host", qcfg.Host),
			slog.Int("port", qcfg.Port),
			slog.String("collection", qs.Collection()),
			slog.Uint64("points", points),
		)
		return &searchBackend{searcher: qs, qdrant: qs}, nil
	}

	dir, err := indexDir()
	if err != nil {
		return nil, fmt.Errorf("index: resolve directory: %w", err)
	}
	flat, err := index.Load(ctx, dir)
	if err != nil {
		return nil, err
	}
	if err := flat.CheckCompat(dir, compat); err != nil {
		return nil, err
	}
	info := flat.Info()
	log.Info("index: loaded",
		slog.String("path", dir),
		slog.Int("chunks", flat.Len()),
		slog.Int("dimension", flat.Dimension()),
		slog.String("model", info.Model),
	)
	h := index.NewHolder(flat)
	h.RequireCompat(compat)
	return &searchBackend{searcher: h, holder: h, dir: dir}, nil
}

// assistant is everything a conversational command needs.
type assistant struct {
	responder *responder.Responder
	model     *provider.Config
	backend   *searchBackend
}

// buildAssistant wires embedder, index, retriever and chat model into a
// responder. Every configuration value is checked before the index is
// touched, so a bad setting comes back as *config.Error rather than being
// masked by an index error.
func buildAssistant(ctx context.Context, log *slog.Logger, metrics *embedder.Metrics) (*assistant, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	modelCfg := provider.ConfigFromEnv()
	if err := modelCfg.Validate(); err != nil {
		return nil, err
	}
	tmpl, err := responder.LoadTemplate(config.String("SORTIR_PROMPT_TEMPLATE", ""))
	if err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv(metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	backend, err := openSearchBackend(ctx, log, indexCompat())
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(emb, backend.searcher, responder.DefaultTopK)
	if err != nil {
		backend.close()
		return nil, err
	}

	chatModel, err := provider.New(ctx, modelCfg)
	if err != nil {
		backend.close()
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(modelCfg.Backend)),
		slog.String("model", modelCfg.ModelName()),
	)

	r, err := responder.New(retriever, chatModel, &responder.Config{
		TopK:             config.Int("SORTIR_TOP_K", responder.DefaultTopK),
		Template:         tmpl,
		Temperature:      config.Float32("MODEL_TEMPERATURE", responder.DefaultTemperature),
		TopP:             config.Float32("MODEL_TOP_P", responder.DefaultTopP),
		NoSampling:       !modelCfg.SupportsSampling(),
		Timeout:          config.Duration("MODEL_TIMEOUT", responder.DefaultTimeout),
		HistoryDepth:     config.Int("SORTIR_HISTORY_DEPTH", 0),
		MaxContextTokens: config.Int("SORTIR_MAX_CONTEXT_TOKENS", 0),
	})
	if err != nil {
		backend.close()
		return nil, err
	}
	return &assistant{responder: r, model: modelCfg, backend: backend}, nil
}
