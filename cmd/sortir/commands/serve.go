package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/sortir-go/internal/config"
	"github.com/54b3r/sortir-go/internal/embedder"
	"github.com/54b3r/sortir-go/internal/index"
	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/provider"
	"github.com/54b3r/sortir-go/internal/server"
	"github.com/54b3r/sortir-go/internal/store"
	"github.com/54b3r/sortir-go/internal/tracing"
)

// NewServeCmd constructs the `sortir serve` command, which starts the HTTP
// chat API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sortir HTTP chat API",
		Long: `Start the sortir HTTP server.

Endpoints:
  POST   /api/chat            answer a message, {"message", "session_id"?}
  DELETE /api/sessions/{id}   forget a stored conversation
  POST   /api/index/reload    re-read the flat index from disk
  GET    /api/health          liveness
  GET    /api/ready           index, qdrant, history and model checks
  GET    /metrics             Prometheus metrics

The index must have been built with 'sortir build'. A missing or corrupt
index aborts startup. Set SORTIR_INDEX_WATCH=true to reload the flat index
automatically after every rebuild, and SORTIR_API_KEY to require a bearer
token on /api/* routes.

Examples:
  sortir serve
  sortir serve --port 9090
  MODEL_PROVIDER=azure sortir serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Flags win over the environment, which the config file has
			// already been applied to.
			if !cmd.Flags().Changed("host") {
				host = config.String("SORTIR_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = config.Int("SORTIR_PORT", port)
			}

			log.Info("serve starting", slog.String("provider", config.String("MODEL_PROVIDER", string(provider.BackendMistral))))

			// Langfuse tracing is opt-in and a no-op without keys.
			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			a, err := buildAssistant(ctx, log, embedder.NewMetrics(prometheus.DefaultRegisterer))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.backend.close()

			historyStore, closeHistory := openHistory(log)
			defer closeHistory()

			var reload func(context.Context) error
			if h := a.backend.holder; h != nil {
				dir := a.backend.dir
				reload = func(ctx context.Context) error { return h.Reload(ctx, dir) }

				if config.Bool("SORTIR_INDEX_WATCH", false) {
					go func() {
						if err := index.Watch(ctx, dir, h, index.DefaultWatchDebounce); err != nil {
							log.Error("index: watcher stopped", slog.Any("error", err))
						}
					}()
					log.Info("index: watching for rebuilds", slog.String("path", dir))
				}
			}

			var history store.ConversationStore
			if historyStore != nil {
				history = historyStore
			}

			srv, err := server.New(a.responder, &server.Config{
				Host:         host,
				Port:         port,
				Logger:       log,
				Pingers:      buildPingers(a, historyStore),
				APIKey:       config.String("SORTIR_API_KEY", ""),
				RateLimit:    float64(config.Float32("SORTIR_RATE_LIMIT", 0)),
				RateBurst:    config.Int("SORTIR_RATE_BURST", 0),
				TrustProxy:   config.Bool("SORTIR_TRUST_PROXY", false),
				History:      history,
				HistoryDepth: config.Int("SORTIR_HISTORY_DEPTH", 0),
				ReloadIndex:  reload,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: SORTIR_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: SORTIR_PORT)")

	return cmd
}

// openHistory opens the conversation store. SORTIR_HISTORY_DB overrides the
// default path (~/.sortir/history.db); "disabled" turns history off. A store
// that cannot be opened is logged and skipped.
func openHistory(log *slog.Logger) (*store.SQLiteStore, func()) {
	dbPath := config.String("SORTIR_HISTORY_DB", "")
	if dbPath == "disabled" {
		log.Info("history: disabled via SORTIR_HISTORY_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		var err error
		if dbPath, err = store.DefaultDBPath(); err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// buildPingers returns the readiness probes in check order: index, history,
// then the chat model provider when it exposes a health endpoint.
func buildPingers(a *assistant, hs *store.SQLiteStore) []server.Pinger {
	var pingers []server.Pinger
	if a.backend.holder != nil {
		pingers = append(pingers, server.PingFunc("index", a.backend.holder.Ping))
	}
	if a.backend.qdrant != nil {
		pingers = append(pingers, server.PingFunc("qdrant", a.backend.qdrant.Ping))
	}
	if hs != nil {
		pingers = append(pingers, server.PingFunc("history", hs.Ping))
	}

	modelCfg := a.model
	pingers = append(pingers, server.PingFunc("llm", func(ctx context.Context) error {
		if err := modelCfg.HealthCheck(ctx); err != nil && !errors.Is(err, provider.ErrNoHealthCheck) {
			return err
		}
		return nil
	}))
	return pingers
}
