package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/sortir-go/internal/embedder"
	"github.com/54b3r/sortir-go/internal/events"
	"github.com/54b3r/sortir-go/internal/index"
	"github.com/54b3r/sortir-go/internal/ingestion"
	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/segment"
)

// NewBuildCmd constructs the `sortir build` command, which turns an event
// CSV export into a searchable index.
func NewBuildCmd() *cobra.Command {
	var csvPath string
	var out string
	var backend string
	var maxChars int
	var listUnindexed bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the event index from an open-data CSV export",
		Long: `Build the event index from a CSV export of the Paris "Que faire à Paris"
dataset.

Each record becomes one or more chunk documents (title, description and long
description, split at sentence boundaries). Chunks are embedded in batches
and the index is published atomically: a running 'sortir serve' keeps
answering from the previous index until the new one is complete.

Index backends (--backend or SORTIR_INDEX_BACKEND):
  flat     SQLite file under --out (default: ~/.sortir/index)
  qdrant   Qdrant alias QDRANT_COLLECTION, swapped to a fresh collection
           once it is loaded; see also QDRANT_HOST, QDRANT_PORT

Embedding configuration:
  EMBEDDING_PROVIDER     mistral, ollama, openai, azure (default: MODEL_PROVIDER)
  EMBEDDING_BATCH_SIZE   texts per request (default: 200)
  EMBEDDING_BATCH_DELAY  pause between batches (default: 500ms)

Examples:
  sortir build --csv que-faire-a-paris.csv
  sortir build --csv events.csv --backend qdrant --unindexed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if csvPath == "" {
				return fmt.Errorf("build: --csv is required")
			}
			override := ""
			if cmd.Flags().Changed("backend") {
				override = backend
			}
			kind, err := indexBackend(override)
			if err != nil {
				return err
			}

			if err := embedder.Validate(log); err != nil {
				return err
			}

			records, err := events.LoadCSV(csvPath)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			log.Info("build: records loaded", slog.String("path", csvPath), slog.Int("records", len(records)))

			emb, err := embedder.NewFromEnv(nil)
			if err != nil {
				return fmt.Errorf("build: failed to initialise embedder: %w", err)
			}

			var publisher ingestion.Publisher
			switch kind {
			case backendQdrant:
				qs, err := index.NewQdrantStore(index.QdrantConfigFromEnv())
				if err != nil {
					return fmt.Errorf("build: %w", err)
				}
				defer func() { _ = qs.Close() }()
				publisher = qs
				log.Info("build: publishing to qdrant", slog.String("collection", qs.Collection()))
			default:
				if out == "" {
					if out, err = indexDir(); err != nil {
						return fmt.Errorf("build: resolve index directory: %w", err)
					}
				}
				publisher = ingestion.Dir(out)
				log.Info("build: publishing to directory", slog.String("path", out))
			}

			pipeline, err := ingestion.NewPipeline(emb, publisher, &ingestion.Config{
				MaxChars: maxChars,
				Model:    embedder.ModelName(embedder.ResolveBackend()),
			})
			if err != nil {
				return fmt.Errorf("build: failed to create pipeline: %w", err)
			}

			_, rep, err := pipeline.Run(ctx, records, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "records:        %d (%d without text)\n", rep.Records, rep.Skipped)
			fmt.Fprintf(w, "chunks:         %d built, %d indexed, %d missing\n",
				rep.Chunks, rep.Build.Indexed, rep.Build.Missing)
			fmt.Fprintf(w, "failed batches: %d\n", rep.Build.FailedBatches)
			fmt.Fprintf(w, "coverage:       %d/%d identifiers (%.2f%%)\n",
				rep.Coverage.IndexedIDs, rep.Coverage.SourceIDs, rep.Coverage.Rate*100)
			fmt.Fprintf(w, "duration:       %s\n", rep.Duration.Round(10*time.Millisecond))
			if listUnindexed {
				for _, id := range rep.Coverage.Unindexed {
					fmt.Fprintln(w, id)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "Path to the event CSV export (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Flat index directory (default: SORTIR_INDEX_PATH or ~/.sortir/index)")
	cmd.Flags().StringVar(&backend, "backend", backendFlat, "Index backend: flat or qdrant")
	cmd.Flags().IntVar(&maxChars, "max-chars", segment.DefaultMaxChars, "Maximum characters per chunk")
	cmd.Flags().BoolVar(&listUnindexed, "unindexed", false, "List the record identifiers without any indexed chunk")

	return cmd
}
