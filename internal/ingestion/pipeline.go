// Package ingestion implements the index build pipeline. It turns cleaned
// event records into chunk documents, embeds them, and publishes the
// resulting index either to a local directory or to Qdrant. This pipeline
// is invoked by the `sortir build` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/sortir-go/internal/events"
	"github.com/54b3r/sortir-go/internal/index"
	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/rag"
	"github.com/54b3r/sortir-go/internal/segment"
)

// Publisher makes a freshly built index available to readers.
type Publisher interface {
	Publish(ctx context.Context, f *index.Flat) error
}

// Dir publishes a built index by persisting it to a directory.
type Dir string

// Publish persists f to the directory.
func (d Dir) Publish(ctx context.Context, f *index.Flat) error {
	return f.Persist(ctx, string(d))
}

// Config holds the configuration for the build pipeline.
type Config struct {
	// MaxChars is the maximum number of code points per chunk.
	// Defaults to segment.DefaultMaxChars if zero.
	MaxChars int

	// Model is the embedding model name recorded in the index.
	Model string
}

// Report summarises a pipeline run.
type Report struct {
	// Records is the number of input records.
	Records int
	// Skipped is the number of records that produced no chunk.
	Skipped int
	// Chunks is the number of chunk documents built.
	Chunks int
	// Build is the embedding and indexing outcome.
	Build index.BuildReport
	// Coverage compares the records with the indexed chunks.
	Coverage CoverageReport
	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// Pipeline orchestrates the records → chunks → embed → publish flow.
type Pipeline struct {
	// embedder converts chunk texts into vectors with partial-failure reporting.
	embedder index.BatchEmbedder

	// publisher receives the built index.
	publisher Publisher

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder index.BatchEmbedder, publisher Publisher, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("ingestion: publisher must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MaxChars == 0 {
		cfg.MaxChars = segment.DefaultMaxChars
	}
	return &Pipeline{embedder: embedder, publisher: publisher, cfg: cfg}, nil
}

// Documents builds the chunk documents for every record, in record order.
// It returns the number of records that produced no chunk.
func (p *Pipeline) Documents(records []events.Record) ([]rag.Chunk, int) {
	var docs []rag.Chunk
	skipped := 0
	for _, rec := range records {
		chunks := BuildDocuments(rec, p.cfg.MaxChars)
		if len(chunks) == 0 {
			skipped++
			continue
		}
		docs = append(docs, chunks...)
	}
	return docs, skipped
}

// Run builds and publishes an index from records. Progress is reported via
// the optional progress callback. A build where some batches failed still
// publishes the chunks that were embedded; the report carries the gap.
func (p *Pipeline) Run(ctx context.Context, records []events.Record, progress func(msg string)) (*index.Flat, *Report, error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)
	start := time.Now()

	rep := &Report{Records: len(records)}
	docs, skipped := p.Documents(records)
	rep.Skipped = skipped
	rep.Chunks = len(docs)
	progress(fmt.Sprintf("%d records, %d chunks ready for embedding (%d records without text)",
		len(records), len(docs), skipped))
	if len(docs) == 0 {
		return nil, rep, fmt.Errorf("ingestion: no record produced any text to index")
	}

	flat, build, err := index.Build(ctx, docs, p.embedder)
	rep.Build = build
	if err != nil {
		return nil, rep, fmt.Errorf("ingestion: %w", err)
	}
	flat.SetModel(p.cfg.Model)
	if build.Missing > 0 {
		log.Warn("ingestion: some chunks were not embedded",
			slog.Int("missing", build.Missing),
			slog.Int("failed_batches", build.FailedBatches),
		)
		progress(fmt.Sprintf("warning: %d chunks could not be embedded", build.Missing))
	}
	progress(fmt.Sprintf("embedded %d chunks (dimension %d)", flat.Len(), flat.Dimension()))

	rep.Coverage = Coverage(records, flat.Chunks())

	if err := p.publisher.Publish(ctx, flat); err != nil {
		return nil, rep, fmt.Errorf("ingestion: publish failed: %w", err)
	}
	rep.Duration = time.Since(start)

	log.Info("ingestion: index published",
		slog.Int("records", rep.Records),
		slog.Int("chunks", flat.Len()),
		slog.Float64("coverage", rep.Coverage.Rate),
		slog.Duration("duration", rep.Duration),
	)
	progress(fmt.Sprintf("published %d chunks, coverage %.2f%%", flat.Len(), rep.Coverage.Rate*100))
	return flat, rep, nil
}
