// Package index stores chunk vectors and answers nearest-neighbour queries.
//
// [Flat] is the default backend: an exact in-memory index that persists to a
// single SQLite file and is served through a [Holder] so a rebuilt index can
// be swapped in while queries are running. [QdrantStore] is the alternate
// backend for deployments that already run Qdrant.
//
// Distance is Euclidean (L2). Results are ordered by increasing distance and
// ties keep insertion order.
package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/54b3r/sortir-go/internal/embedder"
	"github.com/54b3r/sortir-go/internal/rag"
)

// ErrDimensionMismatch is returned when a vector does not have the index's
// dimensionality.
var ErrDimensionMismatch = errors.New("index: dimension mismatch")

// Info describes how an index was built.
type Info struct {
	// Model is the embedding model that produced the vectors.
	Model string
	// BuiltAt is when the index was built.
	BuiltAt time.Time
}

// Flat is an exact nearest-neighbour index. Once published through a
// [Holder] it must not be mutated; concurrent Search calls are safe.
type Flat struct {
	dim     int
	vectors [][]float32
	chunks  []rag.Chunk
	info    Info
}

// New returns an empty index. A zero dim is fixed by the first Add.
func New(dim int) *Flat {
	return &Flat{dim: dim, info: Info{BuiltAt: time.Now().UTC()}}
}

// Add appends a chunk and its vector. The vector is copied.
func (f *Flat) Add(chunk rag.Chunk, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if f.dim == 0 {
		f.dim = len(vec)
	}
	if len(vec) != f.dim {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), f.dim)
	}
	f.vectors = append(f.vectors, slices.Clone(vec))
	f.chunks = append(f.chunks, chunk)
	return nil
}

// SetModel records the embedding model name in the index info.
func (f *Flat) SetModel(model string) { f.info.Model = model }

// Info returns the build information.
func (f *Flat) Info() Info { return f.info }

// Len returns the number of indexed chunks.
func (f *Flat) Len() int { return len(f.chunks) }

// Dimension returns the vector size, or 0 for an empty index.
func (f *Flat) Dimension() int { return f.dim }

// Chunks returns the indexed chunks in insertion order.
func (f *Flat) Chunks() []rag.Chunk { return slices.Clone(f.chunks) }

// Vectors returns the stored vectors, parallel to [Flat.Chunks]. The
// slices are shared and must not be modified.
func (f *Flat) Vectors() [][]float32 { return slices.Clone(f.vectors) }

// Search returns at most k results ordered by increasing distance. An empty
// index yields an empty slice.
func (f *Flat) Search(ctx context.Context, query []float32, k int) ([]rag.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.chunks) == 0 || k <= 0 {
		return []rag.SearchResult{}, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}

	results := make([]rag.SearchResult, len(f.vectors))
	for i, v := range f.vectors {
		results[i] = rag.SearchResult{
			Chunk:    f.chunks[i],
			Distance: l2(query, v),
			Position: i,
		}
	}
	slices.SortStableFunc(results, func(a, b rag.SearchResult) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// l2 returns the Euclidean distance between a and b, which must have the
// same length.
func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// BatchEmbedder embeds many texts with partial-failure reporting.
// *embedder.Client implements it.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) *embedder.Result
}

// BuildReport summarises an index build.
type BuildReport struct {
	// Documents is the number of chunks submitted.
	Documents int
	// Indexed is the number of chunks stored with a vector.
	Indexed int
	// Missing is the number of chunks dropped because their batch failed.
	Missing int
	// FailedBatches is the number of embedding batches that gave up.
	FailedBatches int
}

// Build embeds docs and returns a new index. Chunks whose batch failed are
// dropped so every stored chunk has exactly one vector. It fails when docs
// is non-empty and nothing could be embedded.
func Build(ctx context.Context, docs []rag.Chunk, emb BatchEmbedder) (*Flat, BuildReport, error) {
	report := BuildReport{Documents: len(docs)}
	f := New(0)
	if len(docs) == 0 {
		return f, report, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	res := emb.EmbedBatch(ctx, texts)
	report.Missing = res.Missing
	report.FailedBatches = res.FailedBatches

	if len(res.Vectors) == 0 {
		return nil, report, fmt.Errorf("index: build: no chunk could be embedded: %w", res.Err)
	}
	if err := ctx.Err(); err != nil {
		return nil, report, fmt.Errorf("index: build: %w", err)
	}

	for i, vec := range res.Vectors {
		if err := f.Add(docs[res.Indices[i]], vec); err != nil {
			return nil, report, fmt.Errorf("index: build: chunk %d: %w", res.Indices[i], err)
		}
	}
	report.Indexed = f.Len()
	return f, report, nil
}
