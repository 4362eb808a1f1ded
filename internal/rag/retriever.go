package rag

import (
	"context"
	"errors"
	"fmt"
)

// Failure classes reported by [Retriever.Retrieve]. Callers match them with
// errors.Is to tell an embedding failure from a search failure.
var (
	ErrEmbedding = errors.New("rag: query embedding failed")
	ErrSearch    = errors.New("rag: vector search failed")
)

// Retriever combines a QueryEmbedder and a Searcher. It embeds the query at
// retrieval time and delegates similarity search to the index.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder QueryEmbedder

	// searcher performs the nearest-neighbour search.
	searcher Searcher

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever. defaultTopK sets the fallback result
// count when Retrieve is called with topK=0.
func NewRetriever(embedder QueryEmbedder, searcher Searcher, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if searcher == nil {
		return nil, fmt.Errorf("rag: searcher must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 4
	}
	return &Retriever{
		embedder:    embedder,
		searcher:    searcher,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the top-k closest chunks.
// Errors wrap [ErrEmbedding] or [ErrSearch].
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	results, err := r.searcher.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearch, err)
	}
	return results, nil
}
