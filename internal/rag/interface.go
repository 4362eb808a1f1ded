// Package rag defines the types shared by the retrieval pipeline: chunk
// documents with their event metadata, search results, and the interfaces
// for embedding and nearest-neighbour search. Concrete implementations live
// in the embedder and index packages so the responder never depends on a
// specific backend.
package rag

import (
	"context"
)

// Metadata keys used in persisted and exported key/value form.
const (
	KeyID              = "id"
	KeyTitle           = "title"
	KeyLocationName    = "location_name"
	KeyLocationAddress = "location_address"
	KeyFirstDateBegin  = "firstdate_begin"
	KeyLastDateEnd     = "lastdate_end"
)

// Metadata is the event snapshot carried by every chunk of one record.
// Empty fields are rendered with a placeholder by the responder.
type Metadata struct {
	// ID is the originating event identifier.
	ID string
	// Title is the event title.
	Title string
	// LocationName is the venue name.
	LocationName string
	// LocationAddress is the venue address.
	LocationAddress string
	// FirstDateBegin is the raw start timestamp.
	FirstDateBegin string
	// LastDateEnd is the raw end timestamp.
	LastDateEnd string
}

// Map returns the non-empty fields keyed by their persisted names.
func (m Metadata) Map() map[string]string {
	out := make(map[string]string, 6)
	for k, v := range map[string]string{
		KeyID:              m.ID,
		KeyTitle:           m.Title,
		KeyLocationName:    m.LocationName,
		KeyLocationAddress: m.LocationAddress,
		KeyFirstDateBegin:  m.FirstDateBegin,
		KeyLastDateEnd:     m.LastDateEnd,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// MetadataFromMap is the inverse of [Metadata.Map]. Unknown keys are ignored.
func MetadataFromMap(m map[string]string) Metadata {
	return Metadata{
		ID:              m[KeyID],
		Title:           m[KeyTitle],
		LocationName:    m[KeyLocationName],
		LocationAddress: m[KeyLocationAddress],
		FirstDateBegin:  m[KeyFirstDateBegin],
		LastDateEnd:     m[KeyLastDateEnd],
	}
}

// Chunk is a unit of indexed text. Chunks are never mutated after the
// index is built.
type Chunk struct {
	// Text is the sentence-aligned chunk text.
	Text string
	// Metadata is the snapshot of the originating event.
	Metadata Metadata
}

// SearchResult pairs a chunk with its distance to the query vector.
type SearchResult struct {
	// Chunk is the matched document.
	Chunk Chunk
	// Distance is the Euclidean distance to the query; lower is better.
	Distance float32
	// Position is the insertion order of the chunk in the index.
	Position int
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	// EmbedOne returns the embedding of text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher answers nearest-neighbour queries.
// Implementations must be safe to call from multiple goroutines.
type Searcher interface {
	// Search returns at most k results ordered by increasing distance,
	// ties broken by insertion order.
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)
}
