package ingestion

import (
	"slices"

	"github.com/54b3r/sortir-go/internal/events"
	"github.com/54b3r/sortir-go/internal/rag"
)

// CoverageReport compares the source records with what reached the index.
type CoverageReport struct {
	// SourceIDs is the number of distinct non-empty record identifiers.
	SourceIDs int
	// IndexedIDs is the number of those identifiers with at least one chunk.
	IndexedIDs int
	// Rate is IndexedIDs / SourceIDs, or 0 when there are no source IDs.
	Rate float64
	// Unindexed lists the source identifiers without any chunk, sorted.
	Unindexed []string
}

// Coverage reports which records produced at least one chunk in docs.
func Coverage(records []events.Record, docs []rag.Chunk) CoverageReport {
	source := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ID != "" {
			source[r.ID] = true
		}
	}
	indexed := make(map[string]bool, len(source))
	for _, d := range docs {
		if id := d.Metadata.ID; source[id] {
			indexed[id] = true
		}
	}

	rep := CoverageReport{SourceIDs: len(source), IndexedIDs: len(indexed)}
	if rep.SourceIDs > 0 {
		rep.Rate = float64(rep.IndexedIDs) / float64(rep.SourceIDs)
	}
	for id := range source {
		if !indexed[id] {
			rep.Unindexed = append(rep.Unindexed, id)
		}
	}
	slices.Sort(rep.Unindexed)
	return rep
}
