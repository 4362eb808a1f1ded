package responder

import (
	"fmt"
	"strings"

	"github.com/54b3r/sortir-go/internal/rag"
)

// NoContextPlaceholder replaces the context block when retrieval found
// nothing or failed.
const NoContextPlaceholder = "Aucune information pertinente trouvée."

// contextSeparator separates event blocks in the rendered context.
const contextSeparator = "\n\n---\n\n"

// Placeholders for missing metadata.
const (
	unknownTitle   = "Titre inconnu"
	unknownVenue   = "Lieu inconnu"
	unknownAddress = "Adresse inconnue"
)

// RenderContext formats search results as the context block of the prompt.
// With no results it returns [NoContextPlaceholder].
func RenderContext(results []rag.SearchResult) string {
	if len(results) == 0 {
		return NoContextPlaceholder
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = renderBlock(r.Chunk)
	}
	return strings.Join(blocks, contextSeparator)
}

func renderBlock(c rag.Chunk) string {
	m := c.Metadata
	return fmt.Sprintf("📌 **%s**  \n📍 _Lieu : %s_  \n🏠 _Adresse : %s_  \n🗓️ _%s_  \n📝 %s",
		orPlaceholder(m.Title, unknownTitle),
		orPlaceholder(m.LocationName, unknownVenue),
		orPlaceholder(m.LocationAddress, unknownAddress),
		FormatDateRange(m.FirstDateBegin, m.LastDateEnd),
		strings.TrimSpace(c.Text),
	)
}

// FlatContext renders one result on a single line for evaluation exports:
// "title - venue - address - du begin au end - text". Missing fields stay
// empty.
func FlatContext(r rag.SearchResult) string {
	m := r.Chunk.Metadata
	return fmt.Sprintf("%s - %s - %s - du %s au %s - %s",
		m.Title, m.LocationName, m.LocationAddress, m.FirstDateBegin, m.LastDateEnd,
		strings.TrimSpace(r.Chunk.Text))
}

// FlatContexts applies [FlatContext] to every result.
func FlatContexts(results []rag.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = FlatContext(r)
	}
	return out
}
