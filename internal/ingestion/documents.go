package ingestion

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/54b3r/sortir-go/internal/events"
	"github.com/54b3r/sortir-go/internal/rag"
	"github.com/54b3r/sortir-go/internal/segment"
)

// fieldSeparator joins the text fields of a record.
const fieldSeparator = ". "

// BuildDocuments turns one record into sentence-aligned chunks of at most
// maxChars code points (segment.DefaultMaxChars when maxChars is zero).
// Title, short description and long description are joined in that order.
// A record with no meaningful text yields no chunks. Every chunk carries
// the same metadata snapshot.
func BuildDocuments(rec events.Record, maxChars int) []rag.Chunk {
	if maxChars == 0 {
		maxChars = segment.DefaultMaxChars
	}
	text := joinFields(rec.Title, rec.Description, rec.LongDescription)
	if degenerate(text) {
		return nil
	}

	meta := rag.Metadata{
		ID:              rec.ID,
		Title:           rec.Title,
		LocationName:    rec.LocationName,
		LocationAddress: rec.LocationAddress,
		FirstDateBegin:  rec.FirstDateBegin,
		LastDateEnd:     rec.LastDateEnd,
	}

	var docs []rag.Chunk
	for c := range segment.Chunks(text, maxChars) {
		docs = append(docs, rag.Chunk{Text: c, Metadata: meta})
	}
	return docs
}

// joinFields concatenates the non-empty parts with ". ". A part that
// already ends with terminal punctuation gets only the space.
func joinFields(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			prev := b.String()
			r, _ := utf8.DecodeLastRuneInString(prev)
			if strings.ContainsRune(".!?…:;", r) {
				b.WriteByte(' ')
			} else {
				b.WriteString(fieldSeparator)
			}
		}
		b.WriteString(p)
	}
	return b.String()
}

// degenerate reports whether text has no letter or digit, which covers the
// empty string and bare separator sequences such as "...".
func degenerate(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) < 0
}
