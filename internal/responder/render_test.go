package responder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/54b3r/sortir-go/internal/rag"
)

func TestFormatDateRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		begin, end string
		want       string
	}{
		{"same day", "2025-05-04T10:00:00+02:00", "2025-05-04T22:00:00+02:00", "le 4 mai 2025"},
		{"same month", "2025-05-04T10:00:00+02:00", "2025-05-12T18:00:00+02:00", "du 4 au 12 mai 2025"},
		{"two months", "2025-04-28", "2025-05-02", "du 28 avril au 2 mai 2025"},
		{"two years", "2025-12-28", "2026-01-03", "du 28 décembre 2025 au 3 janvier 2026"},
		{"first of month", "2025-08-01", "2025-08-01", "le 1er août 2025"},
		{"reversed bounds", "2025-05-12", "2025-05-04", "du 4 au 12 mai 2025"},
		{"space layout", "2025-02-01 09:00:00", "2025-02-03 09:00:00", "du 1er au 3 février 2025"},
		{"unparseable", "bientôt", "2025-05-04", "du bientôt au 2025-05-04"},
		{"missing end", "2025-05-04", "", "du 2025-05-04 au ?"},
		{"both missing", "", " ", "du ? au ?"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, FormatDateRange(tc.begin, tc.end))
		})
	}
}

func TestFormatDate_UsesOwnZone(t *testing.T) {
	t.Parallel()

	// 23:30 UTC on 31 May is already 1 June in Paris.
	paris := time.FixedZone("CEST", 2*3600)
	d := time.Date(2025, 5, 31, 23, 30, 0, 0, time.UTC).In(paris)
	assert.Equal(t, "1er juin 2025", FormatDate(d))
}

func TestRenderContext(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NoContextPlaceholder, RenderContext(nil))

	results := []rag.SearchResult{
		{Chunk: rag.Chunk{
			Text: " Jazz manouche. ",
			Metadata: rag.Metadata{
				Title: "Django Festival", LocationName: "Le Baiser Salé", LocationAddress: "58 rue des Lombards",
				FirstDateBegin: "2025-06-20", LastDateEnd: "2025-06-22",
			},
		}},
		{Chunk: rag.Chunk{Text: "Visite guidée."}},
	}
	got := RenderContext(results)

	want := "📌 **Django Festival**  \n" +
		"📍 _Lieu : Le Baiser Salé_  \n" +
		"🏠 _Adresse : 58 rue des Lombards_  \n" +
		"🗓️ _du 20 au 22 juin 2025_  \n" +
		"📝 Jazz manouche." +
		"\n\n---\n\n" +
		"📌 **Titre inconnu**  \n" +
		"📍 _Lieu : Lieu inconnu_  \n" +
		"🏠 _Adresse : Adresse inconnue_  \n" +
		"🗓️ _du ? au ?_  \n" +
		"📝 Visite guidée."
	assert.Equal(t, want, got)
	assert.Equal(t, 1, strings.Count(got, contextSeparator))
}

func TestFlatContext(t *testing.T) {
	t.Parallel()

	r := rag.SearchResult{Chunk: rag.Chunk{
		Text:     "Texte.",
		Metadata: rag.Metadata{Title: "T", LocationName: "L", LocationAddress: "A", FirstDateBegin: "d1", LastDateEnd: "d2"},
	}}
	assert.Equal(t, "T - L - A - du d1 au d2 - Texte.", FlatContext(r))
	assert.Empty(t, FlatContexts(nil))
}
