package responder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/sortir-go/internal/index"
	"github.com/54b3r/sortir-go/internal/rag"
)

// fakeChat records the messages and options of every Generate call.
type fakeChat struct {
	mu    sync.Mutex
	calls [][]*schema.Message
	opts  []*model.Options
	reply string
	err   error
	block bool
}

func (f *fakeChat) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	f.opts = append(f.opts, model.GetCommonOptions(&model.Options{}, opts...))
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChat) lastPrompt(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	last := f.calls[len(f.calls)-1]
	return last[len(last)-1].Content
}

type queryEmbedder struct{ err error }

func (q queryEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	if q.err != nil {
		return nil, q.err
	}
	return []float32{0, 0}, nil
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, []float32, int) ([]rag.SearchResult, error) {
	return nil, errors.New("index corrupted")
}

func sampleIndex(t *testing.T) *index.Holder {
	t.Helper()
	f := index.New(2)
	require.NoError(t, f.Add(rag.Chunk{
		Text: "Concert gratuit en plein air.",
		Metadata: rag.Metadata{
			ID: "1", Title: "Concert Jardin", LocationName: "Parc de la Villette",
			LocationAddress: "211 avenue Jean Jaurès", FirstDateBegin: "2025-05-04T18:00:00+02:00",
			LastDateEnd: "2025-05-04T22:00:00+02:00",
		},
	}, []float32{0, 1}))
	require.NoError(t, f.Add(rag.Chunk{Text: "Exposition de photographies."}, []float32{3, 3}))
	return index.NewHolder(f)
}

func newResponder(t *testing.T, emb rag.QueryEmbedder, s rag.Searcher, chat *fakeChat, cfg *Config) *Responder {
	t.Helper()
	ret, err := rag.NewRetriever(emb, s, 0)
	require.NoError(t, err)
	r, err := New(ret, chat, cfg)
	require.NoError(t, err)
	return r
}

func TestRespond_OK(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "  Voici deux idées.  "}
	r := newResponder(t, queryEmbedder{}, sampleIndex(t), chat, nil)

	reply := r.Respond(context.Background(), "concert gratuit ?", nil)

	assert.Equal(t, OutcomeOK, reply.Outcome)
	assert.Equal(t, "Voici deux idées.", reply.Text)
	require.Len(t, reply.Results, 2)
	assert.Equal(t, "Concert Jardin", reply.Results[0].Chunk.Metadata.Title)
	assert.Equal(t, []string{
		"Concert Jardin - Parc de la Villette - 211 avenue Jean Jaurès - du 2025-05-04T18:00:00+02:00 au 2025-05-04T22:00:00+02:00 - Concert gratuit en plein air.",
		" -  -  - du  au  - Exposition de photographies.",
	}, reply.Contexts)

	prompt := chat.lastPrompt(t)
	assert.Equal(t, reply.Prompt, prompt)
	assert.Contains(t, prompt, "📌 **Concert Jardin**")
	assert.Contains(t, prompt, "🗓️ _le 4 mai 2025_")
	assert.Contains(t, prompt, "📌 **Titre inconnu**")
	assert.Contains(t, prompt, "QUESTION :  \nconcert gratuit ?\n")

	opts := chat.opts[0]
	require.NotNil(t, opts.Temperature)
	require.NotNil(t, opts.TopP)
	assert.InDelta(t, 0.2, *opts.Temperature, 1e-6)
	assert.InDelta(t, 0.9, *opts.TopP, 1e-6)
	assert.Len(t, chat.calls[0], 1, "the prompt is sent as a single message by default")
}

func TestRespond_NoSampling(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "ok"}
	r := newResponder(t, queryEmbedder{}, sampleIndex(t), chat, &Config{NoSampling: true})
	r.Respond(context.Background(), "concert ?", nil)

	assert.Nil(t, chat.opts[0].Temperature)
	assert.Nil(t, chat.opts[0].TopP)
}

func TestRespond_ZeroSamplingIsSent(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "ok"}
	r := newResponder(t, queryEmbedder{}, sampleIndex(t), chat, &Config{Temperature: 0, TopP: 0})
	r.Respond(context.Background(), "concert ?", nil)

	opts := chat.opts[0]
	require.NotNil(t, opts.Temperature)
	require.NotNil(t, opts.TopP)
	assert.Zero(t, *opts.Temperature, "greedy decoding must reach the model")
	assert.Zero(t, *opts.TopP)

	cfg := DefaultConfig()
	cfg.Temperature = 0
	r = newResponder(t, queryEmbedder{}, sampleIndex(t), chat, cfg)
	assert.Zero(t, r.Config().Temperature)
	assert.InDelta(t, DefaultTopP, r.Config().TopP, 1e-6)
}

func TestRespond_CompletionFailureApologises(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		chat *fakeChat
	}{
		{name: "error", chat: &fakeChat{err: errors.New("503 service unavailable")}},
		{name: "timeout", chat: &fakeChat{block: true}},
		{name: "empty", chat: &fakeChat{reply: "   "}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := newResponder(t, queryEmbedder{}, sampleIndex(t), tc.chat, &Config{Timeout: 20 * time.Millisecond})

			assert.Equal(t, Apology, r.Answer(context.Background(), "concert ?", nil))
			reply := r.Respond(context.Background(), "concert ?", nil)
			assert.Equal(t, OutcomeApology, reply.Outcome)
		})
	}
}

func TestRespond_EmptyIndexStillCompletes(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "Je n'ai rien trouvé."}
	r := newResponder(t, queryEmbedder{}, index.NewHolder(index.New(0)), chat, nil)

	reply := r.Respond(context.Background(), "théâtre ?", nil)

	assert.Equal(t, OutcomeNoContext, reply.Outcome)
	assert.Equal(t, "Je n'ai rien trouvé.", reply.Text)
	assert.Empty(t, reply.Results)
	assert.Contains(t, chat.lastPrompt(t), "CONTEXTE :  \n"+NoContextPlaceholder+"\n")
}

func TestRespond_RetrievalFailuresDegradeToNoContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		embedder rag.QueryEmbedder
		searcher rag.Searcher
	}{
		{name: "embedding", embedder: queryEmbedder{err: errors.New("quota")}, searcher: index.NewHolder(nil)},
		{name: "search", embedder: queryEmbedder{}, searcher: failingSearcher{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			chat := &fakeChat{reply: "ok"}
			r := newResponder(t, tc.embedder, tc.searcher, chat, nil)

			reply := r.Respond(context.Background(), "expo ?", nil)
			assert.Equal(t, OutcomeNoContext, reply.Outcome)
			assert.Contains(t, chat.lastPrompt(t), NoContextPlaceholder)
		})
	}
}

func TestRespond_History(t *testing.T) {
	t.Parallel()

	history := []Turn{
		{Role: RoleAssistant, Content: Greeting},
		{Role: RoleUser, Content: "un concert ?"},
		{Role: RoleAssistant, Content: "Voici un concert."},
		{Role: RoleUser, Content: "et demain ?"},
	}

	chat := &fakeChat{reply: "ok"}
	r := newResponder(t, queryEmbedder{}, sampleIndex(t), chat, &Config{HistoryDepth: 2})
	r.Respond(context.Background(), "merci", history)

	msgs := chat.calls[0]
	require.Len(t, msgs, 3)
	assert.Equal(t, schema.Assistant, msgs[0].Role)
	assert.Equal(t, "Voici un concert.", msgs[0].Content)
	assert.Equal(t, "et demain ?", msgs[1].Content)

	// A tiny budget drops every history turn but keeps the prompt.
	chat = &fakeChat{reply: "ok"}
	r = newResponder(t, queryEmbedder{}, sampleIndex(t), chat, &Config{HistoryDepth: 2, MaxContextTokens: 10})
	r.Respond(context.Background(), "merci", history)
	assert.Len(t, chat.calls[0], 1)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	ret, err := rag.NewRetriever(queryEmbedder{}, index.NewHolder(nil), 0)
	require.NoError(t, err)

	_, err = New(nil, &fakeChat{}, nil)
	assert.Error(t, err)
	_, err = New(ret, nil, nil)
	assert.Error(t, err)
	_, err = New(ret, &fakeChat{}, &Config{Template: "no placeholders"})
	assert.ErrorContains(t, err, "{context}")

	r, err := New(ret, &fakeChat{}, nil)
	require.NoError(t, err)
	cfg := r.Config()
	assert.Equal(t, DefaultTopK, cfg.TopK)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultTemplate, cfg.Template)
	assert.InDelta(t, DefaultTemperature, cfg.Temperature, 1e-6)
	assert.InDelta(t, DefaultTopP, cfg.TopP, 1e-6)
}

func TestRenderPrompt(t *testing.T) {
	t.Parallel()

	got := RenderPrompt("C={context} Q={question}", "ctx with {question}", "q with {context}")
	assert.Equal(t, "C=ctx with {question} Q=q with {context}", got)

	prompt := RenderPrompt(DefaultTemplate, "CTX", "QQ")
	assert.True(t, strings.HasPrefix(prompt, "Tu es un assistant culturel pour Paris."))
	assert.Contains(t, prompt, "CONTEXTE :  \nCTX\n")
	assert.Contains(t, prompt, "QUESTION :  \nQQ\n")
	assert.Contains(t, prompt, "**“As-tu d’autres questions ?”**")
	assert.Contains(t, prompt, "📌 **{title}**")
	assert.NotContains(t, prompt, PlaceholderContext)
}

func TestLoadTemplate(t *testing.T) {
	t.Parallel()

	tmpl, err := LoadTemplate("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplate, tmpl)

	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("{context}\n{question}"), 0o600))
	tmpl, err = LoadTemplate(good)
	require.NoError(t, err)
	assert.Equal(t, "{context}\n{question}", tmpl)

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("{context} only"), 0o600))
	_, err = LoadTemplate(bad)
	assert.ErrorContains(t, err, "{question}")

	_, err = LoadTemplate(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
