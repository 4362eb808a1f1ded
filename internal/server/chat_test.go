package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/rag"
	"github.com/54b3r/sortir-go/internal/responder"
	"github.com/54b3r/sortir-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fake responder for chat handler tests
// ---------------------------------------------------------------------------

// fakeResponder implements chatResponder for tests. It records every call
// and returns a copy of reply.
type fakeResponder struct {
	mu sync.Mutex
	// questions and histories record each Respond call.
	questions []string
	histories [][]responder.Turn
	// reply is returned by Respond.
	reply responder.Reply
}

func (f *fakeResponder) Respond(_ context.Context, userText string, history []responder.Turn) *responder.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, userText)
	f.histories = append(f.histories, history)
	r := f.reply
	return &r
}

func okReply() responder.Reply {
	return responder.Reply{
		Text:    "Le Django Festival a lieu du 20 au 22 juin 2025.",
		Outcome: responder.OutcomeOK,
		Results: []rag.SearchResult{{Chunk: rag.Chunk{
			Text: "Jazz manouche.",
			Metadata: rag.Metadata{
				Title: "Django Festival", LocationName: "Le Baiser Salé",
				FirstDateBegin: "2025-06-20", LastDateEnd: "2025-06-22",
			},
		}}},
	}
}

// newTestServer builds a *Server through New with an isolated registry and a
// silent logger.
func newTestServer() *Server {
	return newChatTestServer(&fakeResponder{reply: okReply()}, &Config{})
}

func newChatTestServer(r chatResponder, cfg *Config) *Server {
	reg := prometheus.NewRegistry()
	cfg.MetricsRegistry = reg
	cfg.MetricsGatherer = reg
	cfg.Logger = logging.Discard()
	s, err := New(r, cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func postChat(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleChat(w, req)
	return w
}

func decodeChat(t *testing.T, w *httptest.ResponseRecorder) chatResponse {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

// ---------------------------------------------------------------------------
// POST /api/chat: validation error paths
// ---------------------------------------------------------------------------

func TestHandleChat_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `not-json`, http.StatusBadRequest},
		{"missing message", `{"session_id":"abc"}`, http.StatusBadRequest},
		{"blank message", `{"message":"   "}`, http.StatusBadRequest},
		{"too long", `{"message":"` + strings.Repeat("é", maxMessageRunes+1) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fr := &fakeResponder{reply: okReply()}
			s := newChatTestServer(fr, &Config{})
			w := postChat(t, s, tc.body)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
			if len(fr.questions) != 0 {
				t.Errorf("responder called on invalid request")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat: happy path
// ---------------------------------------------------------------------------

func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	fr := &fakeResponder{reply: okReply()}
	s := newChatTestServer(fr, &Config{})

	resp := decodeChat(t, postChat(t, s, `{"message":"  un concert de jazz ?  "}`))

	if resp.Reply != okReply().Text {
		t.Errorf("reply = %q", resp.Reply)
	}
	if resp.Outcome != "ok" {
		t.Errorf("outcome = %q, want ok", resp.Outcome)
	}
	if _, err := uuid.Parse(resp.SessionID); err != nil {
		t.Errorf("session_id %q is not a UUID: %v", resp.SessionID, err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Title != "Django Festival" {
		t.Fatalf("sources = %+v", resp.Sources)
	}
	if resp.Sources[0].Dates != "du 20 au 22 juin 2025" {
		t.Errorf("dates = %q", resp.Sources[0].Dates)
	}
	if fr.questions[0] != "un concert de jazz ?" {
		t.Errorf("question not trimmed: %q", fr.questions[0])
	}
}

// TestHandleChat_ApologyIsInBand verifies that a failed completion is still
// a 200 response carrying the apology and its outcome.
func TestHandleChat_ApologyIsInBand(t *testing.T) {
	t.Parallel()

	fr := &fakeResponder{reply: responder.Reply{Text: responder.Apology, Outcome: responder.OutcomeApology}}
	s := newChatTestServer(fr, &Config{})

	resp := decodeChat(t, postChat(t, s, `{"message":"expo ?","session_id":"s-1"}`))
	if resp.Outcome != "apology" || resp.Reply != responder.Apology {
		t.Errorf("got %+v", resp)
	}
	if resp.SessionID != "s-1" {
		t.Errorf("session_id = %q, want s-1", resp.SessionID)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(resp.Sources))
	}
}

// ---------------------------------------------------------------------------
// Conversation history
// ---------------------------------------------------------------------------

func TestHandleChat_StoredHistory(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	fr := &fakeResponder{reply: okReply()}
	s := newChatTestServer(fr, &Config{History: hist})

	first := decodeChat(t, postChat(t, s, `{"message":"un concert ?"}`))
	body := `{"message":"et demain ?","session_id":"` + first.SessionID + `"}`
	decodeChat(t, postChat(t, s, body))

	if len(fr.histories[0]) != 0 {
		t.Errorf("first turn: expected empty history, got %d turns", len(fr.histories[0]))
	}
	got := fr.histories[1]
	if len(got) != 2 {
		t.Fatalf("second turn: expected 2 history turns, got %d", len(got))
	}
	if got[0].Role != responder.RoleUser || got[0].Content != "un concert ?" {
		t.Errorf("history[0] = %+v", got[0])
	}
	if got[1].Role != responder.RoleAssistant || got[1].Content != okReply().Text {
		t.Errorf("history[1] = %+v", got[1])
	}

	// Apologies are not stored.
	fr.reply = responder.Reply{Text: responder.Apology, Outcome: responder.OutcomeApology}
	decodeChat(t, postChat(t, s, body))
	msgs, err := hist.Recent(context.Background(), first.SessionID, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("expected 4 stored messages, got %d", len(msgs))
	}
}

func TestHandleChat_ClientHistory(t *testing.T) {
	t.Parallel()

	fr := &fakeResponder{reply: okReply()}
	s := newChatTestServer(fr, &Config{})

	decodeChat(t, postChat(t, s, `{"message":"merci","history":[
		{"role":"user","content":"un concert ?"},
		{"role":"system","content":"ignored"},
		{"role":"assistant","content":"Voici un concert."}]}`))

	got := fr.histories[0]
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[1].Role != responder.RoleAssistant {
		t.Errorf("history[1].Role = %q", got[1].Role)
	}
}

func TestHandleSessionDelete(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })
	if err := hist.Append(context.Background(), "s-del", store.RoleUser, "expo ?"); err != nil {
		t.Fatalf("append: %v", err)
	}

	s := newChatTestServer(&fakeResponder{reply: okReply()}, &Config{History: hist})
	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/s-del", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	msgs, err := hist.Recent(context.Background(), "s-del", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected session to be cleared, got %d messages", len(msgs))
	}
}

// ---------------------------------------------------------------------------
// POST /api/index/reload
// ---------------------------------------------------------------------------

func TestHandleIndexReload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		reload func(context.Context) error
		want   int
	}{
		{"not configured", nil, http.StatusNotImplemented},
		{"ok", func(context.Context) error { return nil }, http.StatusOK},
		{"failure", func(context.Context) error { return errors.New("index.db: format_version 2") }, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newChatTestServer(&fakeResponder{}, &Config{ReloadIndex: tc.reload})
			w := httptest.NewRecorder()
			s.handleIndexReload(w, httptest.NewRequest(http.MethodPost, "/api/index/reload", nil))
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Full middleware chain
// ---------------------------------------------------------------------------

func TestHandler_AuthProtectsChatOnly(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeResponder{reply: okReply()}, &Config{APIKey: "secret"})
	h := s.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"expo ?"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("chat without token: expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"expo ?"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("chat with token: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health without token: expected 200, got %d", w.Code)
	}
}

func TestNew_NilResponder(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &Config{}); err == nil {
		t.Error("expected error for nil responder")
	}
}
