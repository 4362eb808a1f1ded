package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingsServer answers /embeddings with body and records the last
// request payload and Authorization header.
func embeddingsServer(t *testing.T, status int, body string) (*httptest.Server, *map[string]any, *string) {
	t.Helper()
	var payload map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &payload, &auth
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	t.Parallel()

	srv, payload, auth := embeddingsServer(t, http.StatusOK, `{
		"object": "list",
		"model": "mistral-embed",
		"data": [
			{"object": "embedding", "index": 1, "embedding": [0.5, 0.25]},
			{"object": "embedding", "index": 0, "embedding": [1, 2]}
		],
		"usage": {"prompt_tokens": 4, "total_tokens": 4}
	}`)

	emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "secret", Model: "mistral-embed"})
	vecs, err := emb.Embed(context.Background(), []string{"concert", "exposition"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{1, 2}, {0.5, 0.25}}, vecs)
	assert.Equal(t, "Bearer secret", *auth)
	assert.Equal(t, "mistral-embed", (*payload)["model"])
	assert.Equal(t, []any{"concert", "exposition"}, (*payload)["input"])
	assert.NotContains(t, *payload, "dimensions")
}

func TestOpenAIEmbedder_SendsDimensions(t *testing.T) {
	t.Parallel()

	srv, payload, _ := embeddingsServer(t, http.StatusOK, `{
		"object": "list", "model": "m",
		"data": [{"object": "embedding", "index": 0, "embedding": [1]}],
		"usage": {"prompt_tokens": 1, "total_tokens": 1}
	}`)

	emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m", Dimensions: 256})
	_, err := emb.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.EqualValues(t, 256, (*payload)["dimensions"])
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{
			name:    "count mismatch",
			status:  http.StatusOK,
			body:    `{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`,
			wantErr: "expected 2 embeddings, got 1",
		},
		{
			name:    "index out of range",
			status:  http.StatusOK,
			body:    `{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1]},{"object":"embedding","index":5,"embedding":[1]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`,
			wantErr: "index 5 out of range",
		},
		{
			name:    "duplicate index",
			status:  http.StatusOK,
			body:    `{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1]},{"object":"embedding","index":0,"embedding":[1]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`,
			wantErr: "no embedding for input 1",
		},
		{
			name:    "server error",
			status:  http.StatusUnauthorized,
			body:    `{"error":{"message":"bad key","type":"invalid_request_error"}}`,
			wantErr: "openai embedder",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv, _, _ := embeddingsServer(t, tc.status, tc.body)
			emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
			_, err := emb.Embed(context.Background(), []string{"a", "b"})
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestOllamaEmbedder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Model == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model \"missing\" not found"}`))
			return
		}
		out := ollamaEmbedResponse{}
		for range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{0.1, 0.2})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	vecs, err := emb.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)

	emb = NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing"})
	_, err = emb.Embed(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "HTTP 404")
	assert.ErrorContains(t, err, "not found")
}
