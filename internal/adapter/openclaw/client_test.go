package openclaw

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, APIKey: "k", EmbeddingModel: "emb", HTTPClient: srv.Client()})
}

func TestChatCompletionForwardsBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"model":"m","stream":true,"messages":[]}`, string(body))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	resp, err := client.ChatCompletion(context.Background(), []byte(`{"model":"m","stream":true,"messages":[]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
}

func TestChatCompletionUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	})

	_, err := client.ChatCompletion(context.Background(), []byte(`{}`))
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, http.StatusTooManyRequests, upstream.Status)
	require.Contains(t, err.Error(), "slow down")
}

func TestEmbed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"model":"emb","input":"hello"}`, string(body))
		_, _ = io.WriteString(w, `{"data":[{"embedding":[0.5,-1,0.25]}]}`)
	})

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, -1, 0.25}, vec)
}

func TestHealth(t *testing.T) {
	status := http.StatusOK
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"data":[]}`)
	})
	require.NoError(t, client.Health(context.Background()))

	status = http.StatusBadGateway
	require.Error(t, client.Health(context.Background()))

	require.Error(t, NewClient(Options{}).Health(context.Background()))
}

func TestRelayStreamAccumulatesDeltas(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"model":"m1","choices":[{"delta":{"role":"assistant"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		``,
		`: keep-alive`,
		``,
		`data: {"choices":[{"delta":{"content":"lo"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n") + "\n"

	var out strings.Builder
	flushes := 0
	res, err := RelayStream(strings.NewReader(upstream), &out, func() { flushes++ })
	require.NoError(t, err)
	require.Equal(t, upstream, out.String())
	require.Equal(t, "Hello", res.Content)
	require.Equal(t, "m1", res.Model)
	require.Equal(t, &Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, res.Usage)
	require.GreaterOrEqual(t, flushes, 5)
}

func TestParseCompletion(t *testing.T) {
	res := ParseCompletion([]byte(`{"model":"m","choices":[{"message":{"content":"hi"}}]}`))
	require.Equal(t, "hi", res.Content)
	require.Nil(t, res.Usage)
}
