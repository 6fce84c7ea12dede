package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
)

// ---------------------------------------------------------------------------
// chatURL helper
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.groq.com/openai/v1", "https://api.groq.com/openai/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.groq.com/openai/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_RequiresCredentialSource(t *testing.T) {
	_, err := NewClient()
	require.ErrorContains(t, err, "required")

	_, err = NewClient(WithParamStore(&fakeTokens{}, " / "))
	require.ErrorContains(t, err, "prefix")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(WithAPIKey("gsk-1"))
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, c.baseURL)
	require.NotNil(t, c.httpClient)
}

// ---------------------------------------------------------------------------
// resolveAPIKey
// ---------------------------------------------------------------------------

type fakeTokens struct {
	val   string
	err   error
	names []string
}

func (f *fakeTokens) Token(_ context.Context, name string) (string, error) {
	f.names = append(f.names, name)
	return f.val, f.err
}

func TestResolveAPIKey_FetchedOnce(t *testing.T) {
	tokens := &fakeTokens{val: "gsk-from-ssm"}
	c, err := NewClient(WithParamStore(tokens, "/support-agent/"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		key, err := c.resolveAPIKey(context.Background())
		require.NoError(t, err)
		require.Equal(t, "gsk-from-ssm", key)
	}
	require.Equal(t, []string{"/support-agent/completion-token"}, tokens.names)
}

func TestResolveAPIKey_StaticKeyWins(t *testing.T) {
	tokens := &fakeTokens{val: "unused"}
	c, err := NewClient(WithParamStore(tokens, "/p"), WithAPIKey("gsk-static"))
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "gsk-static", key)
	require.Empty(t, tokens.names)
}

func TestResolveAPIKey_Error(t *testing.T) {
	c, err := NewClient(WithParamStore(&fakeTokens{err: errors.New("ssm unavailable")}, "/p"))
	require.NoError(t, err)
	_, err = c.resolveAPIKey(context.Background())
	require.ErrorContains(t, err, "ssm unavailable")
}

// ---------------------------------------------------------------------------
// Client.Complete
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		WithAPIKey("gsk-test"),
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 1670000000,
		"choices": []map[string]any{{
			"index":   0,
			"message": map[string]string{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestClient_Complete_HappyPath(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(reqBody, &got))
		require.NotContains(t, string(reqBody), "response_format")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("  We open at 9.  ")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Complete(context.Background(),
		[]domain.ChatMessage{{Role: "user", Content: "hi"}},
		domain.SamplingConfig{Model: "llama", MaxTokens: 200, Temperature: 0.8, TopP: 0.9})
	require.NoError(t, err)
	require.Equal(t, "We open at 9.", resp)

	require.Equal(t, "llama", got.Model)
	require.Equal(t, 200, got.MaxTokens)
	require.InDelta(t, 0.8, *got.Temperature, 1e-9)
	require.InDelta(t, 0.9, *got.TopP, 1e-9)
	require.False(t, got.Stream)
}

func TestClient_Complete_CapsMaxTokens(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), nil, domain.SamplingConfig{Model: "m", MaxTokens: 4000})
	require.NoError(t, err)
	require.Equal(t, maxTokensCap, got.MaxTokens)
	require.Nil(t, got.Temperature)
}

func TestClient_Complete_EmptyModel(t *testing.T) {
	c, err := NewClient(WithAPIKey("gsk-test"))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), nil, domain.SamplingConfig{})
	require.ErrorContains(t, err, "model")
}

func TestClient_Complete_UpstreamStatus(t *testing.T) {
	for _, status := range []int{400, 429, 500} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))

		c := newTestClient(t, srv)
		_, err := c.Complete(context.Background(), nil, domain.SamplingConfig{Model: "m"})
		srv.Close()

		require.ErrorContains(t, err, "unexpected status")
		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, status, statusErr.HTTPStatusCode())
	}
}

func TestClient_Complete_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), nil, domain.SamplingConfig{Model: "m"})
	require.ErrorContains(t, err, "decode response")
}

func TestClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), nil, domain.SamplingConfig{Model: "m"})
	require.ErrorContains(t, err, "no choices")
}

func TestClient_Complete_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, nil, domain.SamplingConfig{Model: "m"})
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Complete_NetworkError(t *testing.T) {
	c, err := NewClient(WithAPIKey("gsk-test"), WithBaseURL("http://127.0.0.1:1"),
		WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), nil, domain.SamplingConfig{Model: "m"})
	require.ErrorContains(t, err, "request failed")
}
