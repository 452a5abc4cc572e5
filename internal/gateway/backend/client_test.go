package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/", Headers: map[string]string{"X-Api-Key": "secret-1234"}})
	require.NoError(t, err)
	return c
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
	_, err = NewClient(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
	c, err := NewClient(Config{BaseURL: "http://localhost:8080/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
}

func TestQuerySingle(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/query", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret-1234", r.Header.Get("X-Api-Key"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["prompt"])
		_, _ = w.Write([]byte(`{"result":"hi"}`))
	}))
	text, err := c.QuerySingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}

func TestQueryProviderErrorOnOK(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/openai", r.URL.Path)
		assert.Equal(t, "what is go?", r.URL.Query().Get("prompt"))
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	_, err := c.QueryProvider(context.Background(), "openai", "what is go?")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "openai", pe.Provider)
	assert.Equal(t, "boom", err.Error())
}

func TestQueryModelSendsTemperature(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		var body struct {
			Model       string  `json:"model"`
			Prompt      string  `json:"prompt"`
			Temperature float64 `json:"temperature"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body.Model)
		assert.Equal(t, "hello", body.Prompt)
		assert.Equal(t, 50.0, body.Temperature)
		_, _ = w.Write([]byte(`{"result":"from gpt"}`))
	}))
	text, err := c.QueryModel(context.Background(), "gpt-4o", "hello", 50)
	require.NoError(t, err)
	assert.Equal(t, "from gpt", text)
}

func TestQueryMultiplexedDecomposes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/query", r.URL.Path)
		_, _ = w.Write([]byte(`{"anthropic":{"result":"A"},"OpenAI":{"error":"rate limited"},"gemini":{"result":"G","error":""}}`))
	}))
	replies, err := c.QueryMultiplexed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, replies, 3)
	assert.Equal(t, Reply{Text: "A"}, replies["anthropic"])
	assert.Equal(t, "G", replies["gemini"].Text)
	assert.NoError(t, replies["gemini"].Err)
	assert.EqualError(t, replies["openai"].Err, "rate limited")
}

func TestQueryMultiplexedTransportFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Prompt parameter is required", http.StatusBadRequest)
	}))
	_, err := c.QueryMultiplexed(context.Background(), "hello")
	te, ok := AsTransportError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Contains(t, err.Error(), "Prompt parameter is required")
}

func TestNetworkFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	srv.Close()

	_, err = c.QueryProvider(context.Background(), "gemini", "hello")
	te, ok := AsTransportError(err)
	require.True(t, ok)
	assert.Equal(t, 0, te.StatusCode)
	assert.NotEmpty(t, err.Error())
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"gpt-4o","provider":"openai"},{"provider":"ghost"},{"name":"gemini-1.5-pro","provider":"gemini"}]}`))
	}))
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ModelInfo{
		{Name: "gpt-4o", Provider: "openai"},
		{Name: "gemini-1.5-pro", Provider: "gemini"},
	}, models)
}

func TestListModelsRejectsShape(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	_, err := c.ListModels(context.Background())
	_, ok := AsTransportError(err)
	assert.True(t, ok)
}

func TestMaskHeaders(t *testing.T) {
	masked := maskHeaders(map[string]string{
		"Authorization": "Bearer abcdefgh",
		"X-Token":       "abc",
		"X-Trace":       "visible",
	})
	assert.Equal(t, "****efgh", masked["Authorization"])
	assert.Equal(t, "****", masked["X-Token"])
	assert.Equal(t, "visible", masked["X-Trace"])
}
