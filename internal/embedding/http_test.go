package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}]}`)
	}))
	defer server.Close()

	embedder := NewHTTPEmbedder(server.URL, "test-key", "all-MiniLM-L6-v2", 3)
	emb, err := embedder.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", emb.Text)
	assert.Equal(t, Vector{0.1, 0.2, 0.3}, emb.Vector)
	assert.Equal(t, "all-MiniLM-L6-v2", emb.Model)
}

func TestHTTPEmbedder_EmbedBatch_PreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Respond out of order to exercise the index-keyed reassembly.
		fmt.Fprint(w, `{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`)
	}))
	defer server.Close()

	embedder := NewHTTPEmbedder(server.URL, "", "mini", 1)
	out, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Text)
	assert.Equal(t, Vector{1}, out[0].Vector)
	assert.Equal(t, "b", out[1].Text)
	assert.Equal(t, Vector{2}, out[1].Vector)
}

func TestHTTPEmbedder_EmbedBatch_EmptyInput(t *testing.T) {
	embedder := NewHTTPEmbedder("http://unused", "", "mini", 1)
	_, err := embedder.EmbedBatch(context.Background(), nil)
	require.Error(t, err)
}

func TestHTTPEmbedder_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"model overloaded"}}`)
	}))
	defer server.Close()

	embedder := NewHTTPEmbedder(server.URL, "", "mini", 1)
	_, err := embedder.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHTTPEmbedder_DimensionsAndModel(t *testing.T) {
	embedder := NewHTTPEmbedder("http://unused", "", "all-MiniLM-L6-v2", 384)
	assert.Equal(t, 384, embedder.Dimensions())
	assert.Equal(t, "all-MiniLM-L6-v2", embedder.Model())
}

func TestHTTPProvider_Create(t *testing.T) {
	provider := &HTTPProvider{}

	_, err := provider.Create(map[string]interface{}{})
	require.Error(t, err)

	embedder, err := provider.Create(map[string]interface{}{
		"base_url":   "http://localhost:8081",
		"model":      "all-MiniLM-L6-v2",
		"dimensions": float64(384),
	})
	require.NoError(t, err)
	assert.Equal(t, 384, embedder.Dimensions())
}

func TestHTTPProvider_RegisteredByName(t *testing.T) {
	provider, err := Get("http")
	require.NoError(t, err)
	assert.Equal(t, "http", provider.Name())
}
