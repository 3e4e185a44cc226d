package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/codeforge-rag/service/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_UpsertIsIdempotentByID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := Record{ID: "r1", Vector: embedding.Vector{0.1, 0.2, 0.3}, Metadata: map[string]any{"repo_id": "a/b@main"}}
	require.NoError(t, store.Upsert(ctx, KindFiles, []Record{rec}))
	require.NoError(t, store.Upsert(ctx, KindFiles, []Record{rec}))

	count, err := store.Count(ctx, KindFiles, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_CollectionsAreSeparate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, KindFiles, []Record{{ID: "f1", Vector: embedding.Vector{1, 0}}}))
	require.NoError(t, store.Upsert(ctx, KindChunks, []Record{{ID: "c1", Vector: embedding.Vector{1, 0}}}))

	filesCount, err := store.Count(ctx, KindFiles, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), filesCount)

	chunksCount, err := store.Count(ctx, KindChunks, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), chunksCount)
}

func TestMemoryStore_Query_OrdersBySimilarityDescending(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	records := []Record{
		{ID: "doc1", Vector: embedding.Vector{0.9, 0.1, 0.1}},
		{ID: "doc2", Vector: embedding.Vector{0.8, 0.2, 0.1}},
		{ID: "doc3", Vector: embedding.Vector{0.1, 0.9, 0.1}},
	}
	require.NoError(t, store.Upsert(ctx, KindChunks, records))

	matches, err := store.Query(ctx, KindChunks, embedding.Vector{1.0, 0.0, 0.0}, QueryOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "doc1", matches[0].Record.ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestMemoryStore_Query_FiltersByMetadata(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	records := []Record{
		{ID: "doc1", Vector: embedding.Vector{0.9, 0.1, 0.1}, Metadata: map[string]any{"repo_id": "a/b@main"}},
		{ID: "doc2", Vector: embedding.Vector{0.8, 0.2, 0.1}, Metadata: map[string]any{"repo_id": "x/y@main"}},
	}
	require.NoError(t, store.Upsert(ctx, KindChunks, records))

	matches, err := store.Query(ctx, KindChunks, embedding.Vector{1.0, 0.0, 0.0}, QueryOptions{
		TopK:   10,
		Filter: map[string]any{"repo_id": "a/b@main"},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc1", matches[0].Record.ID)
}

func TestMemoryStore_Query_FiltersByFilePathToo(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	records := []Record{
		{ID: "c1", Vector: embedding.Vector{1, 0}, Metadata: map[string]any{"repo_id": "a/b@main", "file_path": "x.go"}},
		{ID: "c2", Vector: embedding.Vector{1, 0}, Metadata: map[string]any{"repo_id": "a/b@main", "file_path": "y.go"}},
	}
	require.NoError(t, store.Upsert(ctx, KindChunks, records))

	matches, err := store.Query(ctx, KindChunks, embedding.Vector{1, 0}, QueryOptions{
		TopK:   10,
		Filter: map[string]any{"repo_id": "a/b@main", "file_path": "y.go"},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c2", matches[0].Record.ID)
}

func TestMatch_Distance(t *testing.T) {
	m := Match{Score: 0.75}
	assert.InDelta(t, 0.25, m.Distance(), 0.0001)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     embedding.Vector
		expected float32
	}{
		{"identical", embedding.Vector{1, 0, 0}, embedding.Vector{1, 0, 0}, 1.0},
		{"orthogonal", embedding.Vector{1, 0, 0}, embedding.Vector{0, 1, 0}, 0.0},
		{"opposite", embedding.Vector{1, 0, 0}, embedding.Vector{-1, 0, 0}, -1.0},
		{"mismatched lengths", embedding.Vector{1, 0}, embedding.Vector{1, 0, 0}, 0.0},
		{"zero vector", embedding.Vector{0, 0, 0}, embedding.Vector{1, 0, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, cosineSimilarity(tt.a, tt.b), 0.001)
		})
	}
}

func TestMatchesFilter(t *testing.T) {
	metadata := map[string]any{"repo_id": "a/b@main", "file_path": "x.go"}

	tests := []struct {
		name     string
		filter   map[string]any
		expected bool
	}{
		{"empty filter matches", map[string]any{}, true},
		{"single match", map[string]any{"repo_id": "a/b@main"}, true},
		{"single mismatch", map[string]any{"repo_id": "other"}, false},
		{"all match", map[string]any{"repo_id": "a/b@main", "file_path": "x.go"}, true},
		{"partial mismatch", map[string]any{"repo_id": "a/b@main", "file_path": "y.go"}, false},
		{"missing key", map[string]any{"missing": "value"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchesFilter(metadata, tt.filter))
		})
	}
}

func TestSanitizeCollectionName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already clean", "acme-widget-files", "acme-widget-files"},
		{"uppercase and slash", "Acme/Widget@Main", "acme-widget-main"},
		{"empty reduces to default", "", "default-index"},
		{"only symbols reduces to default", "!!!", "default-index"},
		{"dots are dropped not replaced", "repo.go", "repogo"},
		{"underscore replaced, dot dropped", "my_repo.v2", "my-repov2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeCollectionName(tt.input))
		})
	}

	long := ""
	for i := 0; i < 60; i++ {
		long += "a"
	}
	assert.LessOrEqual(t, len(SanitizeCollectionName(long)), 45)
}

func TestMemoryStore_Concurrency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const numGoroutines = 10
	const recordsPerGoroutine = 10

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				_ = store.Upsert(ctx, KindChunks, []Record{{
					ID:     fmt.Sprintf("rec-%d-%d", offset, j),
					Vector: embedding.Vector{0.1, 0.2, 0.3},
				}})
			}
		}(i)
	}
	wg.Wait()

	count, err := store.Count(ctx, KindChunks, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(numGoroutines*recordsPerGoroutine), count)
}
