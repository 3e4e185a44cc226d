package indexer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-rag/service/internal/embedding"
	"github.com/codeforge-rag/service/internal/forge"
	"github.com/codeforge-rag/service/internal/vectorstore"
)

func newTestIndexer() (*Indexer, *forge.MockClient, *vectorstore.MemoryStore) {
	mockForge := forge.NewMockClient()
	store := vectorstore.NewMemoryStore()
	ix := New(mockForge, embedding.NewMock(8), store, nil)
	return ix, mockForge, store
}

func TestBuild_EmptyRepo(t *testing.T) {
	ix, mockForge, _ := newTestIndexer()
	mockForge.Branches["acme/empty"] = "main"
	mockForge.Trees["acme/empty@main"] = nil

	result, err := ix.Build(context.Background(), "acme", "empty", "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.NumFilesIndexed)
	assert.Equal(t, 0, result.NumChunksIndexed)
	assert.Equal(t, "acme/empty@main", result.RepoID)
}

func TestBuild_SingleSmallFile(t *testing.T) {
	ix, mockForge, store := newTestIndexer()
	mockForge.Branches["acme/widget"] = "main"
	mockForge.Trees["acme/widget@main"] = []string{"README.md"}
	mockForge.Files["acme/widget@main/README.md"] = []byte("hello world\n")

	result, err := ix.Build(context.Background(), "acme", "widget", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.NumFilesIndexed)
	assert.Equal(t, 1, result.NumChunksIndexed)

	filesCount, err := store.Count(context.Background(), vectorstore.KindFiles, map[string]any{"repo_id": "acme/widget@main"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), filesCount)

	chunksCount, err := store.Count(context.Background(), vectorstore.KindChunks, map[string]any{"repo_id": "acme/widget@main"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), chunksCount)
}

func TestBuild_SkipsNonIndexableAndBinaryPaths(t *testing.T) {
	ix, mockForge, store := newTestIndexer()
	mockForge.Branches["acme/widget"] = "main"
	mockForge.Trees["acme/widget@main"] = []string{"README.md", "logo.png", "src/main.go"}
	mockForge.Files["acme/widget@main/README.md"] = []byte("hello\n")
	mockForge.Files["acme/widget@main/logo.png"] = []byte{0xFF, 0xD8, 0xFF} // never fetched: filtered pre-fetch
	mockForge.Files["acme/widget@main/src/main.go"] = []byte("package main\n")

	result, err := ix.Build(context.Background(), "acme", "widget", "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.NumFilesIndexed)

	filesCount, err := store.Count(context.Background(), vectorstore.KindFiles, map[string]any{"repo_id": "acme/widget@main"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), filesCount)
}

func TestBuild_IsIdempotent(t *testing.T) {
	ix, mockForge, store := newTestIndexer()
	mockForge.Branches["acme/widget"] = "main"
	mockForge.Trees["acme/widget@main"] = []string{"README.md"}
	mockForge.Files["acme/widget@main/README.md"] = []byte("hello world\n")

	_, err := ix.Build(context.Background(), "acme", "widget", "")
	require.NoError(t, err)
	_, err = ix.Build(context.Background(), "acme", "widget", "")
	require.NoError(t, err)

	filesCount, err := store.Count(context.Background(), vectorstore.KindFiles, map[string]any{"repo_id": "acme/widget@main"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), filesCount, "reindexing must not duplicate records")
}

func TestBuild_ChunksLargeFile(t *testing.T) {
	ix, mockForge, store := newTestIndexer()
	mockForge.Branches["acme/widget"] = "main"
	mockForge.Trees["acme/widget@main"] = []string{"big.go"}

	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, strings.Repeat("x", 80))
	}
	mockForge.Files["acme/widget@main/big.go"] = []byte(strings.Join(lines, "\n"))

	result, err := ix.Build(context.Background(), "acme", "widget", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.NumFilesIndexed)
	assert.Greater(t, result.NumChunksIndexed, 1)

	chunksCount, err := store.Count(context.Background(), vectorstore.KindChunks, map[string]any{"repo_id": "acme/widget@main"})
	require.NoError(t, err)
	assert.Equal(t, int64(result.NumChunksIndexed), chunksCount)
}

func TestBuild_GatewayErrorPropagates(t *testing.T) {
	ix, mockForge, _ := newTestIndexer()
	mockForge.Branches["acme/ghost"] = "main"
	mockForge.FailTreeBranches["acme/ghost@main"] = true
	mockForge.FailTreeBranches["acme/ghost@master"] = true

	_, err := ix.Build(context.Background(), "acme", "ghost", "")
	require.Error(t, err)
}

func TestBuild_UsesResolvedBranchWhenRequestedFails(t *testing.T) {
	ix, mockForge, _ := newTestIndexer()
	mockForge.Branches["acme/widget"] = "main"
	mockForge.FailTreeBranches["acme/widget@main"] = true
	mockForge.Trees["acme/widget@master"] = []string{"README.md"}
	mockForge.Files["acme/widget@master/README.md"] = []byte("hi\n")

	result, err := ix.Build(context.Background(), "acme", "widget", "main")
	require.NoError(t, err)
	assert.Equal(t, "master", result.Branch)
	assert.Equal(t, "acme/widget@master", result.RepoID)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel", truncate("hello", 3))
}

func TestRoundToTwoDecimals(t *testing.T) {
	assert.Equal(t, 1.23, roundToTwoDecimals(1.234))
	assert.Equal(t, 1.24, roundToTwoDecimals(1.235))
}
