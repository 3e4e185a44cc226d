package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-rag/service/internal/answer"
	"github.com/codeforge-rag/service/internal/embedding"
	"github.com/codeforge-rag/service/internal/forge"
	"github.com/codeforge-rag/service/internal/indexer"
	"github.com/codeforge-rag/service/internal/llmclient"
	"github.com/codeforge-rag/service/internal/middleware"
	"github.com/codeforge-rag/service/internal/observability"
	"github.com/codeforge-rag/service/internal/retriever"
	"github.com/codeforge-rag/service/internal/service"
	"github.com/codeforge-rag/service/internal/vectorstore"
)

func newTestRouter(t *testing.T) (http.Handler, *forge.MockClient) {
	t.Helper()

	fc := forge.NewMockClient()
	store := vectorstore.NewMemoryStore()
	embedder := embedding.NewMock(8)
	idx := indexer.New(fc, embedder, store, nil)
	ret := retriever.New(embedder, store)
	composer := answer.New(&llmclient.MockClient{Response: "mock answer"})
	facade := service.New(fc, store, idx, ret, composer, "", nil)

	logger := observability.NewLogger(observability.DefaultLoggerConfig())
	errorHandler := observability.NewErrorHandler(logger, nil, false)
	handler := NewHandler(facade, logger, nil, errorHandler, "test")

	cors := middleware.NewCORSMiddleware(middleware.DefaultCORSConfig(), logger)
	security := middleware.NewSecurityMiddleware(middleware.SecurityConfig{}, logger)

	return NewRouter(handler, cors, security, nil), fc
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoot(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body rootResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.CORSEnabled)
	assert.NotEmpty(t, body.Message)
}

func TestBuildEmbeddings_EmptyRepo(t *testing.T) {
	h, fc := newTestRouter(t)
	fc.Trees["acme/empty@main"] = []string{}

	rec := doJSON(t, h, http.MethodPost, "/build_embeddings", buildEmbeddingsRequest{Owner: "acme", Repo: "empty", Branch: "main"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body buildEmbeddingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "acme/empty@main", body.RepoID)
	assert.Equal(t, 0, body.NumFilesIndexed)
	assert.Equal(t, 0, body.NumChunksIndexed)
}

func TestBuildEmbeddings_ValidationError(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/build_embeddings", buildEmbeddingsRequest{Repo: "widget"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
}

func TestBuildEmbeddings_MalformedBody(t *testing.T) {
	h, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/build_embeddings", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_IndexesOnFirstCallThenAnswers(t *testing.T) {
	h, fc := newTestRouter(t)
	fc.Trees["acme/widget@main"] = []string{"README.md"}
	fc.Files["acme/widget@main/README.md"] = []byte("hello world\n")

	rec := doJSON(t, h, http.MethodPost, "/query", queryRequest{Owner: "acme", Repo: "widget", Branch: "main", Question: "what does this say"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "mock answer", body.Answer)
	require.Len(t, body.References, 1)
	assert.Equal(t, "README.md", body.References[0].FilePath)
	assert.Equal(t, "https://github.com/acme/widget/blob/main/README.md#L1-L1", body.References[0].URL)
}

func TestQuery_EmptyRetrievalIsWellFormed(t *testing.T) {
	h, fc := newTestRouter(t)
	fc.Trees["acme/empty@main"] = []string{}

	rec := doJSON(t, h, http.MethodPost, "/query", queryRequest{Owner: "acme", Repo: "empty", Branch: "main", Question: "anything?"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "No relevant code found for your question.", body.Answer)
	assert.Empty(t, body.References)
}

func TestQuery_RequiresQuestion(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/query", queryRequest{Owner: "acme", Repo: "widget", Branch: "main"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummarize_IndexesAndReturnsArtifacts(t *testing.T) {
	h, fc := newTestRouter(t)
	fc.Trees["acme/widget@main"] = []string{"README.md"}
	fc.Files["acme/widget@main/README.md"] = []byte("hello world\n")

	rec := doJSON(t, h, http.MethodPost, "/summarize", summarizeRequest{Owner: "acme", Repo: "widget", Description: "a widget library"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body summarizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Indexed)
	assert.Equal(t, "main", body.Branch)
	assert.NotEmpty(t, body.Summary)
}

func TestCORSPreflight(t *testing.T) {
	fc := forge.NewMockClient()
	store := vectorstore.NewMemoryStore()
	embedder := embedding.NewMock(8)
	idx := indexer.New(fc, embedder, store, nil)
	ret := retriever.New(embedder, store)
	composer := answer.New(&llmclient.MockClient{Response: "mock answer"})
	facade := service.New(fc, store, idx, ret, composer, "", nil)

	logger := observability.NewLogger(observability.DefaultLoggerConfig())
	errorHandler := observability.NewErrorHandler(logger, nil, false)
	handler := NewHandler(facade, logger, nil, errorHandler, "test")

	cors := middleware.NewCORSMiddleware(middleware.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://example.com"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}, logger)
	security := middleware.NewSecurityMiddleware(middleware.SecurityConfig{}, logger)
	router := NewRouter(handler, cors, security, nil)

	req := httptest.NewRequest(http.MethodOptions, "/query", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
