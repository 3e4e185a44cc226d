package answer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-rag/service/internal/llmclient"
	"github.com/codeforge-rag/service/internal/retriever"
)

func TestCompose_EmptyHitsReturnsWellFormedAnswer(t *testing.T) {
	c := New(&llmclient.MockClient{Response: "should not be called"})
	ans, err := c.Compose(context.Background(), "github.com", "acme", "widget", "main", "what is this?", nil)
	require.NoError(t, err)
	assert.Equal(t, noRelevantCodeAnswer, ans.Text)
	assert.Empty(t, ans.References)
}

func TestCompose_BuildsCitationURLs(t *testing.T) {
	c := New(&llmclient.MockClient{Response: "the answer [1]"})
	hits := []retriever.Hit{
		{FilePath: "src/main.go", StartLine: 10, EndLine: 20, Text: "func main() {}"},
	}

	ans, err := c.Compose(context.Background(), "github.com", "acme", "widget", "main", "how does main work?", hits)
	require.NoError(t, err)
	assert.Equal(t, "the answer [1]", ans.Text)
	require.Len(t, ans.References, 1)
	assert.Equal(t, "https://github.com/acme/widget/blob/main/src/main.go#L10-L20", ans.References[0].URL)
}

func TestCompose_DedupesReferencesPreservingOrder(t *testing.T) {
	c := New(&llmclient.MockClient{Response: "answer"})
	hits := []retriever.Hit{
		{FilePath: "a.go", StartLine: 1, EndLine: 5, Text: "x"},
		{FilePath: "b.go", StartLine: 1, EndLine: 5, Text: "y"},
		{FilePath: "a.go", StartLine: 1, EndLine: 5, Text: "x"}, // duplicate
	}

	ans, err := c.Compose(context.Background(), "github.com", "acme", "widget", "main", "q", hits)
	require.NoError(t, err)
	require.Len(t, ans.References, 2)
	assert.Equal(t, "a.go", ans.References[0].FilePath)
	assert.Equal(t, "b.go", ans.References[1].FilePath)
}

func TestCompose_NilLLMReturnsDegradedContext(t *testing.T) {
	c := New(nil)
	hits := []retriever.Hit{{FilePath: "a.go", StartLine: 1, EndLine: 2, Text: "hello"}}

	ans, err := c.Compose(context.Background(), "github.com", "acme", "widget", "main", "q", hits)
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "LLM unavailable")
	assert.Contains(t, ans.Text, "hello")
	assert.Len(t, ans.References, 1)
}

func TestCompose_LLMErrorFallsBackToDegradedSuccess(t *testing.T) {
	c := New(&llmclient.MockClient{Err: assertError("boom")})
	hits := []retriever.Hit{{FilePath: "a.go", StartLine: 1, EndLine: 2, Text: "hello"}}

	ans, err := c.Compose(context.Background(), "github.com", "acme", "widget", "main", "q", hits)
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "LLM unavailable")
	assert.Len(t, ans.References, 1)
}

func TestSummarize_MakesTwoDistinctCompletionCalls(t *testing.T) {
	mock := &llmclient.MockClient{Responses: []string{"Short summary.", "Long paper text."}}
	c := New(mock)
	files := []retriever.FileHit{{FilePath: "README.md"}, {FilePath: "main.go"}}

	s, err := c.Summarize(context.Background(), "acme", "widget", "a RAG service", files)
	require.NoError(t, err)
	assert.Equal(t, "Short summary.", s.Summary)
	assert.Equal(t, "Long paper text.", s.ProjectPaper)
	require.Len(t, mock.Calls, 2)
	assert.NotEqual(t, mock.Calls[0][0].Content, mock.Calls[1][0].Content)
}

func TestSummarize_PaperCallFailureDegradesPaperOnly(t *testing.T) {
	files := []retriever.FileHit{{FilePath: "main.go"}}

	mock := &sequencedMockClient{responses: []string{"Short summary."}, errFrom: 1}
	c := New(mock)
	s, err := c.Summarize(context.Background(), "acme", "widget", "desc", files)
	require.NoError(t, err)
	assert.Equal(t, "Short summary.", s.Summary)
	assert.Equal(t, degradedSummary, s.ProjectPaper)
}

func TestSummarize_NilLLMReturnsDegraded(t *testing.T) {
	c := New(nil)
	s, err := c.Summarize(context.Background(), "acme", "widget", "desc", nil)
	require.NoError(t, err)
	assert.Equal(t, degradedSummary, s.Summary)
	assert.Equal(t, degradedSummary, s.ProjectPaper)
}

// sequencedMockClient returns responses in order, then fails from call index
// errFrom onward. Used to test that the summary and project_paper
// completions degrade independently.
type sequencedMockClient struct {
	responses []string
	errFrom   int
	calls     int
}

func (m *sequencedMockClient) Chat(ctx context.Context, messages []llmclient.Message) (string, error) {
	i := m.calls
	m.calls++
	if i >= m.errFrom {
		return "", assertError("boom")
	}
	return m.responses[i], nil
}

type assertError string

func (e assertError) Error() string { return string(e) }
