package forge

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-github/v45/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitHubClient(t *testing.T, handler http.HandlerFunc) (*GitHubClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)

	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)

	gh := github.NewClient(server.Client())
	gh.BaseURL = base
	gh.UploadURL = base

	return &GitHubClient{api: &realGitHubAPI{client: gh}}, server
}

func TestGitHubClient_DefaultBranch(t *testing.T) {
	client, server := newTestGitHubClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/repos/acme/widget")
		fmt.Fprint(w, `{"default_branch": "develop"}`)
	})
	defer server.Close()

	branch, err := client.DefaultBranch(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, "develop", branch)
}

func TestGitHubClient_DefaultBranch_FallsBackToMain(t *testing.T) {
	client, server := newTestGitHubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer server.Close()

	branch, err := client.DefaultBranch(context.Background(), "acme", "ghost")
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestGitHubClient_ListTree_Success(t *testing.T) {
	client, server := newTestGitHubClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/git/trees/main")
		fmt.Fprint(w, `{"sha":"abc","truncated":false,"tree":[
			{"path":"README.md","type":"blob"},
			{"path":"src","type":"tree"},
			{"path":"src/main.go","type":"blob"}
		]}`)
	})
	defer server.Close()

	paths, usedBranch, err := client.ListTree(context.Background(), "acme", "widget", "main")
	require.NoError(t, err)
	assert.Equal(t, "main", usedBranch)
	assert.ElementsMatch(t, []string{"README.md", "src/main.go"}, paths)
}

func TestGitHubClient_ListTree_RetriesAlternateBranch(t *testing.T) {
	client, server := newTestGitHubClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/git/trees/main"):
			w.WriteHeader(http.StatusNotFound)
		case strings.Contains(r.URL.Path, "/git/trees/master"):
			fmt.Fprint(w, `{"sha":"abc","truncated":false,"tree":[{"path":"a.go","type":"blob"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	defer server.Close()

	paths, usedBranch, err := client.ListTree(context.Background(), "acme", "widget", "main")
	require.NoError(t, err)
	assert.Equal(t, "master", usedBranch)
	assert.Equal(t, []string{"a.go"}, paths)
}

func TestGitHubClient_ListTree_GatewayErrorWhenBothBranchesFail(t *testing.T) {
	client, server := newTestGitHubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer server.Close()

	_, _, err := client.ListTree(context.Background(), "acme", "widget", "main")
	require.Error(t, err)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "acme", gwErr.Owner)
	assert.Equal(t, "widget", gwErr.Repo)
}

func TestAlternateBranch(t *testing.T) {
	assert.Equal(t, "master", alternateBranch("main"))
	assert.Equal(t, "main", alternateBranch("master"))
	assert.Equal(t, "main", alternateBranch("feature/x"))
}

func TestIsBinaryBody(t *testing.T) {
	assert.False(t, isBinaryBody([]byte("package main\n")))
	assert.True(t, isBinaryBody([]byte{0x00, 0x01, 0x02}))
	assert.True(t, isBinaryBody(make([]byte, MaxFileBytes+1)))
}

func TestMockClient_ListTree_RetriesAlternateBranch(t *testing.T) {
	m := NewMockClient()
	m.FailTreeBranches["acme/widget@main"] = true
	m.Trees["acme/widget@master"] = []string{"a.go", "b.go"}

	paths, usedBranch, err := m.ListTree(context.Background(), "acme", "widget", "main")
	require.NoError(t, err)
	assert.Equal(t, "master", usedBranch)
	assert.Equal(t, []string{"a.go", "b.go"}, paths)
}

func TestMockClient_ListTree_GatewayErrorWhenBothFail(t *testing.T) {
	m := NewMockClient()
	m.FailTreeBranches["acme/widget@main"] = true
	m.FailTreeBranches["acme/widget@master"] = true

	_, _, err := m.ListTree(context.Background(), "acme", "widget", "main")
	require.Error(t, err)
}

func TestMockClient_FetchRaw(t *testing.T) {
	m := NewMockClient()
	m.Files["acme/widget@main/README.md"] = []byte("hello")

	body, err := m.FetchRaw(context.Background(), "acme", "widget", "main", "README.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)

	missing, err := m.FetchRaw(context.Background(), "acme", "widget", "main", "missing.go")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMockClient_ImplementsClient(t *testing.T) {
	var _ Client = NewMockClient()
	var _ Client = (*GitHubClient)(nil)
}
