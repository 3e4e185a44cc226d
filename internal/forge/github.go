package forge

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"
)

// githubAPI is the subset of go-github's surface GitHubClient needs. Splitting
// it out this way (mirroring the teacher's GitHubClientInterface) keeps the
// real network client mockable in tests without a fake HTTP transport.
type githubAPI interface {
	Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error)
	GetTree(ctx context.Context, owner, repo, sha string, recursive bool) (*github.Tree, *github.Response, error)
	DownloadContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (io.ReadCloser, error)
}

// realGitHubAPI adapts *github.Client's Repositories service to githubAPI.
type realGitHubAPI struct {
	client *github.Client
}

func (r *realGitHubAPI) Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error) {
	return r.client.Repositories.Get(ctx, owner, repo)
}

func (r *realGitHubAPI) GetTree(ctx context.Context, owner, repo, sha string, recursive bool) (*github.Tree, *github.Response, error) {
	return r.client.Git.GetTree(ctx, owner, repo, sha, recursive)
}

func (r *realGitHubAPI) DownloadContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (io.ReadCloser, error) {
	rc, _, err := r.client.Repositories.DownloadContents(ctx, owner, repo, path, opts)
	return rc, err
}

// GitHubClient implements Client against the GitHub REST API via go-github.
type GitHubClient struct {
	api githubAPI
}

// NewGitHubClient builds a client. An empty token means unauthenticated,
// rate-limited access; a non-empty token extends the rate limit (spec §4.1).
func NewGitHubClient(token string) *GitHubClient {
	httpClient := &http.Client{Timeout: RequestTimeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = RequestTimeout
	}
	return &GitHubClient{api: &realGitHubAPI{client: github.NewClient(httpClient)}}
}

func (c *GitHubClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	repoInfo, _, err := c.api.Get(ctx, owner, repo)
	if err != nil || repoInfo == nil || repoInfo.GetDefaultBranch() == "" {
		return "main", nil
	}
	return repoInfo.GetDefaultBranch(), nil
}

func (c *GitHubClient) ListTree(ctx context.Context, owner, repo, branch string) ([]string, string, error) {
	paths, err := c.listTreeOnce(ctx, owner, repo, branch)
	if err == nil {
		return paths, branch, nil
	}

	alt := alternateBranch(branch)
	altPaths, altErr := c.listTreeOnce(ctx, owner, repo, alt)
	if altErr == nil {
		return altPaths, alt, nil
	}

	return nil, "", &GatewayError{Owner: owner, Repo: repo, Branch: branch, Err: err}
}

func (c *GitHubClient) listTreeOnce(ctx context.Context, owner, repo, branch string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	tree, _, err := c.api.GetTree(ctx, owner, repo, branch, true)
	if err != nil {
		return nil, fmt.Errorf("get tree %s/%s@%s: %w", owner, repo, branch, err)
	}

	paths := make([]string, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" {
			paths = append(paths, entry.GetPath())
		}
	}
	return paths, nil
}

func (c *GitHubClient) FetchRaw(ctx context.Context, owner, repo, branch, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	rc, err := c.api.DownloadContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		return nil, nil // network failures are silent skips per spec §4.1
	}
	defer rc.Close()

	body, err := io.ReadAll(io.LimitReader(rc, MaxFileBytes+1))
	if err != nil {
		return nil, nil
	}
	if isBinaryBody(body) {
		return nil, nil
	}
	return body, nil
}
