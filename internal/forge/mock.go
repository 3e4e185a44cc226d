package forge

import "context"

// MockClient is an in-memory Client for tests, grounded on the teacher's
// connectors/github MockClient pattern: canned responses keyed by repo, no
// network calls.
type MockClient struct {
	// Branches maps "owner/repo" to the default branch DefaultBranch returns.
	Branches map[string]string
	// Trees maps "owner/repo@branch" to the paths ListTree returns.
	Trees map[string][]string
	// Files maps "owner/repo@branch/path" to the body FetchRaw returns.
	Files map[string][]byte
	// FailTreeBranches marks "owner/repo@branch" keys whose ListTree call
	// should fail, to exercise the alternate-branch retry.
	FailTreeBranches map[string]bool
}

// NewMockClient returns an empty MockClient ready for its maps to be populated.
func NewMockClient() *MockClient {
	return &MockClient{
		Branches:         map[string]string{},
		Trees:            map[string][]string{},
		Files:            map[string][]byte{},
		FailTreeBranches: map[string]bool{},
	}
}

func (m *MockClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	if b, ok := m.Branches[owner+"/"+repo]; ok {
		return b, nil
	}
	return "main", nil
}

func (m *MockClient) ListTree(ctx context.Context, owner, repo, branch string) ([]string, string, error) {
	key := owner + "/" + repo + "@" + branch
	if !m.FailTreeBranches[key] {
		return m.Trees[key], branch, nil
	}

	alt := alternateBranch(branch)
	altKey := owner + "/" + repo + "@" + alt
	if !m.FailTreeBranches[altKey] {
		return m.Trees[altKey], alt, nil
	}

	return nil, "", &GatewayError{Owner: owner, Repo: repo, Branch: branch, Err: errTreeUnavailable}
}

func (m *MockClient) FetchRaw(ctx context.Context, owner, repo, branch, path string) ([]byte, error) {
	body, ok := m.Files[owner+"/"+repo+"@"+branch+"/"+path]
	if !ok {
		return nil, nil
	}
	if isBinaryBody(body) {
		return nil, nil
	}
	return body, nil
}

var errTreeUnavailable = mockError("tree unavailable")

type mockError string

func (e mockError) Error() string { return string(e) }
