// Package service implements the facade (spec §4.10) that fronts the
// indexing/retrieval pipeline: request validation plus an idempotent
// "index-if-missing" check ahead of query and summarize.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codeforge-rag/service/internal/answer"
	"github.com/codeforge-rag/service/internal/forge"
	"github.com/codeforge-rag/service/internal/identity"
	"github.com/codeforge-rag/service/internal/indexer"
	"github.com/codeforge-rag/service/internal/retriever"
	"github.com/codeforge-rag/service/internal/vectorstore"
)

// ErrInvalidRequest flags a malformed request; callers map it to HTTP 400.
var ErrInvalidRequest = errors.New("service: invalid request")

// DefaultForgeHost is used to build citation URLs when none is configured.
const DefaultForgeHost = "github.com"

// BuildResult is the response shape for /build_embeddings.
type BuildResult struct {
	RepoID           string
	Branch           string
	NumFilesIndexed  int
	NumChunksIndexed int
	TookSeconds      float64
}

// QueryResult is the response shape for /query.
type QueryResult struct {
	Answer     string
	References []answer.Reference
	RepoID     string
}

// SummaryResult is the response shape for /summarize.
type SummaryResult struct {
	Summary      string
	ProjectPaper string
	Indexed      bool
	Branch       string
	RepoID       string
}

// Facade wires the forge client, indexer, retriever, and answer composer
// into the three operations exposed over HTTP.
type Facade struct {
	Forge     forge.Client
	Store     vectorstore.Store
	Indexer   *indexer.Indexer
	Retriever *retriever.Retriever
	Composer  *answer.Composer
	ForgeHost string
	Logger    *slog.Logger
}

// New builds a Facade. A blank forgeHost defaults to DefaultForgeHost, and a
// nil logger falls back to slog.Default().
func New(forgeClient forge.Client, store vectorstore.Store, idx *indexer.Indexer, ret *retriever.Retriever, composer *answer.Composer, forgeHost string, logger *slog.Logger) *Facade {
	if forgeHost == "" {
		forgeHost = DefaultForgeHost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		Forge:     forgeClient,
		Store:     store,
		Indexer:   idx,
		Retriever: ret,
		Composer:  composer,
		ForgeHost: forgeHost,
		Logger:    logger,
	}
}

// BuildEmbeddings runs a full (re)build for owner/repo@branch. A blank branch
// resolves to the repo's default branch. Rebuilding an already-indexed repo
// is idempotent: record counts and IDs are unchanged (spec §8).
func (f *Facade) BuildEmbeddings(ctx context.Context, owner, repo, branch string) (BuildResult, error) {
	if owner == "" || repo == "" {
		return BuildResult{}, fmt.Errorf("%w: owner and repo are required", ErrInvalidRequest)
	}

	result, err := f.Indexer.Build(ctx, owner, repo, branch)
	if err != nil {
		return BuildResult{}, err
	}

	return BuildResult{
		RepoID:           result.RepoID,
		Branch:           result.Branch,
		NumFilesIndexed:  result.NumFilesIndexed,
		NumChunksIndexed: result.NumChunksIndexed,
		TookSeconds:      result.ElapsedSeconds,
	}, nil
}

// Query answers question against owner/repo@branch, indexing the repo first
// if it has never been built (spec §4.10's index-on-query contract). A blank
// branch resolves to the repo's default branch.
func (f *Facade) Query(ctx context.Context, owner, repo, question, branch string, topFiles, topChunks int) (QueryResult, error) {
	if owner == "" || repo == "" || question == "" {
		return QueryResult{}, fmt.Errorf("%w: owner, repo, and question are required", ErrInvalidRequest)
	}

	branch, err := f.resolveBranch(ctx, owner, repo, branch)
	if err != nil {
		return QueryResult{}, err
	}
	repoID := identity.RepoID(owner, repo, branch)

	branch, repoID, err = f.ensureIndexed(ctx, owner, repo, branch, repoID)
	if err != nil {
		return QueryResult{}, err
	}

	hits, err := f.Retriever.Retrieve(ctx, repoID, question, retriever.Options{TopFiles: topFiles, TopChunks: topChunks})
	if err != nil {
		return QueryResult{}, fmt.Errorf("retrieve: %w", err)
	}

	ans, err := f.Composer.Compose(ctx, f.ForgeHost, owner, repo, branch, question, hits)
	if err != nil {
		return QueryResult{}, fmt.Errorf("compose answer: %w", err)
	}

	return QueryResult{Answer: ans.Text, References: ans.References, RepoID: repoID}, nil
}

// Summarize describes owner/repo from its indexed file paths, indexing the
// repo first if necessary. Per spec §9's open question, this path always
// resolves the repo's own default branch and does not accept a caller branch.
func (f *Facade) Summarize(ctx context.Context, owner, repo, description string) (SummaryResult, error) {
	if owner == "" || repo == "" {
		return SummaryResult{}, fmt.Errorf("%w: owner and repo are required", ErrInvalidRequest)
	}

	branch, err := f.resolveBranch(ctx, owner, repo, "")
	if err != nil {
		return SummaryResult{}, err
	}
	repoID := identity.RepoID(owner, repo, branch)

	wasIndexed, err := f.indexed(ctx, repoID)
	if err != nil {
		return SummaryResult{}, err
	}
	if !wasIndexed {
		result, err := f.Indexer.Build(ctx, owner, repo, branch)
		if err != nil {
			return SummaryResult{}, err
		}
		branch = result.Branch
		repoID = result.RepoID
	}

	files, err := f.Retriever.RetrieveFiles(ctx, repoID, description, retriever.DefaultTopFiles)
	if err != nil {
		return SummaryResult{}, fmt.Errorf("retrieve files: %w", err)
	}

	summary, err := f.Composer.Summarize(ctx, owner, repo, description, files)
	if err != nil {
		return SummaryResult{}, fmt.Errorf("summarize: %w", err)
	}

	return SummaryResult{
		Summary:      summary.Summary,
		ProjectPaper: summary.ProjectPaper,
		Indexed:      true,
		Branch:       branch,
		RepoID:       repoID,
	}, nil
}

func (f *Facade) resolveBranch(ctx context.Context, owner, repo, branch string) (string, error) {
	if branch != "" {
		return branch, nil
	}
	resolved, err := f.Forge.DefaultBranch(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("resolve default branch: %w", err)
	}
	return resolved, nil
}

// ensureIndexed checks whether repoID is indexed with Store.Count over the
// files collection (an exact count of the repo's file records, not a query
// capped at one record), synchronously building the index on a miss. It returns the branch and repo_id actually indexed under,
// which can differ from the arguments when Indexer.Build falls back to the
// repo's default branch because the requested branch doesn't exist — callers
// must use the returned values for any subsequent Store/Retriever lookup.
func (f *Facade) ensureIndexed(ctx context.Context, owner, repo, branch, repoID string) (string, string, error) {
	already, err := f.indexed(ctx, repoID)
	if err != nil {
		return branch, repoID, err
	}
	if already {
		return branch, repoID, nil
	}

	f.Logger.Info("index-on-query: repo not yet indexed, building now", "repo_id", repoID)
	result, err := f.Indexer.Build(ctx, owner, repo, branch)
	if err != nil {
		return branch, repoID, err
	}
	return result.Branch, result.RepoID, nil
}

func (f *Facade) indexed(ctx context.Context, repoID string) (bool, error) {
	count, err := f.Store.Count(ctx, vectorstore.KindFiles, map[string]any{"repo_id": repoID})
	if err != nil {
		return false, fmt.Errorf("check indexed state: %w", err)
	}
	return count > 0, nil
}
