// Package retriever implements the two-stage hierarchical query: a file-
// narrowing pass followed by a per-file chunk-selection pass, merged into a
// single ranked list of chunk hits.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/codeforge-rag/service/internal/embedding"
	"github.com/codeforge-rag/service/internal/observability"
	"github.com/codeforge-rag/service/internal/vectorstore"
)

// DefaultTopFiles is how many files the file-narrowing stage keeps.
const DefaultTopFiles = 8

// DefaultTopChunks is how many chunks the merged result is truncated to.
const DefaultTopChunks = 12

// Hit is one retained chunk, enough to build a citation and a context block.
type Hit struct {
	FilePath  string
	StartLine int
	EndLine   int
	Text      string
	Distance  float32
}

// Options overrides the stage fan-outs; a zero value uses the defaults.
type Options struct {
	TopFiles  int
	TopChunks int
}

// Retriever runs the two-stage query against one repo_id at a time.
type Retriever struct {
	Embedder embedding.Embedder
	Store    vectorstore.Store
	Metrics  *observability.MetricsCollector
}

// New builds a Retriever.
func New(embedder embedding.Embedder, store vectorstore.Store) *Retriever {
	return &Retriever{Embedder: embedder, Store: store}
}

// WithMetrics attaches a metrics collector and returns the same Retriever, so
// callers can chain it onto New. A nil collector (metrics disabled) is a
// no-op everywhere Metrics is used.
func (r *Retriever) WithMetrics(metrics *observability.MetricsCollector) *Retriever {
	r.Metrics = metrics
	return r
}

// FileHit is one file-level match, used by the summarize path which only
// needs the file stage, never the chunk stage.
type FileHit struct {
	FilePath string
	Distance float32
}

// RetrieveFiles runs only the file-narrowing stage: embed query once, return
// the top topFiles file matches for repoID. Used by Composer.Summarize,
// which works off whole-file context rather than chunk-level citations.
func (r *Retriever) RetrieveFiles(ctx context.Context, repoID, query string, topFiles int) ([]FileHit, error) {
	if topFiles <= 0 {
		topFiles = DefaultTopFiles
	}

	queryEmbedding, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.Store.Query(ctx, vectorstore.KindFiles, queryEmbedding.Vector, vectorstore.QueryOptions{
		TopK:   topFiles,
		Filter: map[string]any{"repo_id": repoID},
	})
	if err != nil {
		return nil, fmt.Errorf("query files collection: %w", err)
	}

	hits := make([]FileHit, 0, len(matches))
	for _, m := range matches {
		path, _ := m.Record.Metadata["file_path"].(string)
		hits = append(hits, FileHit{FilePath: path, Distance: m.Distance()})
	}
	return hits, nil
}

// Retrieve embeds question once, narrows to the top files for repoID, then
// selects per-file top chunks and merges them ascending by distance. An
// empty result (no indexed content matches) is not an error — see spec §7,
// "empty retrieval is well-formed".
func (r *Retriever) Retrieve(ctx context.Context, repoID, question string, opts Options) ([]Hit, error) {
	topFiles := opts.TopFiles
	if topFiles <= 0 {
		topFiles = DefaultTopFiles
	}
	topChunks := opts.TopChunks
	if topChunks <= 0 {
		topChunks = DefaultTopChunks
	}

	queryStart := time.Now()

	questionEmbedding, err := r.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	fileMatches, err := r.Store.Query(ctx, vectorstore.KindFiles, questionEmbedding.Vector, vectorstore.QueryOptions{
		TopK:   topFiles,
		Filter: map[string]any{"repo_id": repoID},
	})
	if err != nil {
		if r.Metrics != nil {
			r.Metrics.RecordVectorSearch("files", "error", time.Since(queryStart), 0)
		}
		return nil, fmt.Errorf("query files collection: %w", err)
	}
	if len(fileMatches) == 0 {
		if r.Metrics != nil {
			r.Metrics.RecordVectorSearch("files", "success", time.Since(queryStart), 0)
		}
		return nil, nil
	}

	filePaths := make([]string, 0, len(fileMatches))
	for _, m := range fileMatches {
		if path, ok := m.Record.Metadata["file_path"].(string); ok {
			filePaths = append(filePaths, path)
		}
	}

	perFile := topChunks / max(1, len(filePaths))
	if perFile < 1 {
		perFile = 1
	}

	type rankedHit struct {
		hit  Hit
		rank int // stage order, for stable ties
	}
	var all []rankedHit

	for rank, path := range filePaths {
		chunkMatches, err := r.Store.Query(ctx, vectorstore.KindChunks, questionEmbedding.Vector, vectorstore.QueryOptions{
			TopK: perFile,
			Filter: map[string]any{
				"repo_id":   repoID,
				"file_path": path,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("query chunks collection for %s: %w", path, err)
		}

		for _, m := range chunkMatches {
			all = append(all, rankedHit{hit: matchToHit(m), rank: rank})
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].hit.Distance < all[j].hit.Distance })

	if len(all) > topChunks {
		all = all[:topChunks]
	}

	hits := make([]Hit, len(all))
	for i, rh := range all {
		hits[i] = rh.hit
	}

	if r.Metrics != nil {
		r.Metrics.RecordVectorSearch("chunks", "success", time.Since(queryStart), len(hits))
	}

	return hits, nil
}

func matchToHit(m vectorstore.Match) Hit {
	path, _ := m.Record.Metadata["file_path"].(string)
	text, _ := m.Record.Metadata["text"].(string)
	return Hit{
		FilePath:  path,
		StartLine: asInt(m.Record.Metadata["start_line"]),
		EndLine:   asInt(m.Record.Metadata["end_line"]),
		Text:      text,
		Distance:  m.Distance(),
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
