// Package indexer orchestrates a full-repo (re)build of the vector index:
// list the tree, filter paths, fetch+chunk+embed each file, and upsert file-
// and chunk-level records. Grounded on the bounded errgroup fan-out used for
// file indexing in the pack's RAG vector-store strategy (cagent's
// pkg/rag/strategy).
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeforge-rag/service/internal/chunker"
	"github.com/codeforge-rag/service/internal/embedding"
	"github.com/codeforge-rag/service/internal/filefilter"
	"github.com/codeforge-rag/service/internal/forge"
	"github.com/codeforge-rag/service/internal/identity"
	"github.com/codeforge-rag/service/internal/observability"
	"github.com/codeforge-rag/service/internal/vectorstore"
)

// FileBodyMaxChars bounds the prefix of a file's body that gets embedded for
// its file-level record.
const FileBodyMaxChars = 10_000

// ChunkPreviewMaxChars bounds the stored preview in a chunk record's metadata.
const ChunkPreviewMaxChars = 1_000

// ChunkFlushBatch is how many pending chunk records accumulate before an
// intermediate upsert, bounding peak memory on large repos.
const ChunkFlushBatch = 200

// UpsertBatchSize is the max number of records sent in a single Upsert call.
const UpsertBatchSize = 100

// FetchConcurrency bounds how many files are fetched+chunked+embedded
// concurrently within one Build call.
const FetchConcurrency = 12

// Result is what Build reports back to the service facade.
type Result struct {
	RepoID           string
	Branch           string
	NumFilesIndexed  int
	NumChunksIndexed int
	ElapsedSeconds   float64
}

// Indexer wires the forge client, file filter, chunker, embedder, and vector
// store into the single build operation described in spec §4.7.
type Indexer struct {
	Forge    forge.Client
	Embedder embedding.Embedder
	Store    vectorstore.Store
	Logger   *slog.Logger
	Metrics  *observability.MetricsCollector
}

// New builds an Indexer. A nil logger falls back to slog.Default().
func New(forgeClient forge.Client, embedder embedding.Embedder, store vectorstore.Store, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{Forge: forgeClient, Embedder: embedder, Store: store, Logger: logger}
}

// WithMetrics attaches a metrics collector and returns the same Indexer, so
// callers can chain it onto New. A nil collector (metrics disabled) is a
// no-op everywhere Metrics is used.
func (ix *Indexer) WithMetrics(metrics *observability.MetricsCollector) *Indexer {
	ix.Metrics = metrics
	return ix
}

// Build (re)indexes owner/repo at branch (empty branch resolves the default
// branch). It is idempotent: rerunning it against an unchanged repo upserts
// the same record IDs and reports the same counts.
func (ix *Indexer) Build(ctx context.Context, owner, repo, branch string) (Result, error) {
	start := time.Now()

	if branch == "" {
		resolved, err := ix.Forge.DefaultBranch(ctx, owner, repo)
		if err != nil {
			return Result{}, fmt.Errorf("resolve default branch for %s/%s: %w", owner, repo, err)
		}
		branch = resolved
	}

	paths, usedBranch, err := ix.Forge.ListTree(ctx, owner, repo, branch)
	if err != nil {
		return Result{}, err
	}
	branch = usedBranch
	repoID := identity.RepoID(owner, repo, branch)

	var indexable []string
	for _, p := range paths {
		if filefilter.Indexable(p) {
			indexable = append(indexable, p)
		}
	}

	ix.Logger.Info("indexing repo",
		"repo_id", repoID, "total_paths", len(paths), "indexable_paths", len(indexable))

	perFile := make([][]vectorstore.Record, len(indexable))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(FetchConcurrency)

	for i, path := range indexable {
		i, path := i, path
		g.Go(func() error {
			records, err := ix.buildFileRecords(gctx, owner, repo, branch, repoID, path)
			if err != nil {
				ix.Logger.Warn("skipping file after error", "path", path, "error", err)
				return nil
			}
			perFile[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ix.Metrics != nil {
			ix.Metrics.RecordIndexerError("fan_out")
			ix.Metrics.RecordIndexerOperation("build", "error", time.Since(start))
		}
		return Result{}, fmt.Errorf("index %s: %w", repoID, err)
	}

	numFiles, numChunks, err := ix.flush(ctx, perFile)
	if err != nil {
		if ix.Metrics != nil {
			ix.Metrics.RecordIndexerError("flush")
			ix.Metrics.RecordIndexerOperation("build", "error", time.Since(start))
		}
		return Result{}, err
	}

	elapsed := time.Since(start)
	if ix.Metrics != nil {
		ix.Metrics.RecordIndexerOperation("build", "success", elapsed)
		ix.Metrics.RecordIndexedFiles(numFiles)
		ix.Metrics.RecordIndexedChunks(numChunks)
	}

	return Result{
		RepoID:           repoID,
		Branch:           branch,
		NumFilesIndexed:  numFiles,
		NumChunksIndexed: numChunks,
		ElapsedSeconds:   roundToTwoDecimals(elapsed.Seconds()),
	}, nil
}

// buildFileRecords fetches, embeds, and chunks a single path. The first
// element of the returned slice, if any, is always the file-level record;
// the rest are chunk records. A nil, nil result means the file was skipped
// (oversized, binary, or unreachable) — not an error.
func (ix *Indexer) buildFileRecords(ctx context.Context, owner, repo, branch, repoID, path string) ([]vectorstore.Record, error) {
	body, err := ix.Forge.FetchRaw(ctx, owner, repo, branch, path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	if body == nil {
		return nil, nil
	}
	text := strings.TrimSuffix(string(body), "\n")
	if text == "" {
		return nil, nil
	}

	records := make([]vectorstore.Record, 0, 1)

	filePrefix := truncate(string(body), FileBodyMaxChars)
	fileEmbedding, err := ix.Embedder.Embed(ctx, filePrefix)
	if err != nil {
		return nil, fmt.Errorf("embed file %s: %w", path, err)
	}
	records = append(records, vectorstore.Record{
		ID:     identity.FileID(repoID, path),
		Vector: fileEmbedding.Vector,
		Metadata: map[string]any{
			"repo_id":   repoID,
			"owner":     owner,
			"repo":      repo,
			"branch":    branch,
			"file_path": path,
			"type":      "file",
		},
	})

	spans := chunker.Chunk(text)
	if len(spans) == 0 {
		return records, nil
	}

	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = s.Text
	}
	chunkEmbeddings, err := ix.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks of %s: %w", path, err)
	}

	for i, span := range spans {
		records = append(records, vectorstore.Record{
			ID:     identity.ChunkID(repoID, path, span.StartLine, span.EndLine),
			Vector: chunkEmbeddings[i].Vector,
			Metadata: map[string]any{
				"repo_id":    repoID,
				"owner":      owner,
				"repo":       repo,
				"branch":     branch,
				"file_path":  path,
				"start_line": span.StartLine,
				"end_line":   span.EndLine,
				"text":       truncate(span.Text, ChunkPreviewMaxChars),
				"type":       "chunk",
			},
		})
	}

	return records, nil
}

// flush upserts every per-file record batch, splitting files into a files
// batch and a chunks batch and respecting ChunkFlushBatch / UpsertBatchSize.
func (ix *Indexer) flush(ctx context.Context, perFile [][]vectorstore.Record) (numFiles, numChunks int, err error) {
	var fileBatch []vectorstore.Record
	var chunkBatch []vectorstore.Record

	flushFiles := func() error {
		if len(fileBatch) == 0 {
			return nil
		}
		if err := upsertInBatches(ctx, ix.Store, vectorstore.KindFiles, fileBatch); err != nil {
			return err
		}
		fileBatch = nil
		return nil
	}
	flushChunks := func() error {
		if len(chunkBatch) == 0 {
			return nil
		}
		if err := upsertInBatches(ctx, ix.Store, vectorstore.KindChunks, chunkBatch); err != nil {
			return err
		}
		chunkBatch = nil
		return nil
	}

	for _, records := range perFile {
		if len(records) == 0 {
			continue
		}

		fileBatch = append(fileBatch, records[0])
		numFiles++

		for _, rec := range records[1:] {
			chunkBatch = append(chunkBatch, rec)
			numChunks++
			if len(chunkBatch) >= ChunkFlushBatch {
				if err := flushChunks(); err != nil {
					return 0, 0, err
				}
			}
		}
	}

	if err := flushFiles(); err != nil {
		return 0, 0, err
	}
	if err := flushChunks(); err != nil {
		return 0, 0, err
	}

	return numFiles, numChunks, nil
}

func upsertInBatches(ctx context.Context, store vectorstore.Store, kind vectorstore.Kind, records []vectorstore.Record) error {
	for start := 0; start < len(records); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := store.Upsert(ctx, kind, records[start:end]); err != nil {
			return fmt.Errorf("upsert %s batch: %w", kind, err)
		}
	}
	return nil
}

func truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}

func roundToTwoDecimals(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
