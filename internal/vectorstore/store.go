// Package vectorstore provides storage abstractions over the two logical
// collections (file-level and chunk-level vectors) that back the index.
package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeforge-rag/service/internal/embedding"
)

// Kind names one of the two logical collections.
type Kind string

const (
	KindFiles  Kind = "files"
	KindChunks Kind = "chunks"
)

// Record is one vector row: an id, its embedding, and exact-match metadata.
// id collisions on Upsert overwrite in place, which is what makes reindexing
// idempotent.
type Record struct {
	ID       string
	Vector   embedding.Vector
	Metadata map[string]any
}

// Match is one query hit: the stored record plus its cosine similarity score
// in [-1, 1]. Distance() gives callers the 1-score form the retriever ranks by.
type Match struct {
	Record Record
	Score  float32
}

// Distance is the 1-score complement callers rank ascending by.
func (m Match) Distance() float32 { return 1 - m.Score }

// QueryOptions bounds and filters a similarity query.
type QueryOptions struct {
	TopK int
	// Filter is an exact-match AND over metadata keys, e.g. {"repo_id": id}
	// or {"repo_id": id, "file_path": p}.
	Filter map[string]any
}

// ErrInsufficientCapacity is returned when a new physical collection would
// exceed the backend's hard collection-count limit (spec §7: store-capacity
// error). Callers should route subsequent operations for the repo through
// the shared collection instead of retrying collection creation.
var ErrInsufficientCapacity = fmt.Errorf("vectorstore: insufficient capacity for new collection")

// Store is the two-collection adapter every backend implements: upsert,
// similarity query with metadata filtering, and existence counting.
type Store interface {
	// Upsert inserts or overwrites records in the given logical collection.
	Upsert(ctx context.Context, kind Kind, records []Record) error

	// Query returns the top-k records in kind ordered by cosine similarity
	// descending, restricted to records matching opts.Filter.
	Query(ctx context.Context, kind Kind, vector embedding.Vector, opts QueryOptions) ([]Match, error)

	// Count returns how many records in kind match filter, capped at no
	// particular bound; callers needing only an existence check should pass
	// TopK: 1 via Query instead, which is cheaper against a real backend.
	Count(ctx context.Context, kind Kind, filter map[string]any) (int64, error)

	// Close releases any backend resources (network connections, etc).
	Close() error
}

// maxCollectionNameLength bounds a physical collection name (spec §4.6).
const maxCollectionNameLength = 45

// SanitizeCollectionName normalizes a candidate physical collection name to
// the backend's naming rules. '/', '_', and '@' become '-'; every other
// character outside [a-z0-9-] is dropped outright, not replaced — "repo.go"
// sanitizes to "repogo", not "repo-go". An over-length result is truncated
// to maxCollectionNameLength characters with trailing '-' trimmed; an empty
// result falls back to "default-index" (spec §4.6).
func SanitizeCollectionName(name string) string {
	lowered := strings.ToLower(name)
	replacer := strings.NewReplacer("/", "-", "_", "-", "@", "-")
	lowered = replacer.Replace(lowered)

	var b strings.Builder
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	sanitized := b.String()
	if sanitized == "" {
		return "default-index"
	}
	if len(sanitized) > maxCollectionNameLength {
		sanitized = strings.TrimRight(sanitized[:maxCollectionNameLength], "-")
		if sanitized == "" {
			return "default-index"
		}
	}
	return sanitized
}
