package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/codeforge-rag/service/internal/embedding"
)

// MemoryStore is an in-process Store, keyed by collection kind. It backs
// local development and tests; CollectionStore is the production adapter.
type MemoryStore struct {
	mu         sync.RWMutex
	collection map[Kind]map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collection: map[Kind]map[string]Record{
			KindFiles:  {},
			KindChunks: {},
		},
	}
}

func (m *MemoryStore) Upsert(ctx context.Context, kind Kind, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.collection[kind]
	if bucket == nil {
		bucket = map[string]Record{}
		m.collection[kind] = bucket
	}
	for _, r := range records {
		bucket[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, kind Kind, vector embedding.Vector, opts QueryOptions) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, r := range m.collection[kind] {
		if !matchesFilter(r.Metadata, opts.Filter) {
			continue
		}
		matches = append(matches, Match{Record: r, Score: cosineSimilarity(vector, r.Vector)})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	if opts.TopK > 0 && len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

func (m *MemoryStore) Count(ctx context.Context, kind Kind, filter map[string]any) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, r := range m.collection[kind] {
		if matchesFilter(r.Metadata, filter) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) Close() error { return nil }

// cosineSimilarity computes cosine similarity in [-1, 1]; mismatched lengths
// or zero vectors score 0.
func cosineSimilarity(a, b embedding.Vector) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float32
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
}

// matchesFilter checks that every key in filter is present in metadata with
// an equal value; an empty filter matches everything.
func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}
