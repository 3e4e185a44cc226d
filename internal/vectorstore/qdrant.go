package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/codeforge-rag/service/internal/embedding"
)

// CollectionStore is the production Store backend, grounded on the
// sevigo-code-warden collection-per-call pattern (storage.qdrantVectorStore)
// but adapted to the spec's fixed two-collection-per-tenant-key shape and
// its hard collection-count ceiling.
//
// Preferred mode shares one physical collection per Kind across every repo,
// isolating tenants with a repo_id payload filter. Legacy mode — one
// physical collection per (repo_id, kind) — is only entered for a repo_id
// that already owns such a collection; CollectionStore never creates a new
// legacy collection, since the shared collections always exist once
// EnsureCollections has run.
type CollectionStore struct {
	client *qdrant.Client

	dimensions int
	maxIndexes int

	mu                 sync.Mutex
	sharedName         map[Kind]string
	legacyName         map[string]map[Kind]string // repo_id -> kind -> collection
	physicalCollection int                         // count of collections this adapter has created
}

// NewCollectionStore dials a Qdrant instance. dimensions must match the
// embedder's output size; maxIndexes caps the number of physical collections
// this adapter is willing to create (spec §4.6 store-capacity policy).
func NewCollectionStore(ctx context.Context, host string, port int, apiKey string, useTLS bool, dimensions, maxIndexes int) (*CollectionStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("dial qdrant at %s:%d: %w", host, port, err)
	}

	return &CollectionStore{
		client:     client,
		dimensions: dimensions,
		maxIndexes: maxIndexes,
		sharedName: map[Kind]string{
			KindFiles:  SanitizeCollectionName("shared-files"),
			KindChunks: SanitizeCollectionName("shared-chunks"),
		},
		legacyName: map[string]map[Kind]string{},
	}, nil
}

// EnsureCollections creates the two shared physical collections if they
// don't already exist. Call once during startup.
func (s *CollectionStore) EnsureCollections(ctx context.Context) error {
	for _, kind := range []Kind{KindFiles, KindChunks} {
		if err := s.ensureCollection(ctx, s.sharedName[kind]); err != nil {
			return fmt.Errorf("ensure shared collection for %s: %w", kind, err)
		}
	}
	return nil
}

func (s *CollectionStore) ensureCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	if s.physicalCollection >= s.maxIndexes {
		return ErrInsufficientCapacity
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	s.physicalCollection++
	return nil
}

// collectionFor resolves the physical collection backing a repo_id/kind
// pair: the repo's legacy collection if one was registered via
// RegisterLegacyCollection, otherwise the shared collection.
func (s *CollectionStore) collectionFor(repoID string, kind Kind) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byKind, ok := s.legacyName[repoID]; ok {
		if name, ok := byKind[kind]; ok {
			return name
		}
	}
	return s.sharedName[kind]
}

// RegisterLegacyCollection routes repoID's kind traffic to an existing
// physical collection that predates the shared-collection policy, rather
// than attempting (and failing) to create a new one.
func (s *CollectionStore) RegisterLegacyCollection(repoID string, kind Kind, collectionName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.legacyName[repoID] == nil {
		s.legacyName[repoID] = map[Kind]string{}
	}
	s.legacyName[repoID][kind] = SanitizeCollectionName(collectionName)
}

func (s *CollectionStore) Upsert(ctx context.Context, kind Kind, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	byCollection := map[string][]*qdrant.PointStruct{}
	for _, r := range records {
		repoID, _ := r.Metadata["repo_id"].(string)
		name := s.collectionFor(repoID, kind)
		byCollection[name] = append(byCollection[name], toPointStruct(r))
	}

	for name, points := range byCollection {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upsert %d points into %s: %w", len(points), name, err)
		}
	}
	return nil
}

func (s *CollectionStore) Query(ctx context.Context, kind Kind, vector embedding.Vector, opts QueryOptions) ([]Match, error) {
	repoID, _ := opts.Filter["repo_id"].(string)
	name := s.collectionFor(repoID, kind)

	limit := uint64(opts.TopK)
	if limit == 0 {
		limit = 10
	}

	result, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filterFromMetadata(opts.Filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}

	matches := make([]Match, 0, len(result))
	for _, point := range result {
		matches = append(matches, Match{
			Record: Record{
				ID:       payloadString(point.GetPayload(), "record_id"),
				Metadata: payloadToMetadata(point.GetPayload()),
			},
			Score: point.GetScore(),
		})
	}
	return matches, nil
}

func (s *CollectionStore) Count(ctx context.Context, kind Kind, filter map[string]any) (int64, error) {
	repoID, _ := filter["repo_id"].(string)
	name := s.collectionFor(repoID, kind)

	exact := true
	result, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Filter:         filterFromMetadata(filter),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return int64(result), nil
}

func (s *CollectionStore) Close() error {
	return s.client.Close()
}

// toPointStruct converts a Record into the wire point Qdrant expects. The
// record's sha1-hex ID (spec §4.4) is not itself a valid Qdrant point ID
// (Qdrant requires a uint64 or UUID), so it is deterministically reshaped
// into UUID form and carried verbatim in the "record_id" payload field for
// round-tripping on Query.
func toPointStruct(r Record) *qdrant.PointStruct {
	payload := map[string]any{"record_id": r.ID}
	for k, v := range r.Metadata {
		payload[k] = v
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewID(uuidFromRecordID(r.ID)),
		Vectors: qdrant.NewVectors(r.Vector...),
		Payload: qdrant.NewValueMap(payload),
	}
}

// uuidFromRecordID reshapes a hex record ID into UUID form deterministically,
// so the same record ID always maps to the same Qdrant point ID (the
// property that makes reindexing idempotent).
func uuidFromRecordID(id string) string {
	hex := strings.ToLower(id)
	for len(hex) < 32 {
		hex += "0"
	}
	hex = hex[:32]
	return fmt.Sprintf("%s-%s-%s-%s-%s", hex[0:8], hex[8:12], hex[12:16], hex[16:20], hex[20:32])
}

func filterFromMetadata(filter map[string]any) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		str, ok := value.(string)
		if !ok {
			continue
		}
		conditions = append(conditions, qdrant.NewMatch(key, str))
	}
	return &qdrant.Filter{Must: conditions}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func payloadToMetadata(payload map[string]*qdrant.Value) map[string]any {
	metadata := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "record_id" {
			continue
		}
		switch {
		case v.GetStringValue() != "":
			metadata[k] = v.GetStringValue()
		case v.GetIntegerValue() != 0:
			metadata[k] = v.GetIntegerValue()
		default:
			metadata[k] = v.String()
		}
	}
	return metadata
}
