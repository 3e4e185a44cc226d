package vectorstore

import (
	"testing"

	"github.com/codeforge-rag/service/internal/embedding"
	"github.com/stretchr/testify/assert"
)

func TestUUIDFromRecordID_IsDeterministic(t *testing.T) {
	id := "3a7f9c1e2b4d6f8091a2b3c4d5e6f708192a3b4c"
	assert.Equal(t, uuidFromRecordID(id), uuidFromRecordID(id))
}

func TestUUIDFromRecordID_IsWellFormed(t *testing.T) {
	id := "3a7f9c1e2b4d6f8091a2b3c4d5e6f708192a3b4c"
	got := uuidFromRecordID(id)
	// 8-4-4-4-12 hex groups joined by hyphens.
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, got)
}

func TestUUIDFromRecordID_ShortIDsArePadded(t *testing.T) {
	got := uuidFromRecordID("abc")
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, got)
}

func TestUUIDFromRecordID_DifferentIDsDiffer(t *testing.T) {
	a := uuidFromRecordID("3a7f9c1e2b4d6f8091a2b3c4d5e6f708192a3b4c")
	b := uuidFromRecordID("0000000000000000000000000000000000000000")
	assert.NotEqual(t, a, b)
}

func TestToPointStruct_CarriesRecordIDInPayload(t *testing.T) {
	r := Record{
		ID:     "deadbeef",
		Vector: embedding.Vector{0.1, 0.2},
		Metadata: map[string]any{
			"repo_id":   "acme/widget@main",
			"file_path": "src/main.go",
		},
	}
	point := toPointStruct(r)

	a := assert.New(t)
	a.Equal("deadbeef", point.GetPayload()["record_id"].GetStringValue())
	a.Equal("acme/widget@main", point.GetPayload()["repo_id"].GetStringValue())
	a.Equal("src/main.go", point.GetPayload()["file_path"].GetStringValue())
}

func TestFilterFromMetadata_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, filterFromMetadata(nil))
	assert.Nil(t, filterFromMetadata(map[string]any{}))
}

func TestFilterFromMetadata_BuildsMatchConditions(t *testing.T) {
	f := filterFromMetadata(map[string]any{"repo_id": "acme/widget@main"})
	assert := assert.New(t)
	assert.NotNil(f)
	assert.Len(f.Must, 1)
}
