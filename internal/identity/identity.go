// Package identity computes the deterministic IDs that key every stored vector.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// RepoID canonicalizes an owner/repo/branch triple into the tenant key carried
// by every record in the vector store.
func RepoID(owner, repo, branch string) string {
	return fmt.Sprintf("%s/%s@%s", owner, repo, branch)
}

// SplitRepoID reverses RepoID, returning ok=false if id is not well-formed.
func SplitRepoID(id string) (owner, repo, branch string, ok bool) {
	at := strings.LastIndex(id, "@")
	if at < 0 {
		return "", "", "", false
	}
	branch = id[at+1:]
	ownerRepo := id[:at]
	slash := strings.Index(ownerRepo, "/")
	if slash < 0 {
		return "", "", "", false
	}
	return ownerRepo[:slash], ownerRepo[slash+1:], branch, true
}

// FileID returns the deterministic id for a file-level record. Re-implementations
// must match this byte-for-byte since IDs double as the vector store upsert key.
func FileID(repoID, path string) string {
	return sha1ID(repoID, path, "", "")
}

// ChunkID returns the deterministic id for a chunk-level record.
func ChunkID(repoID, path string, startLine, endLine int) string {
	return sha1ID(repoID, path, fmt.Sprintf("%d", startLine), fmt.Sprintf("%d", endLine))
}

// sha1ID computes SHA-1 over the canonical ASCII "{repo_id}:{path}:{start}:{end}".
// For file-level IDs start and end are empty strings, not "0".
func sha1ID(repoID, path, start, end string) string {
	h := sha1.New()
	h.Write([]byte(repoID))
	h.Write([]byte(":"))
	h.Write([]byte(path))
	h.Write([]byte(":"))
	h.Write([]byte(start))
	h.Write([]byte(":"))
	h.Write([]byte(end))
	return hex.EncodeToString(h.Sum(nil))
}
