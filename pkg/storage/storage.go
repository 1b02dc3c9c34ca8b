// Package storage puts imported payloads into S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrEmptyKey is returned when an object key is empty.
var ErrEmptyKey = errors.New("storage key is required")

// ObjectStore stores payloads at caller-chosen keys. No read-modify-write
// semantics are assumed; a second Upload to the same key replaces the object.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// ObjectKey derives the deterministic storage key for an imported file:
// prefix/groupKey/relPath. Empty and dot segments are dropped so the same
// file always maps to the same key.
func ObjectKey(prefix, groupKey, relPath string) string {
	var parts []string
	for _, p := range []string{prefix, groupKey, relPath} {
		for _, seg := range strings.Split(p, "/") {
			seg = strings.TrimSpace(seg)
			if seg == "" || seg == "." || seg == ".." {
				continue
			}
			parts = append(parts, seg)
		}
	}
	return path.Join(parts...)
}
