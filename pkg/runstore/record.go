// Package runstore keeps cross-process run state in Redis: a lock per
// import source so two runs never overlap, and the last report of each
// source.
package runstore

import (
	"time"

	"github.com/Sternrassler/pim-sync/pkg/pipeline"
)

// StoredReport is a run report as kept in Redis.
type StoredReport struct {
	Key      string           `json:"key"`
	Report   *pipeline.Report `json:"report"`
	StoredAt time.Time        `json:"stored_at"`
	Expires  time.Time        `json:"expires"`
}

// IsExpired returns true if the stored report has expired.
func (r *StoredReport) IsExpired() bool {
	return time.Now().After(r.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (r *StoredReport) TTL() time.Duration {
	ttl := time.Until(r.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
