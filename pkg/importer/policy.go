// Package importer provides the pipeline processors for media files from
// the remote drive and for products from the commerce API.
package importer

import "fmt"

// MetadataPolicy decides how media metadata records behave across runs.
type MetadataPolicy string

const (
	// PolicySnapshot appends one metadata record per file per run. Each run
	// is an immutable snapshot; re-imports leave earlier records untouched.
	PolicySnapshot MetadataPolicy = "snapshot"

	// PolicyUpsert keeps one metadata record per stored object and
	// refreshes it on re-import.
	PolicyUpsert MetadataPolicy = "upsert"
)

// ParseMetadataPolicy parses a policy name. Empty selects PolicySnapshot.
func ParseMetadataPolicy(s string) (MetadataPolicy, error) {
	switch MetadataPolicy(s) {
	case "", PolicySnapshot:
		return PolicySnapshot, nil
	case PolicyUpsert:
		return PolicyUpsert, nil
	default:
		return "", fmt.Errorf("unknown metadata policy %q (want snapshot or upsert)", s)
	}
}
