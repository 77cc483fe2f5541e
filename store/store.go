// Package store provides the narrow key-value and document store
// interfaces named as external collaborators in spec.md §1, plus
// concrete connectors (go-redis, mongo-driver) bound to the `-a`/`-m`
// CLI flags (F.2). A missing endpoint leaves the corresponding
// attribute unset rather than erroring (§4.8 Lifecycle).
package store

import "context"

// KVStore is the narrow key-value surface the runtime core depends on.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// DocStore is the narrow document-store surface the runtime core
// depends on.
type DocStore interface {
	Insert(ctx context.Context, collection string, doc map[string]interface{}) error
	Find(ctx context.Context, collection string, filter map[string]interface{}) ([]map[string]interface{}, error)
	Close() error
}
