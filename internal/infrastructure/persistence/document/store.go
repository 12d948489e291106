// Package document adapts hierarchical document tree backends to the
// social graph repository port.
package document

import (
	"context"
)

// Store is a hierarchical key/value tree addressed by slash-separated paths.
//
// Leaves are JSON scalars (string, bool, int64, float64); inner nodes are
// returned as map[string]any. Update applies a multi-path write: each path
// is replaced wholesale by its value, nil deletes the path, and a leaf that
// sits on an ancestor of a written path is dropped. Paths in one update must
// not contain one another.
type Store interface {
	// Get returns the value at path, or nil when nothing is stored there.
	Get(ctx context.Context, path string) (any, error)

	// Exists reports whether a leaf or subtree is stored at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Keys returns the sorted direct child keys of path.
	Keys(ctx context.Context, path string) ([]string, error)

	// Update applies a multi-path write.
	Update(ctx context.Context, values map[string]any) error
}

// Pinger is implemented by stores backed by a network service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter is implemented by stores that can describe their
// connection state, such as pool statistics, alongside a ping.
type HealthReporter interface {
	HealthDetails(ctx context.Context) (map[string]any, error)
}
