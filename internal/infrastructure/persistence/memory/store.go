// Package memory provides an in-process document tree. It backs local
// development, the admin CLI's scratch mode and the test suites.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/armstrong-haulage/community-hub/pkg/pathtree"
)

// FaultFunc lets tests fail individual store calls. op is one of
// "get", "exists", "keys", "update".
type FaultFunc func(op, path string) error

// Store is a nested-map document tree guarded by a RWMutex.
// A single Update is applied under one lock, so it is atomic.
type Store struct {
	mu    sync.RWMutex
	root  map[string]any
	fault FaultFunc
}

// NewStore creates an empty tree.
func NewStore() *Store {
	return &Store{root: make(map[string]any)}
}

// NewStoreWithRoot creates a tree over an existing backing map.
// The map is owned by the store afterwards.
func NewStoreWithRoot(root map[string]any) *Store {
	if root == nil {
		root = make(map[string]any)
	}
	return &Store{root: root}
}

// SetFault installs a fault hook; nil removes it.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

func (s *Store) check(op, path string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op, path)
}

// Get implements document.Store.
func (s *Store) Get(ctx context.Context, path string) (any, error) {
	segs, err := pathtree.Split(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("get", path); err != nil {
		return nil, err
	}
	return deepCopy(lookup(s.root, segs)), nil
}

// Exists implements document.Store.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	segs, err := pathtree.Split(path)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("exists", path); err != nil {
		return false, err
	}
	return lookup(s.root, segs) != nil, nil
}

// Keys implements document.Store.
func (s *Store) Keys(ctx context.Context, path string) ([]string, error) {
	segs, err := pathtree.Split(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("keys", path); err != nil {
		return nil, err
	}
	node, ok := lookup(s.root, segs).(map[string]any)
	if !ok {
		return []string{}, nil
	}
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Update implements document.Store.
func (s *Store) Update(ctx context.Context, values map[string]any) error {
	clean, paths, err := pathtree.CleanUpdate(values)
	if err != nil {
		return err
	}
	normalized := make(map[string]any, len(clean))
	for p, v := range clean {
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("memory: %s: %w", p, err)
		}
		normalized[p] = nv
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range paths {
		if err := s.check("update", p); err != nil {
			return err
		}
	}
	for _, p := range paths {
		segs, _ := pathtree.Split(p)
		if normalized[p] == nil {
			remove(s.root, segs)
			continue
		}
		assign(s.root, segs, normalized[p])
	}
	return nil
}

// Snapshot returns a deep copy of the whole tree.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.root).(map[string]any)
}

// ═══════════════════════════════════════════════════════════════════════════
// Tree helpers
// ═══════════════════════════════════════════════════════════════════════════

func lookup(node map[string]any, segs []string) any {
	var cur any = node
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[s]
		if !ok {
			return nil
		}
	}
	return cur
}

func assign(root map[string]any, segs []string, value any) {
	node := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := node[s].(map[string]any)
		if !ok {
			// Missing, or a leaf being replaced by a subtree.
			next = make(map[string]any)
			node[s] = next
		}
		node = next
	}
	node[segs[len(segs)-1]] = value
}

// remove deletes the node at segs and prunes parents left empty.
func remove(node map[string]any, segs []string) bool {
	if len(segs) == 1 {
		delete(node, segs[0])
		return len(node) == 0
	}
	child, ok := node[segs[0]].(map[string]any)
	if !ok {
		return false
	}
	if remove(child, segs[1:]) {
		delete(node, segs[0])
	}
	return len(node) == 0
}

// normalize canonicalizes leaves and drops nil children and empty maps.
// It returns nil when nothing remains.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			if err := pathtree.ValidateKey(k); err != nil {
				return nil, err
			}
			nc, err := normalize(child)
			if err != nil {
				return nil, err
			}
			if nc != nil {
				out[k] = nc
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	default:
		return pathtree.NormalizeLeaf(v)
	}
}

func deepCopy(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, child := range m {
		out[k] = deepCopy(child)
	}
	return out
}
