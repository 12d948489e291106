package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/armstrong-haulage/community-hub/pkg/pathtree"
)

// ══════════════════════════════════════════════════════════════════════════════
// TREE STORE
// Each bucket (the first two path segments, e.g. users/alice) is one hash.
// Hash fields are the remaining path relative to the bucket; values are JSON
// leaves. A leaf stored at the bucket path itself uses bucketRootField.
// ══════════════════════════════════════════════════════════════════════════════

const (
	bucketDepth     = 2
	bucketRootField = "."
	scanBatch       = 200
)

// TreeStore implements document.Store on Redis hashes.
//
// Update watches every touched bucket and applies the write in one
// MULTI/EXEC. A concurrent change to a watched bucket aborts the write with
// ErrConcurrentUpdate; it is not retried here.
type TreeStore struct {
	client redis.UniversalClient
	prefix string
}

// NewTreeStore creates a TreeStore. keyPrefix namespaces all keys; empty
// means DefaultKeyPrefix.
func NewTreeStore(client redis.UniversalClient, keyPrefix string) *TreeStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &TreeStore{client: client, prefix: keyPrefix + treeKeyspace}
}

// Ping implements document.Pinger.
func (s *TreeStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get implements document.Store.
func (s *TreeStore) Get(ctx context.Context, path string) (any, error) {
	root, err := pathtree.Clean(path)
	if err != nil {
		return nil, err
	}
	raw, err := s.readLeaves(ctx, root)
	if err != nil {
		return nil, err
	}

	leaves := make(map[string]any, len(raw))
	for p, enc := range raw {
		v, err := pathtree.DecodeLeaf(enc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSerialization, p, err)
		}
		leaves[p] = v
	}
	return pathtree.Unflatten(root, leaves), nil
}

// Exists implements document.Store.
func (s *TreeStore) Exists(ctx context.Context, path string) (bool, error) {
	root, err := pathtree.Clean(path)
	if err != nil {
		return false, err
	}
	raw, err := s.readLeaves(ctx, root)
	if err != nil {
		return false, err
	}
	return len(raw) > 0, nil
}

// Keys implements document.Store.
func (s *TreeStore) Keys(ctx context.Context, path string) ([]string, error) {
	root, err := pathtree.Clean(path)
	if err != nil {
		return nil, err
	}
	raw, err := s.readLeaves(ctx, root)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(raw))
	for p := range raw {
		paths = append(paths, p)
	}
	return pathtree.ChildKeys(root, paths), nil
}

// Update implements document.Store.
func (s *TreeStore) Update(ctx context.Context, values map[string]any) error {
	plan, err := pathtree.PlanWrite(values)
	if err != nil {
		return err
	}
	writes, err := groupByBucket(plan)
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	buckets := sortedBuckets(writes)
	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = s.key(b)
	}

	txf := func(tx *redis.Tx) error {
		existing := make(map[string][]string)
		for _, b := range buckets {
			if w := writes[b]; w.Drop || len(w.Prefixes) == 0 {
				continue
			}
			fields, err := tx.HKeys(ctx, s.key(b)).Result()
			if err != nil {
				return fmt.Errorf("redis: read %s: %w", b, err)
			}
			existing[b] = fields
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, b := range buckets {
				w := writes[b]
				key := s.key(b)
				if w.Drop {
					pipe.Del(ctx, key)
				}
				if del := w.Deletions(existing[b]); len(del) > 0 {
					pipe.HDel(ctx, key, del...)
				}
				if args := w.SetArgs(); len(args) > 0 {
					pipe.HSet(ctx, key, args...)
				}
			}
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	if err != nil {
		return fmt.Errorf("redis: update: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// readLeaves returns encoded leaves at or below root keyed by full path.
func (s *TreeStore) readLeaves(ctx context.Context, root string) (map[string]string, error) {
	if bucket, _, ok := locate(root); ok {
		out := make(map[string]string)
		if err := s.collectBucket(ctx, bucket, root, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	buckets, err := s.scanBuckets(ctx, root)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, b := range buckets {
		if err := s.collectBucket(ctx, b, root, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *TreeStore) collectBucket(ctx context.Context, bucket, root string, out map[string]string) error {
	fields, err := s.client.HGetAll(ctx, s.key(bucket)).Result()
	if err != nil {
		return fmt.Errorf("redis: read %s: %w", bucket, err)
	}
	for field, enc := range fields {
		if p := fieldPath(bucket, field); pathtree.Within(root, p) {
			out[p] = enc
		}
	}
	return nil
}

// scanBuckets lists the buckets below a path shallower than bucketDepth.
func (s *TreeStore) scanBuckets(ctx context.Context, root string) ([]string, error) {
	pattern := s.prefix + EscapeGlob(root) + pathtree.Separator + "*"

	var buckets []string
	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		bucket := strings.TrimPrefix(iter.Val(), s.prefix)
		if _, _, ok := locate(bucket); ok {
			buckets = append(buckets, bucket)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan %s: %w", root, err)
	}
	sort.Strings(buckets)
	return buckets, nil
}

func (s *TreeStore) key(bucket string) string {
	return s.prefix + bucket
}

// ──────────────────────────────────────────────────────────────────────────────
// Write planning
// ──────────────────────────────────────────────────────────────────────────────

// bucketWrite is the part of a WritePlan that lands in one hash.
type bucketWrite struct {
	// Drop deletes the whole hash before anything else.
	Drop bool
	// Prefixes are fields whose subtree (field and field/...) is cleared.
	Prefixes []string
	// Del are exact fields to delete.
	Del []string
	// Set maps fields to encoded leaves.
	Set map[string]string
}

// Deletions resolves Prefixes against the fields currently in the hash and
// merges them with Del. The result is sorted and free of duplicates.
func (w *bucketWrite) Deletions(existing []string) []string {
	seen := make(map[string]struct{})
	for _, f := range w.Del {
		seen[f] = struct{}{}
	}
	for _, f := range existing {
		for _, p := range w.Prefixes {
			if f == p || strings.HasPrefix(f, p+pathtree.Separator) {
				seen[f] = struct{}{}
				break
			}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// SetArgs returns field/value pairs for HSET in field order.
func (w *bucketWrite) SetArgs() []any {
	fields := make([]string, 0, len(w.Set))
	for f := range w.Set {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	args := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		args = append(args, f, w.Set[f])
	}
	return args
}

// groupByBucket splits a plan by bucket. Writes above bucket depth are
// rejected since they would span an unbounded set of hashes.
func groupByBucket(plan *pathtree.WritePlan) (map[string]*bucketWrite, error) {
	writes := make(map[string]*bucketWrite)
	get := func(bucket string) *bucketWrite {
		w, ok := writes[bucket]
		if !ok {
			w = &bucketWrite{Set: make(map[string]string)}
			writes[bucket] = w
		}
		return w
	}

	for _, root := range plan.Clear {
		bucket, field, ok := locate(root)
		if !ok {
			return nil, fmt.Errorf("%w: %q is above bucket depth", pathtree.ErrInvalidPath, root)
		}
		w := get(bucket)
		if field == bucketRootField {
			w.Drop = true
			continue
		}
		w.Prefixes = append(w.Prefixes, field)
	}
	for _, p := range plan.DropLeaves {
		// Nothing is ever stored above a bucket.
		if bucket, field, ok := locate(p); ok {
			w := get(bucket)
			w.Del = append(w.Del, field)
		}
	}
	for p, enc := range plan.Put {
		bucket, field, _ := locate(p)
		get(bucket).Set[field] = enc
	}
	return writes, nil
}

func sortedBuckets(writes map[string]*bucketWrite) []string {
	out := make([]string, 0, len(writes))
	for b := range writes {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// locate splits a clean path into its bucket and the field inside it.
// ok is false for paths shallower than bucketDepth.
func locate(clean string) (bucket, field string, ok bool) {
	segs := strings.SplitN(clean, pathtree.Separator, bucketDepth+1)
	if len(segs) < bucketDepth {
		return "", "", false
	}
	bucket = segs[0] + pathtree.Separator + segs[1]
	if len(segs) == bucketDepth {
		return bucket, bucketRootField, true
	}
	return bucket, segs[bucketDepth], true
}

// fieldPath is the inverse of locate.
func fieldPath(bucket, field string) string {
	if field == bucketRootField {
		return bucket
	}
	return bucket + pathtree.Separator + field
}

// EscapeGlob escapes the SCAN MATCH metacharacters in s.
func EscapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
