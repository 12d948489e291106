// Package pathtree implements the slash-separated keyspace shared by every
// document tree backend: path validation, flattening of nested values into
// leaves and back, and the overlap rule for multi-path updates.
//
// A tree value is either a leaf (string, bool, number) or a map[string]any
// of child nodes. Backends that persist leaves individually (SQL tables,
// Redis hashes) use Flatten on write and Unflatten on read.
package pathtree

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Separator delimits path segments.
const Separator = "/"

// ForbiddenKeyChars may not appear inside a single key.
const ForbiddenKeyChars = ".#$[]"

var (
	// ErrInvalidPath is returned for empty paths or malformed segments.
	ErrInvalidPath = errors.New("pathtree: invalid path")
	// ErrOverlappingPaths is returned when one update path is an ancestor of another.
	ErrOverlappingPaths = errors.New("pathtree: overlapping paths in update")
)

// Split validates a path and returns its segments.
// Leading and trailing separators are ignored.
func Split(path string) ([]string, error) {
	trimmed := strings.Trim(path, Separator)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %q is empty", ErrInvalidPath, path)
	}
	segs := strings.Split(trimmed, Separator)
	for _, s := range segs {
		if err := ValidateKey(s); err != nil {
			return nil, fmt.Errorf("%w in %q", err, path)
		}
	}
	return segs, nil
}

// Clean validates a path and returns it in canonical form.
func Clean(path string) (string, error) {
	segs, err := Split(path)
	if err != nil {
		return "", err
	}
	return strings.Join(segs, Separator), nil
}

// ValidateKey checks a single segment.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if strings.ContainsAny(key, ForbiddenKeyChars) {
		return fmt.Errorf("%w: segment %q contains one of %q", ErrInvalidPath, key, ForbiddenKeyChars)
	}
	return nil
}

// Join concatenates segments with the separator.
func Join(segs ...string) string {
	return strings.Join(segs, Separator)
}

// IsAncestor reports whether a is a strict ancestor of b. Both must be clean.
func IsAncestor(a, b string) bool {
	return len(b) > len(a) && strings.HasPrefix(b, a) && b[len(a)] == '/'
}

// Within reports whether p equals root or lies below it.
func Within(root, p string) bool {
	return p == root || IsAncestor(root, p)
}

// Ancestors returns the strict ancestors of a clean path, nearest last.
func Ancestors(path string) []string {
	var out []string
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			out = append(out, path[:i])
		}
	}
	return out
}

// CleanUpdate canonicalizes the keys of a multi-path update and rejects
// updates where one path is an ancestor of (or equal to) another.
func CleanUpdate(values map[string]any) (map[string]any, []string, error) {
	out := make(map[string]any, len(values))
	for p, v := range values {
		c, err := Clean(p)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := out[c]; dup {
			return nil, nil, fmt.Errorf("%w: %q given twice", ErrOverlappingPaths, c)
		}
		out[c] = v
	}
	paths := make([]string, 0, len(out))
	for p := range out {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	// After sorting, an ancestor always precedes its descendants, but not
	// necessarily immediately ("a/b" < "a/b-x" < "a/b/c").
	for i := range paths {
		for j := i + 1; j < len(paths); j++ {
			if !strings.HasPrefix(paths[j], paths[i]) {
				break
			}
			if IsAncestor(paths[i], paths[j]) {
				return nil, nil, fmt.Errorf("%w: %q contains %q", ErrOverlappingPaths, paths[i], paths[j])
			}
		}
	}
	return out, paths, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Flatten / Unflatten
// ═══════════════════════════════════════════════════════════════════════════

// Flatten expands a value written at prefix into leaf paths.
// Nil values and empty maps produce no leaves.
func Flatten(prefix string, value any) (map[string]any, error) {
	out := make(map[string]any)
	if err := flatten(prefix, value, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, value any, out map[string]any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range v {
			if err := ValidateKey(k); err != nil {
				return err
			}
			if err := flatten(prefix+Separator+k, child, out); err != nil {
				return err
			}
		}
		return nil
	default:
		leaf, err := NormalizeLeaf(v)
		if err != nil {
			return fmt.Errorf("pathtree: %s: %w", prefix, err)
		}
		out[prefix] = leaf
		return nil
	}
}

// NormalizeLeaf converts supported scalar types into their canonical form:
// string, bool, int64 or float64.
func NormalizeLeaf(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported leaf type %T", v)
	}
}

// Unflatten rebuilds the subtree rooted at root from leaves keyed by full path.
// Leaves outside root are ignored. It returns nil when nothing lies under root.
func Unflatten(root string, leaves map[string]any) any {
	if v, ok := leaves[root]; ok {
		return v
	}
	var tree map[string]any
	for p, v := range leaves {
		if !IsAncestor(root, p) {
			continue
		}
		if tree == nil {
			tree = make(map[string]any)
		}
		segs := strings.Split(p[len(root)+1:], Separator)
		node := tree
		for _, s := range segs[:len(segs)-1] {
			next, ok := node[s].(map[string]any)
			if !ok {
				next = make(map[string]any)
				node[s] = next
			}
			node = next
		}
		node[segs[len(segs)-1]] = v
	}
	if tree == nil {
		return nil
	}
	return tree
}

// ChildKeys returns the distinct direct child keys of root among leaf paths, sorted.
func ChildKeys(root string, leaves []string) []string {
	seen := make(map[string]struct{})
	for _, p := range leaves {
		if !IsAncestor(root, p) {
			continue
		}
		rest := p[len(root)+1:]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		seen[rest] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaf coercion
// ═══════════════════════════════════════════════════════════════════════════

// Int64 coerces a numeric leaf into an int64. Strings holding integers are
// accepted since some clients store counters as text.
func Int64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(x), true
	case float32:
		return int64(x), true
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		if f, err := x.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// EncodeLeaf serializes a leaf for text storage.
func EncodeLeaf(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeLeaf parses a leaf serialized by EncodeLeaf. Numbers come back as
// int64 when integral, float64 otherwise.
func DecodeLeaf(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("pathtree: decode leaf: %w", err)
	}
	return NormalizeLeaf(v)
}

// EscapeLike escapes a path for use as a literal prefix in SQL LIKE with ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaf-table write plans
// ═══════════════════════════════════════════════════════════════════════════

// WritePlan is a multi-path update expressed as operations on a table of
// leaves keyed by full path. Apply Clear, then DropLeaves, then Put.
type WritePlan struct {
	// Clear lists subtree roots whose leaves (the root itself included) are deleted.
	Clear []string
	// DropLeaves lists ancestor paths that may hold a leaf which would
	// otherwise shadow a newly written subtree.
	DropLeaves []string
	// Put maps leaf paths to their encoded values.
	Put map[string]string
}

// PlanWrite converts a multi-path update into a WritePlan.
func PlanWrite(values map[string]any) (*WritePlan, error) {
	cleaned, paths, err := CleanUpdate(values)
	if err != nil {
		return nil, err
	}

	plan := &WritePlan{
		Clear: paths,
		Put:   make(map[string]string),
	}
	drop := make(map[string]struct{})
	for _, p := range paths {
		leaves, err := Flatten(p, cleaned[p])
		if err != nil {
			return nil, err
		}
		if len(leaves) > 0 {
			for _, a := range Ancestors(p) {
				drop[a] = struct{}{}
			}
		}
		for lp, v := range leaves {
			enc, err := EncodeLeaf(v)
			if err != nil {
				return nil, err
			}
			plan.Put[lp] = enc
		}
	}
	for a := range drop {
		plan.DropLeaves = append(plan.DropLeaves, a)
	}
	sort.Strings(plan.DropLeaves)
	return plan, nil
}

// PutPaths returns the keys of Put, sorted.
func (p *WritePlan) PutPaths() []string {
	out := make([]string, 0, len(p.Put))
	for k := range p.Put {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SubtreePattern returns the LIKE pattern matching strict descendants of root.
func SubtreePattern(root string) string {
	return EscapeLike(root) + Separator + "%"
}

// SubtreeRange returns bounds [lo, hi) that contain exactly the strict
// descendants of root under byte-wise ordering.
func SubtreeRange(root string) (lo, hi string) {
	return root + Separator, root + string(rune(Separator[0]+1))
}
