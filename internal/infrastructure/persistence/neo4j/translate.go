package neo4j

import (
	"errors"
	"fmt"
	"sort"

	"github.com/armstrong-haulage/community-hub/internal/domain/social"
	"github.com/armstrong-haulage/community-hub/pkg/pathtree"
)

// ══════════════════════════════════════════════════════════════════════════════
// PATH TRANSLATION
// A multi-path update addresses the document layout. Here both directions of
// an edge map to one FOLLOWS relationship. Stats leaves map to properties of
// the User node, profile leaves to properties prefixed with "profile_".
// ══════════════════════════════════════════════════════════════════════════════

// ErrUnsupportedPath is returned for paths outside the social graph layout.
var ErrUnsupportedPath = errors.New("neo4j: unsupported path")

// Statement is one Cypher query with its parameters.
type Statement struct {
	Cypher string
	Params map[string]any
}

const (
	mergeEdgeCypher = `MERGE (a:User {id: $from})
MERGE (b:User {id: $to})
MERGE (a)-[r:FOLLOWS]->(b)
SET r.followedAt = $followedAt`

	deleteEdgeCypher = `MATCH (:User {id: $from})-[r:FOLLOWS]->(:User {id: $to})
DELETE r`

	deleteEdgeSetCypher = `MATCH (u:User {id: $id})
OPTIONAL MATCH (u)-[r:FOLLOWS]->()
DELETE r`

	deleteReverseEdgeSetCypher = `MATCH (u:User {id: $id})
OPTIONAL MATCH (u)<-[r:FOLLOWS]-()
DELETE r`

	setPropsCypher = `MERGE (u:User {id: $id})
SET u += $props`

	deleteUserCypher = `MATCH (u:User {id: $id})
DETACH DELETE u`
)

// edgeKey identifies a FOLLOWS relationship.
type edgeKey struct{ from, to string }

// translation accumulates statements while walking an update.
type translation struct {
	putEdges map[edgeKey]string
	delEdges map[edgeKey]struct{}
	props    map[string]map[string]any
	clears   []Statement
}

// Translate converts update into Cypher statements for one write
// transaction. Deletes run before merges and property sets.
func Translate(update social.MultiPathUpdate) ([]Statement, error) {
	t := &translation{
		putEdges: make(map[edgeKey]string),
		delEdges: make(map[edgeKey]struct{}),
		props:    make(map[string]map[string]any),
	}
	paths := update.Paths()
	sort.Strings(paths)
	for _, p := range paths {
		segs, err := pathtree.Split(p)
		if err != nil {
			return nil, err
		}
		if err := t.add(segs, update[p]); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return t.statements(), nil
}

func (t *translation) add(segs []string, value any) error {
	if len(segs) < 2 || segs[0] != social.UsersRoot {
		return ErrUnsupportedPath
	}
	user := segs[1]

	switch {
	case len(segs) == 2:
		if value != nil {
			return fmt.Errorf("%w: user node can only be deleted", ErrUnsupportedPath)
		}
		t.clears = append(t.clears, Statement{Cypher: deleteUserCypher, Params: map[string]any{"id": user}})
		return nil

	case segs[2] == social.StatsKey:
		return t.addStats(user, segs[3:], value)

	case segs[2] == social.ProfileKey:
		return t.addProfile(user, segs[3:], value)

	case segs[2] == social.FollowingKey || segs[2] == social.FollowersKey:
		return t.addEdge(user, segs[2], segs[3:], value)
	}
	return ErrUnsupportedPath
}

// userProps returns the pending property set of user.
func (t *translation) userProps(user string) map[string]any {
	props, ok := t.props[user]
	if !ok {
		props = make(map[string]any)
		t.props[user] = props
	}
	return props
}

func (t *translation) addStats(user string, rest []string, value any) error {
	props := t.userProps(user)

	switch len(rest) {
	case 0:
		// Whole stats node: fields missing from value are removed.
		m, _ := value.(map[string]any)
		if value != nil && m == nil {
			return fmt.Errorf("%w: stats must be an object", ErrUnsupportedPath)
		}
		for _, f := range []string{social.FieldFollowers, social.FieldFollowing, social.FieldViews} {
			props[f] = nil
			if v, ok := m[f]; ok {
				n, ok := pathtree.Int64(v)
				if !ok {
					return fmt.Errorf("%w: stats/%s must be an integer", ErrUnsupportedPath, f)
				}
				props[f] = n
			}
		}
		return nil

	case 1:
		if !isStatsField(rest[0]) {
			return ErrUnsupportedPath
		}
		if value == nil {
			props[rest[0]] = nil
			return nil
		}
		n, ok := pathtree.Int64(value)
		if !ok {
			return fmt.Errorf("%w: stats/%s must be an integer", ErrUnsupportedPath, rest[0])
		}
		props[rest[0]] = n
		return nil
	}
	return ErrUnsupportedPath
}

func (t *translation) addProfile(user string, rest []string, value any) error {
	props := t.userProps(user)

	switch len(rest) {
	case 0:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: profile must be an object", ErrUnsupportedPath)
		}
		for k, v := range m {
			if !isScalar(v) {
				return fmt.Errorf("%w: profile/%s must be a scalar", ErrUnsupportedPath, k)
			}
			props[profileProp(k)] = v
		}
		return nil

	case 1:
		if value != nil && !isScalar(value) {
			return fmt.Errorf("%w: profile/%s must be a scalar", ErrUnsupportedPath, rest[0])
		}
		props[profileProp(rest[0])] = value
		return nil
	}
	return ErrUnsupportedPath
}

func profileProp(field string) string {
	return social.ProfileKey + "_" + field
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float64:
		return true
	}
	return false
}

func (t *translation) addEdge(user, direction string, rest []string, value any) error {
	if len(rest) == 0 {
		if value != nil {
			return fmt.Errorf("%w: edge sets can only be deleted", ErrUnsupportedPath)
		}
		cypher := deleteEdgeSetCypher
		if direction == social.FollowersKey {
			cypher = deleteReverseEdgeSetCypher
		}
		t.clears = append(t.clears, Statement{Cypher: cypher, Params: map[string]any{"id": user}})
		return nil
	}

	key := edgeKey{from: user, to: rest[0]}
	if direction == social.FollowersKey {
		key = edgeKey{from: rest[0], to: user}
	}

	var followedAt any
	switch len(rest) {
	case 1:
		if value == nil {
			t.delEdges[key] = struct{}{}
			return nil
		}
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: edge must be an object", ErrUnsupportedPath)
		}
		followedAt = m[social.FollowedAtKey]
	case 2:
		if rest[1] != social.FollowedAtKey {
			return ErrUnsupportedPath
		}
		if value == nil {
			t.delEdges[key] = struct{}{}
			return nil
		}
		followedAt = value
	default:
		return ErrUnsupportedPath
	}

	s, ok := followedAt.(string)
	if !ok {
		return fmt.Errorf("%w: followedAt must be a string", ErrUnsupportedPath)
	}
	t.putEdges[key] = s
	return nil
}

func (t *translation) statements() []Statement {
	out := append([]Statement(nil), t.clears...)

	for _, k := range sortedEdges(t.delEdges) {
		if _, put := t.putEdges[k]; put {
			continue
		}
		out = append(out, Statement{Cypher: deleteEdgeCypher, Params: map[string]any{"from": k.from, "to": k.to}})
	}

	puts := make(map[edgeKey]struct{}, len(t.putEdges))
	for k := range t.putEdges {
		puts[k] = struct{}{}
	}
	for _, k := range sortedEdges(puts) {
		out = append(out, Statement{Cypher: mergeEdgeCypher, Params: map[string]any{
			"from": k.from, "to": k.to, "followedAt": t.putEdges[k],
		}})
	}

	users := make([]string, 0, len(t.props))
	for u := range t.props {
		users = append(users, u)
	}
	sort.Strings(users)
	for _, u := range users {
		out = append(out, Statement{Cypher: setPropsCypher, Params: map[string]any{"id": u, "props": t.props[u]}})
	}
	return out
}

func sortedEdges(set map[edgeKey]struct{}) []edgeKey {
	out := make([]edgeKey, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].from != out[j].from {
			return out[i].from < out[j].from
		}
		return out[i].to < out[j].to
	})
	return out
}

func isStatsField(name string) bool {
	switch name {
	case social.FieldFollowers, social.FieldFollowing, social.FieldViews:
		return true
	}
	return false
}
