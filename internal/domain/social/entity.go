// Package social содержит доменную модель социального графа сообщества:
// подписки (рёбра following/followers) и денормализованные счётчики профиля.
//
// Данные лежат в иерархическом дереве документов:
//
//	users/{id}/following/{otherId}/followedAt
//	users/{id}/followers/{otherId}/followedAt
//	users/{id}/stats/{followers|following|views}
//
// Счётчики хранятся рядом с рёбрами, но не выводятся из них транзакционно:
// расхождение счётчика и мощности множества является известным свойством модели.
package social

import (
	"sort"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/pkg/pathtree"
)

// UserID: идентификатор участника сообщества.
type UserID = shared.UserID

// ══════════════════════════════════════════════════════════════════════════════
// PATH LAYOUT
// ══════════════════════════════════════════════════════════════════════════════

// Ключи дерева документов.
const (
	UsersRoot      = "users"
	FollowingKey   = "following"
	FollowersKey   = "followers"
	StatsKey       = "stats"
	ProfileKey     = "profile"
	FollowedAtKey  = "followedAt"
	CreatedAtKey   = "createdAt"
	FieldFollowers = "followers"
	FieldFollowing = "following"
	FieldViews     = "views"
)

// UserPath возвращает корень поддерева пользователя.
func UserPath(id UserID) string {
	return pathtree.Join(UsersRoot, id.String())
}

// FollowingPath: ребро "follower подписан на following" со стороны подписчика.
func FollowingPath(followerID, followingID UserID) string {
	return pathtree.Join(UsersRoot, followerID.String(), FollowingKey, followingID.String())
}

// FollowersPath: то же ребро со стороны того, на кого подписались.
func FollowersPath(followingID, followerID UserID) string {
	return pathtree.Join(UsersRoot, followingID.String(), FollowersKey, followerID.String())
}

// FollowingSetPath: множество исходящих рёбер пользователя.
func FollowingSetPath(id UserID) string {
	return pathtree.Join(UsersRoot, id.String(), FollowingKey)
}

// FollowersSetPath: множество входящих рёбер пользователя.
func FollowersSetPath(id UserID) string {
	return pathtree.Join(UsersRoot, id.String(), FollowersKey)
}

// StatsPath: узел счётчиков пользователя.
func StatsPath(id UserID) string {
	return pathtree.Join(UsersRoot, id.String(), StatsKey)
}

// ProfileFieldPath: поле профиля; наличие профиля делает пользователя существующим.
func ProfileFieldPath(id UserID, field string) string {
	return pathtree.Join(UsersRoot, id.String(), ProfileKey, field)
}

// StatsFieldPath: отдельный счётчик.
func StatsFieldPath(id UserID, field string) string {
	return pathtree.Join(UsersRoot, id.String(), StatsKey, field)
}

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Stats: денормализованные счётчики профиля.
type Stats struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
	Views     int64 `json:"views"`
}

// StatsFromNode читает счётчики из узла stats. Отсутствующие или
// нечисловые поля считаются нулём.
func StatsFromNode(node any) Stats {
	m, ok := node.(map[string]any)
	if !ok {
		return Stats{}
	}
	var s Stats
	s.Followers, _ = pathtree.Int64(m[FieldFollowers])
	s.Following, _ = pathtree.Int64(m[FieldFollowing])
	s.Views, _ = pathtree.Int64(m[FieldViews])
	return s
}

// Edge: направленная подписка с временем создания.
type Edge struct {
	UserID     UserID `json:"userId"`
	FollowedAt string `json:"followedAt"`
}

// EdgesFromNode читает множество рёбер (following или followers).
func EdgesFromNode(node any) []Edge {
	m, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	edges := make([]Edge, 0, len(m))
	for id, v := range m {
		e := Edge{UserID: UserID(id)}
		if attrs, ok := v.(map[string]any); ok {
			e.FollowedAt, _ = attrs[FollowedAtKey].(string)
		}
		edges = append(edges, e)
	}
	SortEdges(edges)
	return edges
}

// SortEdges упорядочивает рёбра: сначала новые, при равенстве по id.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FollowedAt != edges[j].FollowedAt {
			return edges[i].FollowedAt > edges[j].FollowedAt
		}
		return edges[i].UserID < edges[j].UserID
	})
}

// Counts: значения счётчиков после подписки или отписки.
// FollowerCount относится к тому, на кого подписываются,
// FollowingCount относится к подписчику.
type Counts struct {
	FollowerCount  int64 `json:"followerCount"`
	FollowingCount int64 `json:"followingCount"`
}

// Audit: сверка счётчиков пользователя с фактическими рёбрами.
type Audit struct {
	UserID          UserID   `json:"userId"`
	Stats           Stats    `json:"stats"`
	StatsPresent    bool     `json:"statsPresent"`
	ActualFollowers int64    `json:"actualFollowers"`
	ActualFollowing int64    `json:"actualFollowing"`
	FollowersDrift  int64    `json:"followersDrift"`
	FollowingDrift  int64    `json:"followingDrift"`
	Asymmetric      []string `json:"asymmetricEdges"`
}

// Consistent сообщает, что счётчики совпадают с рёбрами и все рёбра симметричны.
func (a Audit) Consistent() bool {
	return a.FollowersDrift == 0 && a.FollowingDrift == 0 && len(a.Asymmetric) == 0
}
