package social

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PLANNING
// Чистые функции: по прочитанному состоянию строят одно multi-path
// обновление. Счётчики пишутся отдельными листьями stats/{field}, поэтому
// прочие поля узла stats сохраняются (merge, а не replace).
// ══════════════════════════════════════════════════════════════════════════════

// PlanFollow строит обновление для подписки follower → following.
// Оба направления ребра получают одну и ту же метку followedAt.
func PlanFollow(
	followerID, followingID UserID,
	followerStats, followingStats StatsSnapshot,
	followedAt string,
) (MultiPathUpdate, Counts) {
	counts := Counts{
		FollowerCount:  followingStats.Stats.Followers + 1,
		FollowingCount: followerStats.Stats.Following + 1,
	}

	update := MultiPathUpdate{
		FollowingPath(followerID, followingID): map[string]any{FollowedAtKey: followedAt},
		FollowersPath(followingID, followerID): map[string]any{FollowedAtKey: followedAt},
	}
	followingStats.apply(update, followingID, FieldFollowers, counts.FollowerCount)
	followerStats.apply(update, followerID, FieldFollowing, counts.FollowingCount)

	return update, counts
}

// PlanUnfollow строит обновление для отписки. Счётчики не уходят ниже нуля.
func PlanUnfollow(
	followerID, followingID UserID,
	followerStats, followingStats StatsSnapshot,
) (MultiPathUpdate, Counts) {
	counts := Counts{
		FollowerCount:  decrement(followingStats.Stats.Followers),
		FollowingCount: decrement(followerStats.Stats.Following),
	}

	update := MultiPathUpdate{
		FollowingPath(followerID, followingID): nil,
		FollowersPath(followingID, followerID): nil,
	}
	followingStats.apply(update, followingID, FieldFollowers, counts.FollowerCount)
	followerStats.apply(update, followerID, FieldFollowing, counts.FollowingCount)

	return update, counts
}

// PlanView строит обновление для просмотра профиля: views + 1.
func PlanView(userID UserID, current StatsSnapshot) (MultiPathUpdate, int64) {
	views := current.Stats.Views + 1
	update := MultiPathUpdate{}
	current.apply(update, userID, FieldViews, views)
	return update, views
}

// PlanStatsInit строит обновление, создающее нулевые счётчики.
func PlanStatsInit(userID UserID) MultiPathUpdate {
	return MultiPathUpdate{
		StatsFieldPath(userID, FieldFollowers): int64(0),
		StatsFieldPath(userID, FieldFollowing): int64(0),
		StatsFieldPath(userID, FieldViews):     int64(0),
	}
}

// StatsSnapshot: прочитанные счётчики и признак наличия узла stats.
type StatsSnapshot struct {
	Stats Stats
	Found bool
}

// apply записывает изменённый счётчик. Если узла stats не было,
// остальные счётчики создаются со значениями по умолчанию.
func (s StatsSnapshot) apply(update MultiPathUpdate, id UserID, field string, value int64) {
	if !s.Found {
		for _, f := range []string{FieldFollowers, FieldFollowing, FieldViews} {
			if _, ok := update[StatsFieldPath(id, f)]; !ok {
				update[StatsFieldPath(id, f)] = s.Stats.field(f)
			}
		}
	}
	update[StatsFieldPath(id, field)] = value
}

func (s Stats) field(name string) int64 {
	switch name {
	case FieldFollowers:
		return s.Followers
	case FieldFollowing:
		return s.Following
	case FieldViews:
		return s.Views
	}
	return 0
}

func decrement(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// PlanRegister создаёт профиль пользователя. Счётчики не трогает:
// они появятся при первом чтении или первой подписке.
func PlanRegister(userID UserID, createdAt string) MultiPathUpdate {
	return MultiPathUpdate{ProfileFieldPath(userID, CreatedAtKey): createdAt}
}
