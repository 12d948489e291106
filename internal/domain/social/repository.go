package social

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Узкий контракт хранилища, от которого зависит логика подписок.
// Реализации находятся в infrastructure/persistence.
//
// Ни одна реализация не держит блокировок между вызовами: проверка
// существования ребра и запись выполняются разными обращениями к хранилищу.
// ══════════════════════════════════════════════════════════════════════════════

// MultiPathUpdate: одно логическое обновление нескольких путей дерева.
// Значение nil удаляет путь. Пути не должны быть предками друг друга.
type MultiPathUpdate map[string]any

// Paths возвращает пути обновления (порядок не определён).
func (u MultiPathUpdate) Paths() []string {
	out := make([]string, 0, len(u))
	for p := range u {
		out = append(out, p)
	}
	return out
}

// GraphRepository определяет операции, нужные командам и запросам графа.
type GraphRepository interface {
	// UserExists сообщает, есть ли в хранилище запись пользователя.
	UserExists(ctx context.Context, id UserID) (bool, error)

	// GetUserStats возвращает счётчики пользователя.
	// found == false, если узел stats отсутствует (счётчики тогда нулевые).
	GetUserStats(ctx context.Context, id UserID) (stats Stats, found bool, err error)

	// EdgeExists проверяет наличие ребра users/{follower}/following/{following}.
	EdgeExists(ctx context.Context, followerID, followingID UserID) (bool, error)

	// WriteMultiPath применяет обновление одним запросом к хранилищу.
	// Атомарность зависит от реализации; откат частичной записи не выполняется.
	WriteMultiPath(ctx context.Context, update MultiPathUpdate) error
}

// EdgeReader: чтение множеств рёбер для списков и сверки.
type EdgeReader interface {
	// ListFollowing возвращает исходящие рёбра пользователя.
	ListFollowing(ctx context.Context, id UserID) ([]Edge, error)

	// ListFollowers возвращает входящие рёбра пользователя.
	ListFollowers(ctx context.Context, id UserID) ([]Edge, error)
}

// Repository объединяет оба контракта.
type Repository interface {
	GraphRepository
	EdgeReader
}
