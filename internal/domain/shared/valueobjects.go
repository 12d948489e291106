package shared

import (
	"strings"
	"unicode"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies a community member. It is used verbatim as a key
// in the document tree, so it must be a valid path segment.
type UserID string

// MaxUserIDLength bounds identifiers so keys stay within backend limits.
const MaxUserIDLength = 128

// forbiddenKeyChars are rejected in tree keys by realtime document stores.
const forbiddenKeyChars = "/.#$[]"

// IsValid checks if the user ID can be used as a tree key.
func (u UserID) IsValid() bool {
	s := string(u)
	if s == "" || len(s) > MaxUserIDLength {
		return false
	}
	if strings.ContainsAny(s, forbiddenKeyChars) {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID trims and validates a raw identifier.
func NewUserID(raw string) (UserID, error) {
	id := UserID(strings.TrimSpace(raw))
	if id.IsEmpty() {
		return "", ErrEmptyUserID
	}
	if !id.IsValid() {
		return "", ErrInvalidUserID
	}
	return id, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents limit/offset parameters for edge listings.
type Pagination struct {
	Offset int
	Limit  int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// NewPagination creates a new Pagination with defaults and bounds applied.
func NewPagination(offset, limit int) Pagination {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return Pagination{Offset: offset, Limit: limit}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(0, DefaultPageSize)
}

// Window returns the [start, end) slice bounds for a collection of size n.
func (p Pagination) Window(n int) (int, int) {
	start := p.Offset
	if start > n {
		start = n
	}
	end := start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}
