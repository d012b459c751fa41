// Package pagination provides opaque cursor pagination for list endpoints.
// Transaction histories grow without bound, so offset paging would skip or
// repeat entries as new rows land; cursors anchor on (created_at, id) instead.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned by Decode for tokens that are not valid
// cursors, including well-formed tokens from a different ordering scheme.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a position in a result set ordered by creation time with ID as
// the tie-breaker.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode returns an opaque cursor token for the given position.
func Encode(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", createdAt.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor token. Empty input yields a nil cursor,
// meaning start from the beginning.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		ID:        parts[1],
	}, nil
}

// After reports whether an item at (createdAt, id) sorts after the cursor.
func (c *Cursor) After(createdAt time.Time, id string) bool {
	if createdAt.After(c.CreatedAt) {
		return true
	}
	return createdAt.Equal(c.CreatedAt) && id > c.ID
}

// Page takes items fetched with limit+1, trims to the limit, and returns the
// next cursor when more remain. extractKey yields (createdAt, id) of an item.
func Page[T any](items []T, limit int, extractKey func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	createdAt, id := extractKey(items[len(items)-1])
	return items, Encode(createdAt, id), true
}
