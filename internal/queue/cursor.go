package queue

import (
	"fmt"
	"strconv"
	"strings"
)

// Cursors encode the (created_at, id) of the last row in a page, joined
// by a colon. The id tiebreak matters because rows from the same batch
// Enqueue share a created_at value; ordering and filtering on the pair
// instead of created_at alone keeps every tied row reachable across
// pages. An empty cursor means "start from the beginning".
func encodeCursor(createdAt int64, id string) string {
	if createdAt == 0 && id == "" {
		return ""
	}
	return strconv.FormatInt(createdAt, 10) + ":" + id
}

func decodeCursor(cursor string) (int64, string, error) {
	if cursor == "" {
		return 0, "", nil
	}
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("queue: malformed cursor %q", cursor)
	}
	createdAt, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("queue: malformed cursor %q: %w", cursor, err)
	}
	return createdAt, parts[1], nil
}
