// Package pagination implements keyset paging over (timestamp, id) pairs,
// optionally refined by a sequence number. Cursors are opaque to clients.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last row of the previous page. Rows are walked
// newest first by (At, ID, Seq). Seq is zero for tables without one.
type Cursor struct {
	At  time.Time
	ID  uuid.UUID
	Seq int64
}

var errMalformed = errors.New("malformed cursor")

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer is the row count to fetch so a following page can be detected.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(c Cursor) string {
	raw := c.At.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	if c.Seq != 0 {
		raw += "|" + strconv.FormatInt(c.Seq, 10)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a cursor string. A blank value means the first page
// and yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, errMalformed
	}
	at, id := parts[0], parts[1]
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", errMalformed, err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", errMalformed, err)
	}
	cursor := &Cursor{At: ts.UTC(), ID: uid}
	if len(parts) == 3 {
		seq, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || seq <= 0 {
			return nil, fmt.Errorf("%w: sequence", errMalformed)
		}
		cursor.Seq = seq
	}
	return cursor, nil
}

// Trim cuts rows fetched with LimitWithBuffer down to limit and returns the
// cursor for the next page, or "" when rows was the final page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(key(rows[len(rows)-1]))
}
