package marketplace

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errBadCursor = errors.New("malformed cursor")

// Cursor is the last-seen sort key of a page.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode renders the cursor as base64url("<createdAtMillis>:<id>").
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d:%s", c.CreatedAt.UnixMilli(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by Encode.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return Cursor{}, errBadCursor
	}
	millis, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return Cursor{}, errBadCursor
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil || ms < 0 {
		return Cursor{}, errBadCursor
	}
	return Cursor{CreatedAt: time.UnixMilli(ms).UTC(), ID: id}, nil
}
