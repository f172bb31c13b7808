// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LogCursor is the pagination position within a day's activity ledger.
type LogCursor struct {
	StartedAt time.Time
	EntryID   int64
}

// EncodeLogCursor serialises the cursor to a string token.
func EncodeLogCursor(c *LogCursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%s|%d", c.StartedAt.UTC().Format(time.RFC3339Nano), c.EntryID)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeLogCursor parses the encoded cursor token.
func DecodeLogCursor(token string) (*LogCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor entry id")
	}
	return &LogCursor{StartedAt: ts, EntryID: id}, nil
}
