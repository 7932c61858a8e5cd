package feed

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/GetStream/party-engagement/party"
)

// A Cursor anchors a page boundary to the last item of the previous page.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// CursorOf returns the cursor pointing at item.
func CursorOf(item party.FeedItem) *Cursor {
	return &Cursor{Timestamp: item.Timestamp, ID: item.ID}
}

// After reports whether item sorts strictly after the cursor in feed order,
// that is whether it belongs to a page following the cursor.
func (c Cursor) After(item party.FeedItem) bool {
	return party.FeedItem{ID: c.ID, Timestamp: c.Timestamp}.Before(item)
}

// String encodes the cursor as an opaque token.
func (c Cursor) String() string {
	raw := strconv.FormatInt(c.Timestamp.UnixNano(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token returned by Cursor.String. An empty token is a
// nil cursor, the start of the feed.
func ParseCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, party.NewValidationError("Cursor", "malformed token: %v", err)
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, party.NewValidationError("Cursor", "malformed token")
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, party.NewValidationError("Cursor", "malformed timestamp: %v", err)
	}
	return &Cursor{Timestamp: time.Unix(0, nanos).UTC(), ID: id}, nil
}

