package party

import (
	"fmt"
	"time"
)

// A FeedItem is an immutable entry of the party activity feed.
type FeedItem struct {
	ID        string
	PartyID   string
	Timestamp time.Time
	Payload   Payload
}

// Before reports whether a sorts after b in feed order: newer items come
// first and equal timestamps are broken by descending ID.
func (a FeedItem) Before(b FeedItem) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

// PayloadKind identifies the concrete type of a Payload.
type PayloadKind string

const (
	PayloadComment PayloadKind = "comment"
	PayloadStatus  PayloadKind = "status"
	PayloadDrink   PayloadKind = "drink"
	PayloadMedia   PayloadKind = "media"
)

// PayloadKinds lists every payload kind in a fixed order.
var PayloadKinds = []PayloadKind{PayloadComment, PayloadStatus, PayloadDrink, PayloadMedia}

// Payload is the content of a feed item. It is implemented only by Comment,
// StatusPosted, DrinkLogged and MediaAdded.
type Payload interface {
	Kind() PayloadKind
	payload()
}

// Comment is a text comment on the party.
type Comment struct {
	UserID string
	Text   string
}

// StatusPosted records that a user posted a status update.
type StatusPosted struct {
	UserID  string
	Type    StatusType
	Level   int
	Message string
}

// DrinkLogged records a drink a guest logged.
type DrinkLogged struct {
	UserID string
	Drink  string
	Count  int
}

// MediaAdded records an uploaded photo or video. URL is the opaque location
// returned by the media service.
type MediaAdded struct {
	UserID  string
	MediaID string
	URL     string
	Caption string
}

func (Comment) Kind() PayloadKind      { return PayloadComment }
func (StatusPosted) Kind() PayloadKind { return PayloadStatus }
func (DrinkLogged) Kind() PayloadKind  { return PayloadDrink }
func (MediaAdded) Kind() PayloadKind   { return PayloadMedia }

func (Comment) payload()      {}
func (StatusPosted) payload() {}
func (DrinkLogged) payload()  {}
func (MediaAdded) payload()   {}

// DecodePayload decodes a payload of the given kind. decode unmarshals into
// the pointer it is passed, for example a closure over json.Unmarshal.
func DecodePayload(kind PayloadKind, decode func(v any) error) (Payload, error) {
	switch kind {
	case PayloadComment:
		var p Comment
		err := decode(&p)
		return p, err
	case PayloadStatus:
		var p StatusPosted
		err := decode(&p)
		return p, err
	case PayloadDrink:
		var p DrinkLogged
		err := decode(&p)
		return p, err
	case PayloadMedia:
		var p MediaAdded
		err := decode(&p)
		return p, err
	}
	return nil, fmt.Errorf("unknown payload kind %q", kind)
}
