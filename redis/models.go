package redis

import (
	"fmt"
	"time"

	"github.com/GetStream/party-engagement/party"
	"github.com/vmihailenco/msgpack/v5"
)

// A feedItem is a feed item as stored in a sorted set member.
type feedItem struct {
	ID        string             `msgpack:"id"`
	PartyID   string             `msgpack:"party_id"`
	Kind      string             `msgpack:"kind"`
	Timestamp int64              `msgpack:"ts"`
	Payload   msgpack.RawMessage `msgpack:"payload"`
}

func encodeFeedItem(item party.FeedItem) (string, error) {
	payload, err := msgpack.Marshal(item.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	b, err := msgpack.Marshal(&feedItem{
		ID:        item.ID,
		PartyID:   item.PartyID,
		Kind:      string(item.Payload.Kind()),
		Timestamp: item.Timestamp.UnixNano(),
		Payload:   payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal feed item: %w", err)
	}
	return string(b), nil
}

func decodeFeedItem(member string) (party.FeedItem, error) {
	var m feedItem
	if err := msgpack.Unmarshal([]byte(member), &m); err != nil {
		return party.FeedItem{}, fmt.Errorf("unmarshal feed item: %w", err)
	}
	payload, err := party.DecodePayload(party.PayloadKind(m.Kind), func(v any) error {
		return msgpack.Unmarshal(m.Payload, v)
	})
	if err != nil {
		return party.FeedItem{}, fmt.Errorf("feed item %s: %w", m.ID, err)
	}
	return party.FeedItem{
		ID:        m.ID,
		PartyID:   m.PartyID,
		Timestamp: time.Unix(0, m.Timestamp).UTC(),
		Payload:   payload,
	}, nil
}
