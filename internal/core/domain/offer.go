package domain

import (
	"encoding/json"
	"time"
)

// CachedOffer is the latest unanswered offer published in a room, kept so a
// peer joining later can still receive it.
type CachedOffer struct {
	RoomID   RoomID
	Payload  json.RawMessage
	From     ConnID
	FromName string
	StoredAt time.Time
}

func (o CachedOffer) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(o.StoredAt) >= ttl
}

// ReplayMessage is the unicast sent to a late joiner.
func (o CachedOffer) ReplayMessage() Message {
	return Message{
		Type:   TypeOffer,
		RoomID: o.RoomID,
		From:   o.FromName,
		Offer:  o.Payload,
		Replay: true,
	}
}
