package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	TypeJoin      MessageType = "join"
	TypeLogin     MessageType = "login"
	TypeLeave     MessageType = "leave"
	TypeOffer     MessageType = "offer"
	TypeAnswer    MessageType = "answer"
	TypeCandidate MessageType = "candidate"

	// server to client only
	TypeUsers     MessageType = "users"
	TypeRoomUsers MessageType = "room-users"
	TypeError     MessageType = "error"
)

// Message is the single wire envelope for both directions. Which fields are
// set depends on Type and on the relay topology.
type Message struct {
	Type      MessageType     `json:"type"`
	RoomID    RoomID          `json:"roomId,omitempty"`
	Target    string          `json:"target,omitempty"`
	From      string          `json:"from,omitempty"`
	Username  string          `json:"username,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Users     []string        `json:"users,omitempty"`
	Count     int             `json:"count,omitempty"`
	Replay    bool            `json:"replay,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// IsSignal reports whether the message carries a negotiation payload that the
// relay forwards.
func (m Message) IsSignal() bool {
	switch m.Type {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}

// Payload returns the negotiation payload matching the message type.
func (m Message) Payload() json.RawMessage {
	switch m.Type {
	case TypeOffer:
		return m.Offer
	case TypeAnswer:
		return m.Answer
	case TypeCandidate:
		return m.Candidate
	}
	return nil
}

// Validate checks the fields the relay needs for routing. Payload contents are
// never inspected here.
func (m Message) Validate(t Topology) error {
	switch m.Type {
	case TypeJoin:
		if t == TopologyRoom && m.RoomID.IsZero() {
			return fmt.Errorf("%w: join without roomId", ErrMalformed)
		}
		if t == TopologyBroadcast && m.Username == "" {
			return fmt.Errorf("%w: join without username", ErrMalformed)
		}
	case TypeLogin:
		if m.Username == "" {
			return fmt.Errorf("%w: login without username", ErrMalformed)
		}
	case TypeLeave:
		if t == TopologyBroadcast {
			return fmt.Errorf("%w: %s", ErrUnsupportedMessage, m.Type)
		}
	case TypeOffer, TypeAnswer, TypeCandidate:
		if isAbsent(m.Payload()) {
			return fmt.Errorf("%w: %s without %s field", ErrMalformed, m.Type, m.Type)
		}
	case "":
		return fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
	}
	return nil
}

// Forwarded builds the copy of a signal delivered to the other peers.
func (m Message) Forwarded(from string) Message {
	return Message{
		Type:      m.Type,
		RoomID:    m.RoomID,
		Target:    m.Target,
		From:      from,
		Offer:     m.Offer,
		Answer:    m.Answer,
		Candidate: m.Candidate,
	}
}

func NewUsersMessage(users []string) Message {
	return Message{Type: TypeUsers, Users: users}
}

// MarshalJSON always emits the roster of a users message, even when empty.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire Message
	if m.Type != TypeUsers {
		return json.Marshal(wire(m))
	}
	users := m.Users
	if users == nil {
		users = []string{}
	}
	return json.Marshal(struct {
		wire
		Users []string `json:"users"`
	}{wire(m), users})
}

func NewRoomUsersMessage(room RoomID, count int) Message {
	return Message{Type: TypeRoomUsers, RoomID: room, Count: count}
}

func NewErrorMessage(err error) Message {
	return Message{Type: TypeError, Error: err.Error()}
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
