package domain

import (
	"github.com/google/uuid"
)

type ConnID uuid.UUID

func NewConnID() ConnID {
	return ConnID(uuid.New())
}

func ParseConnID(s string) (ConnID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ConnID{}, err
	}
	return ConnID(id), nil
}

func (id ConnID) String() string {
	return uuid.UUID(id).String()
}

// RoomID is chosen by the clients; any non-empty string is valid.
type RoomID string

func (id RoomID) String() string {
	return string(id)
}

func (id RoomID) IsZero() bool {
	return id == ""
}
