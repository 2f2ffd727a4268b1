package port

import (
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
)

type ConnectionRegistry interface {
	Register(c Client) domain.Connection
	Unregister(id domain.ConnID) (domain.RoomID, bool)
	Get(id domain.ConnID) (domain.Connection, bool)
	Client(id domain.ConnID) (Client, bool)
	SetIdentity(id domain.ConnID, name string) error
	SetRoom(id domain.ConnID, room domain.RoomID) error
	FindByIdentity(name string) (domain.ConnID, bool)
	Identities() []string
	All() []domain.ConnID
	Len() int
}

type RoomDirectory interface {
	Join(room domain.RoomID, id domain.ConnID) int
	Leave(room domain.RoomID, id domain.ConnID) int
	Members(room domain.RoomID, exclude domain.ConnID) []domain.ConnID
	IsMember(room domain.RoomID, id domain.ConnID) bool
	Count(room domain.RoomID) int
	Len() int
}

type OfferCache interface {
	Put(offer domain.CachedOffer)
	Get(room domain.RoomID) (domain.CachedOffer, bool)
	Clear(room domain.RoomID)
	Sweep(now time.Time) int
	Len() int
}
