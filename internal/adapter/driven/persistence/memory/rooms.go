package memory

import (
	"sync"

	"github.com/Wyydra/duet/internal/core/domain"
)

// RoomDirectory maps rooms to member sets. A room exists only while it has
// members: it is created by the first Join and deleted by the last Leave.
type RoomDirectory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.ConnID]struct{}
}

func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		rooms: make(map[domain.RoomID]map[domain.ConnID]struct{}),
	}
}

func (d *RoomDirectory) Join(room domain.RoomID, id domain.ConnID) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.rooms[room]
	if !ok {
		members = make(map[domain.ConnID]struct{})
		d.rooms[room] = members
	}
	members[id] = struct{}{}
	return len(members)
}

// Leave returns the remaining member count; 0 means the room is gone.
func (d *RoomDirectory) Leave(room domain.RoomID, id domain.ConnID) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.rooms[room]
	if !ok {
		return 0
	}
	delete(members, id)
	if len(members) == 0 {
		delete(d.rooms, room)
		return 0
	}
	return len(members)
}

// Members lists the room's connections other than exclude.
func (d *RoomDirectory) Members(room domain.RoomID, exclude domain.ConnID) []domain.ConnID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := d.rooms[room]
	out := make([]domain.ConnID, 0, len(members))
	for id := range members {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

func (d *RoomDirectory) IsMember(room domain.RoomID, id domain.ConnID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.rooms[room][id]
	return ok
}

func (d *RoomDirectory) Count(room domain.RoomID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms[room])
}

func (d *RoomDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}
