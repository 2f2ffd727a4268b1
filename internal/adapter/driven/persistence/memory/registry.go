package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/core/port"
)

type entry struct {
	conn   domain.Connection
	client port.Client
}

type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*entry
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[domain.ConnID]*entry),
	}
}

// Register adds the client with no identity and no room. Registering an ID
// twice keeps the original entry.
func (r *ConnectionRegistry) Register(c port.Client) domain.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[c.ID()]; ok {
		return e.conn
	}
	e := &entry{conn: domain.Connection{ID: c.ID()}, client: c}
	r.conns[c.ID()] = e
	return e.conn
}

// Unregister removes the connection and returns the room it was in, if any.
func (r *ConnectionRegistry) Unregister(id domain.ConnID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return "", false
	}
	delete(r.conns, id)
	return e.conn.RoomID, e.conn.InRoom()
}

func (r *ConnectionRegistry) Get(id domain.ConnID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, false
	}
	return e.conn, true
}

func (r *ConnectionRegistry) Client(id domain.ConnID) (port.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// SetIdentity sets the display name once. Repeating the same name is harmless.
// Names are unique among live connections so targeted signals resolve to one peer.
func (r *ConnectionRegistry) SetIdentity(id domain.ConnID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownConnection, id)
	}
	if e.conn.Identity != "" && e.conn.Identity != name {
		return fmt.Errorf("%w: %q != %q", domain.ErrIdentityConflict, e.conn.Identity, name)
	}
	for other, o := range r.conns {
		if other != id && o.conn.Identity == name {
			return fmt.Errorf("%w: %q", domain.ErrIdentityTaken, name)
		}
	}
	e.conn.Identity = name
	return nil
}

// SetRoom records the connection's current room. An empty room clears it.
func (r *ConnectionRegistry) SetRoom(id domain.ConnID, room domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownConnection, id)
	}
	e.conn.RoomID = room
	return nil
}

func (r *ConnectionRegistry) FindByIdentity(name string) (domain.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, e := range r.conns {
		if e.conn.Identity == name {
			return id, true
		}
	}
	return domain.ConnID{}, false
}

// Identities returns the sorted roster of named connections.
func (r *ConnectionRegistry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.conns))
	for _, e := range r.conns {
		if e.conn.Identity != "" {
			names = append(names, e.conn.Identity)
		}
	}
	sort.Strings(names)
	return names
}

func (r *ConnectionRegistry) All() []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ConnID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
