package domain

// Connection is the relay's view of one live transport session.
type Connection struct {
	ID       ConnID
	Identity string
	RoomID   RoomID
}

// Name is how the connection is presented to other peers in the "from" field.
func (c Connection) Name() string {
	if c.Identity != "" {
		return c.Identity
	}
	return c.ID.String()
}

func (c Connection) InRoom() bool {
	return !c.RoomID.IsZero()
}
