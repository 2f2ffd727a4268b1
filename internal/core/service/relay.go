package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Topology domain.Topology
	// Validator, when set, checks offer/answer/candidate payloads before relaying.
	Validator port.PayloadValidator
	// Nack sends an error message back to the sender of a dropped message.
	Nack bool
	// SweepEvery is the offer cache expiry interval; 0 disables sweeping.
	SweepEvery time.Duration
}

type Stats struct {
	Topology    domain.Topology `json:"topology"`
	Connections int             `json:"connections"`
	Rooms       int             `json:"rooms"`
	Offers      int             `json:"offers"`
}

type inbound struct {
	from domain.ConnID
	msg  domain.Message
}

// Relay routes signaling messages between connections. All state changes
// happen on the goroutine running Run, one event at a time.
type Relay struct {
	opts     Options
	registry port.ConnectionRegistry
	rooms    port.RoomDirectory
	offers   port.OfferCache

	register   chan port.Client
	unregister chan domain.ConnID
	inbound    chan inbound
	quit       chan struct{}
	stopOnce   sync.Once
}

func NewRelay(registry port.ConnectionRegistry, rooms port.RoomDirectory, offers port.OfferCache, opts Options) *Relay {
	if opts.Topology == "" {
		opts.Topology = domain.TopologyRoom
	}
	return &Relay{
		opts:       opts,
		registry:   registry,
		rooms:      rooms,
		offers:     offers,
		register:   make(chan port.Client),
		unregister: make(chan domain.ConnID),
		inbound:    make(chan inbound),
		quit:       make(chan struct{}),
	}
}

func (r *Relay) Topology() domain.Topology {
	return r.opts.Topology
}

func (r *Relay) Register(c port.Client) {
	select {
	case r.register <- c:
	case <-r.quit:
	}
}

func (r *Relay) Unregister(id domain.ConnID) {
	select {
	case r.unregister <- id:
	case <-r.quit:
	}
}

// Submit hands a message read from a connection to the relay loop.
func (r *Relay) Submit(from domain.ConnID, msg domain.Message) {
	select {
	case r.inbound <- inbound{from: from, msg: msg}:
	case <-r.quit:
	}
}

func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
	})
}

func (r *Relay) Stats() Stats {
	return Stats{
		Topology:    r.opts.Topology,
		Connections: r.registry.Len(),
		Rooms:       r.rooms.Len(),
		Offers:      r.offers.Len(),
	}
}

func (r *Relay) Run() {
	var sweep <-chan time.Time
	if r.opts.SweepEvery > 0 {
		ticker := time.NewTicker(r.opts.SweepEvery)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-r.quit:
			log.Info().Int("count", r.registry.Len()).Msg("Stopping relay. Disconnecting all clients.")
			for _, id := range r.registry.All() {
				if c, ok := r.registry.Client(id); ok {
					if err := c.Close(); err != nil {
						log.Error().Err(err).Str("conn_id", id.String()).Msg("Error closing client connection")
					}
				}
				r.registry.Unregister(id)
			}
			return

		case c := <-r.register:
			r.handleRegister(c)

		case id := <-r.unregister:
			r.handleUnregister(id)

		case in := <-r.inbound:
			if err := r.handleMessage(in.from, in.msg); err != nil {
				r.reject(in.from, in.msg, err)
			}

		case now := <-sweep:
			if n := r.offers.Sweep(now); n > 0 {
				log.Debug().Int("count", n).Msg("Expired cached offers")
			}
		}
	}
}

func (r *Relay) handleRegister(c port.Client) {
	r.registry.Register(c)
	log.Info().Int("count", r.registry.Len()).Str("conn_id", c.ID().String()).Msg("Client registered")
}

func (r *Relay) handleUnregister(id domain.ConnID) {
	conn, ok := r.registry.Get(id)
	if !ok {
		return
	}
	r.registry.Unregister(id)
	log.Info().Int("count", r.registry.Len()).Str("conn_id", id.String()).Msg("Client unregistered")

	switch r.opts.Topology {
	case domain.TopologyRoom:
		if conn.InRoom() {
			r.leaveRoom(id, conn.RoomID)
		}
	case domain.TopologyBroadcast:
		if conn.Identity != "" {
			r.broadcastRoster()
		}
	}
}

func (r *Relay) handleMessage(from domain.ConnID, msg domain.Message) error {
	conn, ok := r.registry.Get(from)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownConnection, from)
	}
	if err := msg.Validate(r.opts.Topology); err != nil {
		return err
	}
	if err := r.validatePayload(msg); err != nil {
		return err
	}

	switch msg.Type {
	case domain.TypeLogin:
		return r.login(conn, msg.Username)
	case domain.TypeJoin:
		if r.opts.Topology == domain.TopologyBroadcast {
			return r.login(conn, msg.Username)
		}
		return r.join(conn, msg)
	case domain.TypeLeave:
		return r.leave(conn, msg)
	}

	if r.opts.Topology == domain.TopologyBroadcast {
		return r.relayBroadcast(conn, msg)
	}
	return r.relayRoom(conn, msg)
}

func (r *Relay) validatePayload(msg domain.Message) error {
	v := r.opts.Validator
	if v == nil || !msg.IsSignal() {
		return nil
	}
	var err error
	if msg.Type == domain.TypeCandidate {
		err = v.ValidateCandidate(msg.Candidate)
	} else {
		err = v.ValidateDescription(string(msg.Type), msg.Payload())
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return nil
}

func (r *Relay) login(conn domain.Connection, name string) error {
	if err := r.registry.SetIdentity(conn.ID, name); err != nil {
		return err
	}
	log.Info().Str("conn_id", conn.ID.String()).Str("username", name).Msg("Client logged in")

	if r.opts.Topology == domain.TopologyBroadcast {
		r.broadcastRoster()
	}
	return nil
}

func (r *Relay) join(conn domain.Connection, msg domain.Message) error {
	room := msg.RoomID

	if msg.Username != "" {
		if err := r.registry.SetIdentity(conn.ID, msg.Username); err != nil {
			return err
		}
	}

	if conn.RoomID == room && r.rooms.IsMember(room, conn.ID) {
		log.Debug().Str("conn_id", conn.ID.String()).Str("room_id", room.String()).Msg("Client already in room")
		return nil
	}
	if conn.InRoom() {
		r.leaveRoom(conn.ID, conn.RoomID)
	}

	count := r.rooms.Join(room, conn.ID)
	if err := r.registry.SetRoom(conn.ID, room); err != nil {
		return err
	}
	log.Info().Int("count", count).Str("conn_id", conn.ID.String()).Str("room_id", room.String()).Msg("Client joined room")

	r.notifyRoom(room, count)

	if offer, ok := r.offers.Get(room); ok && offer.From != conn.ID {
		log.Debug().Str("conn_id", conn.ID.String()).Str("room_id", room.String()).Msg("Replaying cached offer")
		r.send(conn.ID, offer.ReplayMessage())
	}
	return nil
}

func (r *Relay) leave(conn domain.Connection, msg domain.Message) error {
	room := msg.RoomID
	if room.IsZero() {
		room = conn.RoomID
	}
	if room.IsZero() || room != conn.RoomID || !r.rooms.IsMember(room, conn.ID) {
		return fmt.Errorf("%w: room %q", domain.ErrNotMember, room)
	}

	if err := r.registry.SetRoom(conn.ID, ""); err != nil {
		return err
	}
	r.leaveRoom(conn.ID, room)
	return nil
}

// leaveRoom removes id from room and tells whoever is left.
func (r *Relay) leaveRoom(id domain.ConnID, room domain.RoomID) {
	count := r.rooms.Leave(room, id)
	l := log.With().Str("conn_id", id.String()).Str("room_id", room.String()).Logger()
	if count == 0 {
		l.Info().Msg("Room deleted")
		return
	}
	l.Info().Int("count", count).Msg("Client left room")
	r.notifyRoom(room, count)
}

func (r *Relay) relayRoom(conn domain.Connection, msg domain.Message) error {
	room := msg.RoomID
	if room.IsZero() {
		room = conn.RoomID
	}
	if room.IsZero() || !r.rooms.IsMember(room, conn.ID) {
		return fmt.Errorf("%w: room %q", domain.ErrNotMember, room)
	}
	msg.RoomID = room

	targets := r.rooms.Members(room, conn.ID)
	if msg.Target != "" {
		id, ok := r.registry.FindByIdentity(msg.Target)
		if !ok || id == conn.ID || !r.rooms.IsMember(room, id) {
			return fmt.Errorf("%w: %q in room %q", domain.ErrUnknownTarget, msg.Target, room)
		}
		targets = []domain.ConnID{id}
	}

	switch msg.Type {
	case domain.TypeOffer:
		r.offers.Put(domain.CachedOffer{
			RoomID:   room,
			Payload:  msg.Offer,
			From:     conn.ID,
			FromName: conn.Name(),
		})
	case domain.TypeAnswer:
		// any answer settles the room's pending offer
		r.offers.Clear(room)
	}

	r.forward(conn, msg, targets)
	return nil
}

func (r *Relay) relayBroadcast(conn domain.Connection, msg domain.Message) error {
	var targets []domain.ConnID
	if msg.Target != "" {
		id, ok := r.registry.FindByIdentity(msg.Target)
		if !ok || id == conn.ID {
			return fmt.Errorf("%w: %q", domain.ErrUnknownTarget, msg.Target)
		}
		targets = []domain.ConnID{id}
	} else {
		for _, id := range r.registry.All() {
			if id != conn.ID {
				targets = append(targets, id)
			}
		}
	}

	r.forward(conn, msg, targets)
	return nil
}

func (r *Relay) forward(conn domain.Connection, msg domain.Message, targets []domain.ConnID) {
	log.Debug().
		Str("conn_id", conn.ID.String()).
		Str("room_id", msg.RoomID.String()).
		Str("type", string(msg.Type)).
		Int("targets", len(targets)).
		Msg("Relaying signal")

	out := msg.Forwarded(conn.Name())
	for _, id := range targets {
		r.send(id, out)
	}
}

func (r *Relay) notifyRoom(room domain.RoomID, count int) {
	msg := domain.NewRoomUsersMessage(room, count)
	for _, id := range r.rooms.Members(room, domain.ConnID{}) {
		r.send(id, msg)
	}
}

func (r *Relay) broadcastRoster() {
	msg := domain.NewUsersMessage(r.registry.Identities())
	for _, id := range r.registry.All() {
		r.send(id, msg)
	}
}

// send is fire-and-forget. A client that cannot take the message is closed;
// its reader then unregisters it.
func (r *Relay) send(id domain.ConnID, msg domain.Message) {
	c, ok := r.registry.Client(id)
	if !ok {
		return
	}
	if err := c.Send(msg); err != nil {
		log.Error().Err(err).Str("conn_id", id.String()).Str("type", string(msg.Type)).Msg("Error sending message")
		c.Close()
	}
}

func (r *Relay) reject(from domain.ConnID, msg domain.Message, err error) {
	level := zerolog.WarnLevel
	switch {
	case errors.Is(err, domain.ErrNotMember), errors.Is(err, domain.ErrUnknownTarget):
		level = zerolog.DebugLevel
	case errors.Is(err, domain.ErrUnknownConnection):
		level = zerolog.ErrorLevel
	}
	log.WithLevel(level).Err(err).Str("conn_id", from.String()).Str("type", string(msg.Type)).Msg("Dropped message")

	if r.opts.Nack {
		r.send(from, domain.NewErrorMessage(err))
	}
}
