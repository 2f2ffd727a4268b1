package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const ChatLabel = "chat"

var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

var ErrNoDataChannel = errors.New("data channel not open")

type Config struct {
	Name       string
	Room       domain.RoomID
	ICEServers []string
	Policy     AcceptPolicy
	// Broadcast talks to a server running the broadcast topology: the session
	// logs in instead of joining a room and addresses the remote peer by name.
	Broadcast bool
	// Target is the peer to call in broadcast mode.
	Target string
}

// Session negotiates one peer connection through a Signaler and exchanges
// chat frames over a data channel.
type Session struct {
	cfg Config
	sig *Signaler
	log zerolog.Logger

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	remote  string
	queue   candidateQueue
	pending Pending

	frames   chan Frame
	opened   chan struct{}
	openOnce sync.Once
}

func NewSession(sig *Signaler, cfg Config) *Session {
	if cfg.Policy == nil {
		cfg.Policy = AutoDecline
	}
	return &Session{
		cfg:    cfg,
		sig:    sig,
		log:    log.With().Str("name", cfg.Name).Logger(),
		remote: cfg.Target,
		frames: make(chan Frame, 32),
		opened: make(chan struct{}),
	}
}

// Join announces the session to the server.
func (s *Session) Join() error {
	if s.cfg.Broadcast {
		return s.sig.Send(domain.Message{Type: domain.TypeLogin, Username: s.cfg.Name})
	}
	return s.sig.Send(domain.Message{Type: domain.TypeJoin, RoomID: s.cfg.Room, Username: s.cfg.Name})
}

// Call creates the data channel and publishes an offer.
func (s *Session) Call() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, err := s.peerConnection()
	if err != nil {
		return err
	}

	dc, err := pc.CreateDataChannel(ChatLabel, nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	s.setupDataChannel(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	raw, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	s.log.Info().Str("room_id", s.cfg.Room.String()).Msg("Calling")
	return s.sig.Send(s.outgoing(domain.Message{Type: domain.TypeOffer, Offer: raw}))
}

// Run handles signaling messages until ctx ends or the server goes away.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-s.sig.Incoming():
			if !ok {
				return errors.New("signaling connection closed")
			}
			if err := s.handle(msg); err != nil {
				s.log.Warn().Err(err).Str("type", string(msg.Type)).Msg("Failed to handle signal")
			}
		}
	}
}

func (s *Session) handle(msg domain.Message) error {
	switch msg.Type {
	case domain.TypeOffer:
		return s.handleOffer(msg)
	case domain.TypeAnswer:
		return s.handleAnswer(msg)
	case domain.TypeCandidate:
		return s.handleCandidate(msg)
	case domain.TypeRoomUsers:
		s.log.Info().Int("count", msg.Count).Str("room_id", msg.RoomID.String()).Msg("Room members changed")
	case domain.TypeUsers:
		s.log.Info().Strs("users", msg.Users).Msg("Online users")
	case domain.TypeError:
		s.log.Warn().Str("error", msg.Error).Msg("Server rejected message")
	}
	return nil
}

func (s *Session) handleOffer(msg domain.Message) error {
	if err := s.pending.Offer(msg); err != nil {
		return err
	}
	if !s.cfg.Policy(msg.From) {
		_, err := s.pending.Decline()
		s.log.Info().Str("from", msg.From).Msg("Declined call")
		return err
	}
	offerMsg, err := s.pending.Accept()
	if err != nil {
		return err
	}

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerMsg.Offer, &offer); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Broadcast {
		s.remote = offerMsg.From
	}
	pc, err := s.peerConnection()
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if err := s.queue.flush(pc.AddICECandidate); err != nil {
		s.log.Warn().Err(err).Msg("Failed to apply queued candidate")
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	raw, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	s.log.Info().Str("from", offerMsg.From).Msg("Accepted call")
	return s.sig.Send(s.outgoing(domain.Message{Type: domain.TypeAnswer, Answer: raw}))
}

func (s *Session) handleAnswer(msg domain.Message) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Answer, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pc == nil {
		return errors.New("answer without a call in progress")
	}
	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.log.Info().Str("from", msg.From).Msg("Call answered")
	return s.queue.flush(s.pc.AddICECandidate)
}

func (s *Session) handleCandidate(msg domain.Message) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(msg.Candidate, &c); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pc == nil || s.pc.RemoteDescription() == nil {
		s.queue.push(c)
		return nil
	}
	return s.pc.AddICECandidate(c)
}

// peerConnection returns the session's connection, creating it on first use.
// Callers hold s.mu.
func (s *Session) peerConnection() (*webrtc.PeerConnection, error) {
	if s.pc != nil {
		return s.pc, nil
	}

	var servers []webrtc.ICEServer
	if len(s.cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: s.cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		s.mu.Lock()
		msg := s.outgoing(domain.Message{Type: domain.TypeCandidate, Candidate: raw})
		s.mu.Unlock()
		if err := s.sig.Send(msg); err != nil {
			s.log.Debug().Err(err).Msg("Failed to send candidate")
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Info().Str("state", state.String()).Msg("Peer connection state changed")
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChatLabel {
			return
		}
		s.mu.Lock()
		s.setupDataChannel(dc)
		s.mu.Unlock()
	})

	s.pc = pc
	return pc, nil
}

// setupDataChannel wires frame decoding. Callers hold s.mu.
func (s *Session) setupDataChannel(dc *webrtc.DataChannel) {
	s.dc = dc
	dc.OnOpen(func() {
		s.log.Info().Msg("Data channel opened")
		s.openOnce.Do(func() { close(s.opened) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		f, err := DecodeFrame(msg.Data)
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to decode frame")
			return
		}
		select {
		case s.frames <- f:
		default:
			s.log.Warn().Msg("Frame buffer full, dropping message")
		}
	})
}

// outgoing fills in the routing fields. Callers hold s.mu.
func (s *Session) outgoing(msg domain.Message) domain.Message {
	if s.cfg.Broadcast {
		msg.Target = s.remote
		return msg
	}
	msg.RoomID = s.cfg.Room
	return msg
}

func (s *Session) SendText(text string) error {
	s.mu.Lock()
	dc := s.dc
	s.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNoDataChannel
	}
	data, err := EncodeFrame(Frame{From: s.cfg.Name, Text: text, SentAt: time.Now()})
	if err != nil {
		return err
	}
	return dc.Send(data)
}

func (s *Session) Frames() <-chan Frame {
	return s.frames
}

// Opened is closed once the chat data channel is usable.
func (s *Session) Opened() <-chan struct{} {
	return s.opened
}

func (s *Session) CallState() domain.CallState {
	return s.pending.State()
}

// Negotiated reports whether both descriptions are in place.
func (s *Session) Negotiated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pc != nil && s.pc.SignalingState() == webrtc.SignalingStateStable && s.pc.RemoteDescription() != nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()

	s.sig.Close()
	if pc == nil {
		return nil
	}
	return pc.Close()
}
