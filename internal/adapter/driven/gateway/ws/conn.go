package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed    = errors.New("connection closed")
	ErrQueueFull = errors.New("send queue full")
)

type Config struct {
	// WriteWait is the time allowed to write a message to the peer.
	WriteWait time.Duration
	// PongWait is the time allowed to read the next pong from the peer.
	PongWait time.Duration
	// PingPeriod must be less than PongWait.
	PingPeriod      time.Duration
	MaxMessageBytes int64
	QueueSize       int
}

func DefaultConfig() Config {
	pongWait := 60 * time.Second
	return Config{
		WriteWait:       10 * time.Second,
		PongWait:        pongWait,
		PingPeriod:      (pongWait * 9) / 10,
		MaxMessageBytes: 64 * 1024, // enough for SDP
		QueueSize:       256,
	}
}

// Conn wraps one websocket. Writes go through a buffered queue drained by a
// single writer goroutine; reads must come from a single goroutine too.
type Conn struct {
	id   domain.ConnID
	conn *websocket.Conn
	cfg  Config
	log  zerolog.Logger

	send      chan domain.Message
	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(conn *websocket.Conn, cfg Config) *Conn {
	id := domain.NewConnID()
	c := &Conn{
		id:   id,
		conn: conn,
		cfg:  cfg,
		log:  log.With().Str("conn_id", id.String()).Logger(),
		send: make(chan domain.Message, cfg.QueueSize),
		done: make(chan struct{}),
	}

	conn.SetReadLimit(cfg.MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})

	go c.writePump()
	return c
}

func (c *Conn) ID() domain.ConnID {
	return c.id
}

func (c *Conn) Logger() zerolog.Logger {
	return c.log
}

// Send queues msg without blocking.
func (c *Conn) Send(msg domain.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the writer, which closes the socket and unblocks the reader.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Read blocks for the next message. Undecodable frames return an error
// wrapping domain.ErrMalformed and leave the connection usable.
func (c *Conn) Read() (domain.Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return domain.Message{}, err
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return msg, nil
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug().Err(err).Msg("Error writing message")
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
