package http

import (
	"errors"
	"net/http"

	"github.com/Wyydra/duet/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ServeWS upgrades the request and pumps its messages into the relay until
// the transport goes away.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := ws.NewConn(conn, h.opts.WS)

	l := client.Logger()
	l.Info().Str("remote_addr", r.RemoteAddr).Msg("New client connected")

	h.Relay.Register(client)

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Relay.Unregister(client.ID())
		client.Close()
	}()

	// listening for browser
	for {
		msg, err := client.Read()
		if err != nil {
			if errors.Is(err, domain.ErrMalformed) {
				l.Warn().Err(err).Msg("Dropped undecodable message")
				if h.opts.Nack {
					client.Send(domain.NewErrorMessage(err))
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		h.Relay.Submit(client.ID(), msg)
	}
}
