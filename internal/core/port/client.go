package port

import "github.com/Wyydra/duet/internal/core/domain"

// Client is one live transport connection. Send must not block the caller.
type Client interface {
	ID() domain.ConnID
	Send(msg domain.Message) error
	Close() error
}
