package domain

import "errors"

var (
	ErrMalformed          = errors.New("malformed message")
	ErrNotMember          = errors.New("sender is not a member of the room")
	ErrUnknownConnection  = errors.New("unknown connection")
	ErrUnknownTarget      = errors.New("unknown target")
	ErrIdentityConflict   = errors.New("identity already set to a different name")
	ErrIdentityTaken      = errors.New("identity held by another connection")
	ErrInvalidTransition  = errors.New("invalid call state transition")
	ErrUnsupportedMessage = errors.New("message not supported by topology")
)
