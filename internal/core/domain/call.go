package domain

import "fmt"

// CallState tracks an incoming offer on the peer side. Accepting or declining
// replaces a blocking confirmation prompt.
type CallState int

const (
	CallIdle CallState = iota
	CallPending
	CallAccepted
	CallDeclined
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallPending:
		return "pending"
	case CallAccepted:
		return "accepted"
	case CallDeclined:
		return "declined"
	}
	return fmt.Sprintf("CallState(%d)", int(s))
}

func (s CallState) Terminal() bool {
	return s == CallAccepted || s == CallDeclined
}

// Transition returns the next state or ErrInvalidTransition.
func (s CallState) Transition(next CallState) (CallState, error) {
	ok := false
	switch s {
	case CallIdle:
		ok = next == CallPending
	case CallPending:
		ok = next == CallAccepted || next == CallDeclined || next == CallPending
	case CallAccepted, CallDeclined:
		// a new offer may arrive after the previous call settled
		ok = next == CallPending
	}
	if !ok {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}
