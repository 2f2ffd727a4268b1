package peer

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Wyydra/duet/internal/core/domain"
)

// AcceptPolicy decides whether an incoming call from the named peer is taken.
type AcceptPolicy func(from string) bool

func AutoAccept(string) bool {
	return true
}

func AutoDecline(string) bool {
	return false
}

// Prompt asks on out and reads a y/n answer from in.
func Prompt(in io.Reader, out io.Writer) AcceptPolicy {
	r := bufio.NewReader(in)
	return func(from string) bool {
		fmt.Fprintf(out, "Incoming call from %s. Accept? [y/N] ", from)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

// Pending holds the latest incoming offer until it is accepted or declined.
type Pending struct {
	mu    sync.Mutex
	state domain.CallState
	offer domain.Message
}

func (p *Pending) State() domain.CallState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Offer records an incoming offer. A newer offer replaces an undecided one.
func (p *Pending) Offer(msg domain.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := p.state.Transition(domain.CallPending)
	if err != nil {
		return err
	}
	p.state = next
	p.offer = msg
	return nil
}

func (p *Pending) Accept() (domain.Message, error) {
	return p.settle(domain.CallAccepted)
}

func (p *Pending) Decline() (domain.Message, error) {
	return p.settle(domain.CallDeclined)
}

func (p *Pending) settle(to domain.CallState) (domain.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := p.state.Transition(to)
	if err != nil {
		return domain.Message{}, err
	}
	p.state = next
	offer := p.offer
	p.offer = domain.Message{}
	return offer, nil
}
