package domain

import "fmt"

type Topology string

const (
	// TopologyRoom restricts relay targets to the other members of the sender's room.
	TopologyRoom Topology = "room"
	// TopologyBroadcast has no rooms: every signal reaches every other connection,
	// unless it names a target identity.
	TopologyBroadcast Topology = "broadcast"
)

func ParseTopology(s string) (Topology, error) {
	switch t := Topology(s); t {
	case TopologyRoom, TopologyBroadcast:
		return t, nil
	default:
		return "", fmt.Errorf("unknown topology %q (want %q or %q)", s, TopologyRoom, TopologyBroadcast)
	}
}

func (t Topology) String() string {
	return string(t)
}
