package port

import "encoding/json"

// PayloadValidator checks negotiation payloads beyond field presence.
type PayloadValidator interface {
	ValidateDescription(kind string, payload json.RawMessage) error
	ValidateCandidate(payload json.RawMessage) error
}
