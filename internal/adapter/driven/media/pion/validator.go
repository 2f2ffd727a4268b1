package pion

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var (
	errEmptySDP        = errors.New("session description has no sdp")
	errTypeMismatch    = errors.New("session description type does not match message")
	errMissingLocation = errors.New("candidate has neither sdpMid nor sdpMLineIndex")
)

// Validator implements port.PayloadValidator with pion's own session
// description and ICE candidate types.
type Validator struct {
	// ParseSDP additionally runs the SDP body through pion's parser.
	ParseSDP bool
}

func NewValidator(parseSDP bool) *Validator {
	return &Validator{ParseSDP: parseSDP}
}

func (v *Validator) ValidateDescription(kind string, payload json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("decode session description: %w", err)
	}
	if desc.SDP == "" {
		return errEmptySDP
	}

	// browsers always send the type, hand-rolled clients often omit it
	if desc.Type != webrtc.SDPTypeUnknown && !typeMatches(kind, desc.Type) {
		return fmt.Errorf("%w: %s in %s message", errTypeMismatch, desc.Type, kind)
	}

	if v.ParseSDP {
		if _, err := desc.Unmarshal(); err != nil {
			return fmt.Errorf("parse sdp: %w", err)
		}
	}
	return nil
}

func (v *Validator) ValidateCandidate(payload json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &init); err != nil {
		return fmt.Errorf("decode ice candidate: %w", err)
	}
	// an empty candidate string marks end-of-candidates
	if init.Candidate != "" && init.SDPMid == nil && init.SDPMLineIndex == nil {
		return errMissingLocation
	}
	return nil
}

func typeMatches(kind string, t webrtc.SDPType) bool {
	switch kind {
	case "offer":
		return t == webrtc.SDPTypeOffer
	case "answer":
		return t == webrtc.SDPTypeAnswer || t == webrtc.SDPTypePranswer
	}
	return false
}
