package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name     string
		topology Topology
		msg      Message
		wantErr  error
	}{
		{"join room", TopologyRoom, Message{Type: TypeJoin, RoomID: "r1"}, nil},
		{"join without room", TopologyRoom, Message{Type: TypeJoin}, ErrMalformed},
		{"join broadcast needs username", TopologyBroadcast, Message{Type: TypeJoin}, ErrMalformed},
		{"login", TopologyBroadcast, Message{Type: TypeLogin, Username: "alice"}, nil},
		{"login without username", TopologyRoom, Message{Type: TypeLogin}, ErrMalformed},
		{"leave in broadcast", TopologyBroadcast, Message{Type: TypeLeave}, ErrUnsupportedMessage},
		{"offer", TopologyRoom, Message{Type: TypeOffer, Offer: json.RawMessage(`{"sdp":"X"}`)}, nil},
		{"offer without payload", TopologyRoom, Message{Type: TypeOffer}, ErrMalformed},
		{"offer with null payload", TopologyRoom, Message{Type: TypeOffer, Offer: json.RawMessage(`null`)}, ErrMalformed},
		{"answer in wrong field", TopologyRoom, Message{Type: TypeAnswer, Offer: json.RawMessage(`{}`)}, ErrMalformed},
		{"candidate", TopologyBroadcast, Message{Type: TypeCandidate, Candidate: json.RawMessage(`{"candidate":"c"}`)}, nil},
		{"missing type", TopologyRoom, Message{}, ErrMalformed},
		{"unknown type", TopologyRoom, Message{Type: "bogus"}, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate(tt.topology)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate err=%v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageWireFormat(t *testing.T) {
	raw := []byte(`{"type":"offer","roomId":"r1","offer":{"sdp":"X","type":"offer"}}`)

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Type != TypeOffer || msg.RoomID != "r1" {
		t.Fatalf("decoded %+v", msg)
	}

	out, err := json.Marshal(msg.Forwarded("alice"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"offer","roomId":"r1","from":"alice","offer":{"sdp":"X","type":"offer"}}`
	if string(out) != want {
		t.Fatalf("forwarded=%s, want %s", out, want)
	}
}

func TestUsersMessageNeverNull(t *testing.T) {
	out, err := json.Marshal(NewUsersMessage(nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"type":"users","users":[]}` {
		t.Fatalf("got %s", out)
	}
}

func TestConnectionName(t *testing.T) {
	c := Connection{ID: NewConnID()}
	if c.Name() != c.ID.String() {
		t.Fatalf("Name()=%q, want connection id", c.Name())
	}
	c.Identity = "bob"
	if c.Name() != "bob" {
		t.Fatalf("Name()=%q, want bob", c.Name())
	}
}
