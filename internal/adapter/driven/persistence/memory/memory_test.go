package memory

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
)

type stubClient struct {
	id domain.ConnID
}

func (c stubClient) ID() domain.ConnID { return c.id }
func (c stubClient) Send(msg domain.Message) error { return nil }
func (c stubClient) Close() error { return nil }

func newStub() stubClient {
	return stubClient{id: domain.NewConnID()}
}

func TestConnectionRegistry_Lifecycle(t *testing.T) {
	r := NewConnectionRegistry()
	c := newStub()

	conn := r.Register(c)
	if conn.ID != c.ID() || conn.Identity != "" || conn.InRoom() {
		t.Fatalf("Register returned %+v, want bare connection", conn)
	}
	if r.Len() != 1 {
		t.Fatalf("Len=%d, want 1", r.Len())
	}

	if err := r.SetRoom(c.ID(), "r1"); err != nil {
		t.Fatalf("SetRoom: %v", err)
	}

	room, ok := r.Unregister(c.ID())
	if !ok || room != "r1" {
		t.Fatalf("Unregister=(%q,%v), want (r1,true)", room, ok)
	}
	if _, ok := r.Get(c.ID()); ok {
		t.Fatalf("connection still present after Unregister")
	}
	if _, ok := r.Unregister(c.ID()); ok {
		t.Fatalf("second Unregister reported a room")
	}
}

func TestConnectionRegistry_SetIdentityOnce(t *testing.T) {
	r := NewConnectionRegistry()
	c := newStub()
	r.Register(c)

	if err := r.SetIdentity(c.ID(), "alice"); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	if err := r.SetIdentity(c.ID(), "alice"); err != nil {
		t.Fatalf("repeat SetIdentity: %v", err)
	}
	if err := r.SetIdentity(c.ID(), "mallory"); !errors.Is(err, domain.ErrIdentityConflict) {
		t.Fatalf("SetIdentity(other) err=%v, want ErrIdentityConflict", err)
	}
	if err := r.SetIdentity(domain.NewConnID(), "ghost"); !errors.Is(err, domain.ErrUnknownConnection) {
		t.Fatalf("SetIdentity(unknown) err=%v, want ErrUnknownConnection", err)
	}

	id, ok := r.FindByIdentity("alice")
	if !ok || id != c.ID() {
		t.Fatalf("FindByIdentity(alice)=(%v,%v)", id, ok)
	}
}

func TestConnectionRegistry_IdentityUnique(t *testing.T) {
	r := NewConnectionRegistry()
	a, b := newStub(), newStub()
	r.Register(a)
	r.Register(b)

	if err := r.SetIdentity(a.ID(), "alice"); err != nil {
		t.Fatalf("SetIdentity(a): %v", err)
	}
	if err := r.SetIdentity(b.ID(), "alice"); !errors.Is(err, domain.ErrIdentityTaken) {
		t.Fatalf("SetIdentity(b, alice) err=%v, want ErrIdentityTaken", err)
	}
	if conn, _ := r.Get(b.ID()); conn.Identity != "" {
		t.Fatalf("rejected identity was stored: %q", conn.Identity)
	}

	// the name is free again once its holder goes away
	r.Unregister(a.ID())
	if err := r.SetIdentity(b.ID(), "alice"); err != nil {
		t.Fatalf("SetIdentity after release: %v", err)
	}
}

func TestConnectionRegistry_IdentitiesSorted(t *testing.T) {
	r := NewConnectionRegistry()
	for _, name := range []string{"carol", "", "alice", "bob"} {
		c := newStub()
		r.Register(c)
		if name != "" {
			_ = r.SetIdentity(c.ID(), name)
		}
	}

	got := r.Identities()
	want := []string{"alice", "bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("Identities=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Identities=%v, want %v", got, want)
		}
	}
	if len(r.All()) != 4 {
		t.Fatalf("All=%d, want 4", len(r.All()))
	}
}

func TestRoomDirectory_MembersExcludeSelf(t *testing.T) {
	d := NewRoomDirectory()
	a, b := domain.NewConnID(), domain.NewConnID()

	d.Join("room", a)
	d.Join("room", b)

	if got := d.Members("room", a); len(got) != 1 || got[0] != b {
		t.Fatalf("Members(excluding A)=%v, want [B]", got)
	}
	if got := d.Members("room", b); len(got) != 1 || got[0] != a {
		t.Fatalf("Members(excluding B)=%v, want [A]", got)
	}
}

func TestRoomDirectory_Idempotent(t *testing.T) {
	d := NewRoomDirectory()
	a, stranger := domain.NewConnID(), domain.NewConnID()

	if n := d.Join("room", a); n != 1 {
		t.Fatalf("Join=%d, want 1", n)
	}
	if n := d.Join("room", a); n != 1 {
		t.Fatalf("second Join=%d, want 1", n)
	}
	if n := d.Leave("room", stranger); n != 1 {
		t.Fatalf("Leave(non-member)=%d, want 1", n)
	}
	if !d.IsMember("room", a) || d.IsMember("room", stranger) {
		t.Fatalf("membership changed by no-op calls")
	}
	if n := d.Leave("nowhere", a); n != 0 {
		t.Fatalf("Leave(unknown room)=%d, want 0", n)
	}
}

func TestRoomDirectory_DeletedWhenEmpty(t *testing.T) {
	d := NewRoomDirectory()
	a, b := domain.NewConnID(), domain.NewConnID()

	d.Join("room", a)
	d.Join("room", b)
	if n := d.Leave("room", a); n != 1 {
		t.Fatalf("Leave=%d, want 1", n)
	}
	if n := d.Leave("room", b); n != 0 {
		t.Fatalf("last Leave=%d, want 0", n)
	}
	if d.Len() != 0 || d.Count("room") != 0 {
		t.Fatalf("room still present: Len=%d Count=%d", d.Len(), d.Count("room"))
	}

	if n := d.Join("room", b); n != 1 {
		t.Fatalf("re-Join=%d, want 1", n)
	}
}

func TestRoomDirectory_MembersOfUnknownRoom(t *testing.T) {
	d := NewRoomDirectory()
	if got := d.Members("missing", domain.NewConnID()); len(got) != 0 {
		t.Fatalf("Members(missing)=%v, want empty", got)
	}
}

func TestOfferCache_Overwrite(t *testing.T) {
	c := NewOfferCache()
	from := domain.NewConnID()

	c.Put(domain.CachedOffer{RoomID: "r", Payload: json.RawMessage(`"O1"`), From: from})
	c.Put(domain.CachedOffer{RoomID: "r", Payload: json.RawMessage(`"O2"`), From: from})

	got, ok := c.Get("r")
	if !ok || string(got.Payload) != `"O2"` {
		t.Fatalf("Get=(%s,%v), want O2", got.Payload, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("Len=%d, want 1", c.Len())
	}
	if got.StoredAt.IsZero() {
		t.Fatalf("StoredAt not stamped")
	}
}

func TestOfferCache_Clear(t *testing.T) {
	c := NewOfferCache()
	c.Put(domain.CachedOffer{RoomID: "r", Payload: json.RawMessage(`"O"`)})
	c.Clear("r")

	if _, ok := c.Get("r"); ok {
		t.Fatalf("Get after Clear returned an offer")
	}
	c.Clear("r")
}

func TestOfferCache_TTL(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewOfferCache(WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	c.Put(domain.CachedOffer{RoomID: "old", Payload: json.RawMessage(`1`)})
	now = now.Add(30 * time.Second)
	c.Put(domain.CachedOffer{RoomID: "new", Payload: json.RawMessage(`2`)})
	now = now.Add(40 * time.Second)

	if _, ok := c.Get("old"); ok {
		t.Fatalf("expired offer returned")
	}
	if _, ok := c.Get("new"); !ok {
		t.Fatalf("fresh offer missing")
	}

	if n := c.Sweep(now); n != 1 {
		t.Fatalf("Sweep=%d, want 1", n)
	}
	rooms := []string{}
	for _, r := range []domain.RoomID{"old", "new"} {
		if _, ok := c.Get(r); ok {
			rooms = append(rooms, string(r))
		}
	}
	sort.Strings(rooms)
	if len(rooms) != 1 || rooms[0] != "new" || c.Len() != 1 {
		t.Fatalf("after Sweep rooms=%v Len=%d", rooms, c.Len())
	}
}

func TestOfferCache_NoTTLNeverExpires(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewOfferCache(WithClock(func() time.Time { return now }))
	c.Put(domain.CachedOffer{RoomID: "r", Payload: json.RawMessage(`1`)})

	now = now.Add(365 * 24 * time.Hour)
	if _, ok := c.Get("r"); !ok {
		t.Fatalf("offer expired without a ttl")
	}
	if n := c.Sweep(now); n != 0 {
		t.Fatalf("Sweep=%d, want 0", n)
	}
}
