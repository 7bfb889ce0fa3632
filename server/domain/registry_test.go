package domain_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/ponyo877/chatroom/server/domain"
)

type fakePusher struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (p *fakePusher) Push(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broken pipe")
	}
	p.frames = append(p.frames, data)
	return nil
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

func newTestRegistry() *domain.Registry {
	return domain.NewRegistry(slog.New(slog.DiscardHandler))
}

func TestRegistry_AddAndDeregister(t *testing.T) {
	r := newTestRegistry()
	r.Add("c1", &fakePusher{})

	if got := r.ConnectionCount(); got != 1 {
		t.Fatalf("ConnectionCount() = %d, want 1", got)
	}
	if _, ok := r.Session("c1"); !ok {
		t.Fatal("Session(c1) not found")
	}

	if _, ok := r.Deregister("c1"); !ok {
		t.Fatal("first Deregister should find the connection")
	}
	if _, ok := r.Deregister("c1"); ok {
		t.Error("second Deregister should be a no-op")
	}
	if got := r.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount() = %d, want 0", got)
	}
}

func TestRegistry_SubscribeSingleRoom(t *testing.T) {
	r := newTestRegistry()
	r.Add("c1", &fakePusher{})

	r.Subscribe("c1", "roomA", "u1")
	r.Subscribe("c1", "roomB", "u1")

	if got := len(r.RoomConnections("roomA")); got != 0 {
		t.Errorf("roomA has %d subscribers, want 0 after switch", got)
	}
	if got := r.RoomConnections("roomB"); len(got) != 1 || got[0] != "c1" {
		t.Errorf("roomB subscribers = %v, want [c1]", got)
	}
}

func TestRegistry_UnsubscribeDeletesEmptyRoom(t *testing.T) {
	r := newTestRegistry()
	r.Add("c1", &fakePusher{})
	r.Subscribe("c1", "roomA", "u1")

	roomID, ok := r.Unsubscribe("c1")
	if !ok || roomID != "roomA" {
		t.Fatalf("Unsubscribe() = (%q, %v), want (roomA, true)", roomID, ok)
	}
	if _, ok := r.Unsubscribe("c1"); ok {
		t.Error("second Unsubscribe should report no membership")
	}
}

func TestRegistry_BroadcastExcludesOriginator(t *testing.T) {
	r := newTestRegistry()
	a, b, c := &fakePusher{}, &fakePusher{}, &fakePusher{}
	r.Add("a", a)
	r.Add("b", b)
	r.Add("c", c)
	r.Subscribe("a", "room", "u1")
	r.Subscribe("b", "room", "u2")
	r.Subscribe("c", "room", "u3")

	r.Broadcast("room", domain.NewTypingEvent("room", "u1", "alice"), "a")

	if a.count() != 0 {
		t.Error("originator must not receive its own typing event")
	}
	if b.count() != 1 || c.count() != 1 {
		t.Errorf("peers received %d/%d frames, want 1/1", b.count(), c.count())
	}
}

func TestRegistry_BroadcastUnknownRoomIsNoop(t *testing.T) {
	r := newTestRegistry()
	p := &fakePusher{}
	r.Add("c1", p)

	r.Broadcast("nowhere", domain.NewUserLeftEvent("nowhere", "u1", "alice"), "")

	if p.count() != 0 {
		t.Errorf("got %d frames, want 0", p.count())
	}
}

func TestRegistry_BroadcastSurvivesBrokenSubscriber(t *testing.T) {
	r := newTestRegistry()
	broken, healthy := &fakePusher{fail: true}, &fakePusher{}
	r.Add("broken", broken)
	r.Add("healthy", healthy)
	r.Subscribe("broken", "room", "u1")
	r.Subscribe("healthy", "room", "u2")

	r.Broadcast("room", domain.NewUserJoinedEvent("room", domain.UserDTO{ID: "u3"}), "")

	if healthy.count() != 1 {
		t.Errorf("healthy subscriber received %d frames, want 1", healthy.count())
	}
}

func TestRegistry_Unicast(t *testing.T) {
	r := newTestRegistry()
	p := &fakePusher{}
	r.Add("c1", p)

	if err := r.Unicast("c1", domain.NewErrorEvent(domain.CodeRateLimited, "slow down")); err != nil {
		t.Fatalf("Unicast() error = %v", err)
	}
	if err := r.Unicast("ghost", domain.NewErrorEvent(domain.CodeInternal, "x")); err == nil {
		t.Error("Unicast to unknown connection should fail")
	}

	var frame struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal(p.frames[0], &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if frame.Type != "ERROR" || frame.Code != "RATE_LIMITED" {
		t.Errorf("frame = %+v, want ERROR/RATE_LIMITED", frame)
	}
}

func TestRegistry_DeregisterCleansIndexes(t *testing.T) {
	r := newTestRegistry()
	r.Add("c1", &fakePusher{})
	r.Subscribe("c1", "room", "u1")

	r.Deregister("c1")

	if got := len(r.RoomConnections("room")); got != 0 {
		t.Errorf("room still has %d subscribers", got)
	}
	if _, ok := r.ConnectionOf("u1"); ok {
		t.Error("user index still maps u1")
	}
}

func TestRegistry_ConnectionOf(t *testing.T) {
	r := newTestRegistry()
	r.Add("c1", &fakePusher{})
	r.Add("c2", &fakePusher{})
	r.Subscribe("c1", "room", "u1")
	r.Subscribe("c2", "room", "u2")

	connID, ok := r.ConnectionOf("u2")
	if !ok || connID != "c2" {
		t.Errorf("ConnectionOf(u2) = (%q, %v), want (c2, true)", connID, ok)
	}

	ids := r.RoomConnections("room")
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "c1" || ids[1] != "c2" {
		t.Errorf("RoomConnections = %v, want [c1 c2]", ids)
	}
}
