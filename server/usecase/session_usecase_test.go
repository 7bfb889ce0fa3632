package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ponyo877/chatroom/server/domain"
	"github.com/ponyo877/chatroom/server/repository"
	"github.com/ponyo877/chatroom/server/usecase"
)

// pusher records every frame the engine pushes at a connection.
type pusher struct {
	mu     sync.Mutex
	frames [][]byte
}

func (p *pusher) Push(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, data)
	return nil
}

func (p *pusher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.frames))
	for i, raw := range p.frames {
		var head struct {
			Type string `json:"type"`
		}
		json.Unmarshal(raw, &head)
		types[i] = head.Type
	}
	return types
}

func (p *pusher) count(typ string) int {
	n := 0
	for _, t := range p.types() {
		if t == typ {
			n++
		}
	}
	return n
}

// last decodes the most recent frame of the given type into out.
func (p *pusher) last(t *testing.T, typ string, out any) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.frames) - 1; i >= 0; i-- {
		var head struct {
			Type string `json:"type"`
		}
		json.Unmarshal(p.frames[i], &head)
		if head.Type == typ {
			if err := json.Unmarshal(p.frames[i], out); err != nil {
				t.Fatalf("decoding %s frame: %v", typ, err)
			}
			return
		}
	}
	t.Fatalf("no %s frame recorded (got %v)", typ, p.types())
}

func (p *pusher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

type harness struct {
	t    *testing.T
	su   *usecase.SessionUsecase
	uc   *usecase.Usecase
	room domain.Room
}

func newHarness(t *testing.T, cfg usecase.SessionConfig) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	uc := usecase.NewUsecase(repository.NewMemory())
	room, err := uc.CreateRoom("general")
	if err != nil {
		t.Fatalf("seeding room: %v", err)
	}

	registry := domain.NewRegistry(logger)
	statusBus := domain.NewBus[domain.StatusChange]()
	discoBus := domain.NewBus[domain.Disconnect]()
	su := usecase.NewSessionUsecase(uc, registry, statusBus, discoBus, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	su.Start(ctx)

	return &harness{t: t, su: su, uc: uc, room: room}
}

func (h *harness) connect(connID string) *pusher {
	p := &pusher{}
	h.su.HandleOpen(connID, p)
	return p
}

func (h *harness) join(connID, username string) {
	h.t.Helper()
	h.joinRoom(connID, h.room.ID, username)
}

func (h *harness) joinRoom(connID, roomID, username string) {
	h.t.Helper()
	h.su.HandleMessage(connID, []byte(fmt.Sprintf(
		`{"type":"JOIN_ROOM","roomId":"%s","username":"%s"}`, roomID, username)))
}

func (h *harness) send(connID, content string) {
	h.su.HandleMessage(connID, []byte(fmt.Sprintf(`{"type":"SEND_MESSAGE","content":"%s"}`, content)))
}

// waitFor polls until cond holds or the deadline passes. Needed wherever a
// broadcast crosses a goroutine boundary (typing timers, the status bus).
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEngine_JoinDeliversSnapshotAndNotifiesPeers(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	alice := h.connect("a")
	h.join("a", "alice")

	var connected domain.ConnectedEvent
	alice.last(t, "CONNECTED", &connected)
	if connected.User.Username != "alice" || connected.Room.ID != h.room.ID {
		t.Errorf("CONNECTED = %+v", connected)
	}
	var history domain.RoomHistoryEvent
	alice.last(t, "ROOM_HISTORY", &history)
	if history.RoomID != h.room.ID || len(history.Messages) != 0 {
		t.Errorf("ROOM_HISTORY = %+v, want empty history", history)
	}

	bob := h.connect("b")
	h.join("b", "bob")

	if alice.count("USER_JOINED") != 1 {
		t.Errorf("alice USER_JOINED count = %d, want 1", alice.count("USER_JOINED"))
	}
	// the joiner gets the snapshot, not its own join notification
	if bob.count("USER_JOINED") != 0 {
		t.Errorf("bob received his own USER_JOINED")
	}
	var connectedBob domain.ConnectedEvent
	bob.last(t, "CONNECTED", &connectedBob)
	if len(connectedBob.OnlineUsers) != 2 {
		t.Errorf("bob sees %d online users, want 2", len(connectedBob.OnlineUsers))
	}
}

func TestEngine_JoinUnknownRoom(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	alice := h.connect("a")
	h.joinRoom("a", "nowhere", "alice")

	var errEvent domain.ErrorEvent
	alice.last(t, "ERROR", &errEvent)
	if errEvent.Code != domain.CodeRoomNotFound {
		t.Errorf("code = %q, want ROOM_NOT_FOUND", errEvent.Code)
	}
}

func TestEngine_MalformedFrame(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	alice := h.connect("a")

	h.su.HandleMessage("a", []byte(`{"type":"JOIN_ROOM","roomId":"x","username":"!"}`))

	var errEvent domain.ErrorEvent
	alice.last(t, "ERROR", &errEvent)
	if errEvent.Code != domain.CodeInvalidMessage {
		t.Errorf("code = %q, want INVALID_MESSAGE", errEvent.Code)
	}
}

func TestEngine_OperationsRequireJoin(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	alice := h.connect("a")

	for _, frame := range []string{
		`{"type":"SEND_MESSAGE","content":"hi"}`,
		`{"type":"EDIT_MESSAGE","messageId":"m1","content":"hi"}`,
		`{"type":"DELETE_MESSAGE","messageId":"m1"}`,
		`{"type":"UPDATE_STATUS","status":"away"}`,
	} {
		alice.reset()
		h.su.HandleMessage("a", []byte(frame))
		var errEvent domain.ErrorEvent
		alice.last(t, "ERROR", &errEvent)
		if errEvent.Code != domain.CodeUnauthorized {
			t.Errorf("frame %s: code = %q, want UNAUTHORIZED", frame, errEvent.Code)
		}
	}

	// typing and leave before a join are silently ignored
	alice.reset()
	h.su.HandleMessage("a", []byte(`{"type":"TYPING_START"}`))
	h.su.HandleMessage("a", []byte(`{"type":"TYPING_STOP"}`))
	h.su.HandleMessage("a", []byte(`{"type":"LEAVE_ROOM"}`))
	if got := alice.types(); len(got) != 0 {
		t.Errorf("unauthenticated lifecycle frames produced %v", got)
	}
}

func TestEngine_BroadcastIncludesSender(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	alice, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	h.send("a", "hello")

	for name, p := range map[string]*pusher{"alice": alice, "bob": bob} {
		if p.count("MESSAGE_RECEIVED") != 1 {
			t.Errorf("%s MESSAGE_RECEIVED count = %d, want 1", name, p.count("MESSAGE_RECEIVED"))
		}
	}
	var received domain.MessageReceivedEvent
	bob.last(t, "MESSAGE_RECEIVED", &received)
	if received.Message.Author != "alice" || received.Message.Content != "hello" {
		t.Errorf("message = %+v", received.Message)
	}
}

func TestEngine_RateLimit(t *testing.T) {
	cfg := usecase.DefaultSessionConfig()
	cfg.RateLimit = 2
	h := newHarness(t, cfg)
	alice, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	for i := 0; i < 5; i++ {
		h.send("a", "spam")
	}

	if got := bob.count("MESSAGE_RECEIVED"); got != 2 {
		t.Errorf("bob received %d messages, want 2", got)
	}
	var errEvent domain.ErrorEvent
	alice.last(t, "ERROR", &errEvent)
	if errEvent.Code != domain.CodeRateLimited {
		t.Errorf("code = %q, want RATE_LIMITED", errEvent.Code)
	}
	if got := alice.count("ERROR"); got != 3 {
		t.Errorf("alice got %d rate errors, want 3", got)
	}
}

func TestEngine_TypingAutoStop(t *testing.T) {
	cfg := usecase.DefaultSessionConfig()
	cfg.TypingTimeout = 30 * time.Millisecond
	h := newHarness(t, cfg)
	alice, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	h.su.HandleMessage("a", []byte(`{"type":"TYPING_START"}`))

	if bob.count("USER_TYPING") != 1 {
		t.Fatalf("bob USER_TYPING count = %d, want 1", bob.count("USER_TYPING"))
	}
	if alice.count("USER_TYPING") != 0 {
		t.Error("alice received her own typing event")
	}

	waitFor(t, func() bool { return bob.count("USER_STOPPED_TYPING") == 1 }, "auto stop broadcast")

	// re-arming repeatedly still produces exactly one auto stop
	bob.reset()
	for i := 0; i < 4; i++ {
		h.su.HandleMessage("a", []byte(`{"type":"TYPING_START"}`))
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, func() bool { return bob.count("USER_STOPPED_TYPING") >= 1 }, "auto stop broadcast")
	time.Sleep(60 * time.Millisecond)
	if got := bob.count("USER_STOPPED_TYPING"); got != 1 {
		t.Errorf("bob USER_STOPPED_TYPING count = %d, want 1", got)
	}
}

func TestEngine_ExplicitTypingStop(t *testing.T) {
	cfg := usecase.DefaultSessionConfig()
	cfg.TypingTimeout = 50 * time.Millisecond
	h := newHarness(t, cfg)
	_, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	h.su.HandleMessage("a", []byte(`{"type":"TYPING_START"}`))
	h.su.HandleMessage("a", []byte(`{"type":"TYPING_STOP"}`))

	if got := bob.count("USER_STOPPED_TYPING"); got != 1 {
		t.Fatalf("bob USER_STOPPED_TYPING count = %d, want 1", got)
	}
	// the cancelled timer must not fire a second stop
	time.Sleep(100 * time.Millisecond)
	if got := bob.count("USER_STOPPED_TYPING"); got != 1 {
		t.Errorf("bob USER_STOPPED_TYPING count = %d after timeout, want 1", got)
	}
}

func TestEngine_SendCancelsTyping(t *testing.T) {
	cfg := usecase.DefaultSessionConfig()
	cfg.TypingTimeout = 50 * time.Millisecond
	h := newHarness(t, cfg)
	_, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	h.su.HandleMessage("a", []byte(`{"type":"TYPING_START"}`))
	h.send("a", "done typing")

	if got := bob.count("USER_STOPPED_TYPING"); got != 1 {
		t.Errorf("bob USER_STOPPED_TYPING count = %d, want 1", got)
	}
	time.Sleep(100 * time.Millisecond)
	if got := bob.count("USER_STOPPED_TYPING"); got != 1 {
		t.Errorf("timer fired after send: USER_STOPPED_TYPING count = %d", got)
	}

	// a send with no typing in flight broadcasts no stop
	bob.reset()
	h.send("a", "plain")
	if got := bob.count("USER_STOPPED_TYPING"); got != 0 {
		t.Errorf("plain send produced %d USER_STOPPED_TYPING", got)
	}
}

func TestEngine_EditAndDeleteBroadcast(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	alice, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	h.send("a", "tpyo")
	var received domain.MessageReceivedEvent
	alice.last(t, "MESSAGE_RECEIVED", &received)
	msgID := received.Message.ID

	// edit by a non-author is refused before anything is broadcast
	h.su.HandleMessage("b", []byte(fmt.Sprintf(
		`{"type":"EDIT_MESSAGE","messageId":"%s","content":"hijack"}`, msgID)))
	var errEvent domain.ErrorEvent
	bob.last(t, "ERROR", &errEvent)
	if errEvent.Code != domain.CodeUnauthorized {
		t.Errorf("code = %q, want UNAUTHORIZED", errEvent.Code)
	}
	if alice.count("MESSAGE_EDITED")+bob.count("MESSAGE_EDITED") != 0 {
		t.Error("refused edit was broadcast")
	}

	h.su.HandleMessage("a", []byte(fmt.Sprintf(
		`{"type":"EDIT_MESSAGE","messageId":"%s","content":"typo"}`, msgID)))
	var edited domain.MessageEditedEvent
	bob.last(t, "MESSAGE_EDITED", &edited)
	if edited.Message.Content != "typo" || edited.Message.EditedAt == nil {
		t.Errorf("edited message = %+v", edited.Message)
	}

	h.su.HandleMessage("b", []byte(fmt.Sprintf(`{"type":"DELETE_MESSAGE","messageId":"%s"}`, msgID)))
	bob.last(t, "ERROR", &errEvent)
	if errEvent.Code != domain.CodeUnauthorized {
		t.Errorf("delete by non-author: code = %q, want UNAUTHORIZED", errEvent.Code)
	}

	h.su.HandleMessage("a", []byte(fmt.Sprintf(`{"type":"DELETE_MESSAGE","messageId":"%s"}`, msgID)))
	var deleted domain.MessageDeletedEvent
	bob.last(t, "MESSAGE_DELETED", &deleted)
	if deleted.MessageID != msgID || deleted.RoomID != h.room.ID {
		t.Errorf("MESSAGE_DELETED = %+v", deleted)
	}
}

func TestEngine_LeaveRoom(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	alice, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	h.su.HandleMessage("a", []byte(`{"type":"LEAVE_ROOM"}`))

	var left domain.UserLeftEvent
	bob.last(t, "USER_LEFT", &left)
	if left.Username != "alice" || left.RoomID != h.room.ID {
		t.Errorf("USER_LEFT = %+v", left)
	}
	if alice.count("USER_LEFT") != 0 {
		t.Error("the leaver received her own USER_LEFT")
	}

	// out of the room now: sends are refused
	alice.reset()
	h.send("a", "echo")
	var errEvent domain.ErrorEvent
	alice.last(t, "ERROR", &errEvent)
	if errEvent.Code != domain.CodeUnauthorized {
		t.Errorf("send after leave: code = %q, want UNAUTHORIZED", errEvent.Code)
	}
}

func TestEngine_JoinSwitchesRooms(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	other, err := h.uc.CreateRoom("random")
	if err != nil {
		t.Fatalf("creating second room: %v", err)
	}
	alice, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	h.joinRoom("a", other.ID, "alice")

	var left domain.UserLeftEvent
	bob.last(t, "USER_LEFT", &left)
	if left.Username != "alice" {
		t.Errorf("USER_LEFT = %+v", left)
	}

	// alice's traffic now lands only in the new room
	bob.reset()
	h.send("a", "moved")
	if got := bob.count("MESSAGE_RECEIVED"); got != 0 {
		t.Errorf("bob received %d messages from the old room, want 0", got)
	}
	var connected domain.ConnectedEvent
	alice.last(t, "CONNECTED", &connected)
	if connected.Room.ID != other.ID {
		t.Errorf("alice's room = %q, want %q", connected.Room.ID, other.ID)
	}
}

func TestEngine_FailedSwitchKeepsCurrentRoom(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	alice, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	h.joinRoom("a", "no-such-room", "alice")

	var errEvent domain.ErrorEvent
	alice.last(t, "ERROR", &errEvent)
	if errEvent.Code != domain.CodeRoomNotFound {
		t.Fatalf("code = %q, want ROOM_NOT_FOUND", errEvent.Code)
	}
	// the old room is untouched: no eviction, no peer notification
	if got := bob.count("USER_LEFT"); got != 0 {
		t.Errorf("bob saw %d USER_LEFT after a failed switch, want 0", got)
	}
	h.send("a", "still here")
	if got := bob.count("MESSAGE_RECEIVED"); got != 1 {
		t.Errorf("bob received %d messages after the failed switch, want 1", got)
	}
}

func TestEngine_RejoinReplaysSnapshotWithoutPeerBroadcast(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	alice, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	h.join("a", "alice")

	if got := alice.count("CONNECTED"); got != 2 {
		t.Errorf("alice CONNECTED count = %d, want 2", got)
	}
	if got := alice.count("ROOM_HISTORY"); got != 2 {
		t.Errorf("alice ROOM_HISTORY count = %d, want 2", got)
	}
	// peers already know alice is here
	if got := bob.count("USER_JOINED"); got != 0 {
		t.Errorf("bob USER_JOINED count = %d, want 0", got)
	}
	if got := bob.count("USER_LEFT"); got != 0 {
		t.Errorf("bob USER_LEFT count = %d, want 0", got)
	}
}

func TestEngine_CloseCascade(t *testing.T) {
	cfg := usecase.DefaultSessionConfig()
	cfg.TypingTimeout = 30 * time.Millisecond
	h := newHarness(t, cfg)
	_, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")
	h.su.HandleMessage("a", []byte(`{"type":"TYPING_START"}`))

	h.su.HandleClose("a")
	h.su.HandleClose("a") // double close is a no-op

	if got := bob.count("USER_LEFT"); got != 1 {
		t.Errorf("bob USER_LEFT count = %d, want 1", got)
	}
	// the dead connection's typing timer must not fire
	time.Sleep(60 * time.Millisecond)
	if got := bob.count("USER_STOPPED_TYPING"); got != 0 {
		t.Errorf("typing timer fired after close: %d stop frames", got)
	}
}

func TestEngine_CloseBeforeJoin(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	h.connect("a")

	h.su.HandleClose("a")
	h.su.HandleClose("ghost") // never opened
}

func TestEngine_StatusFanout(t *testing.T) {
	h := newHarness(t, usecase.DefaultSessionConfig())
	alice, bob := h.connect("a"), h.connect("b")
	h.join("a", "alice")
	h.join("b", "bob")

	h.su.HandleMessage("a", []byte(`{"type":"UPDATE_STATUS","status":"away"}`))

	waitFor(t, func() bool { return bob.count("USER_STATUS_CHANGED") == 1 }, "status fan-out")
	var changed domain.StatusChangedEvent
	bob.last(t, "USER_STATUS_CHANGED", &changed)
	if changed.Username != "alice" || changed.Status != "away" {
		t.Errorf("USER_STATUS_CHANGED = %+v", changed)
	}
	// status changes reach every subscriber of the room, the changer included
	waitFor(t, func() bool { return alice.count("USER_STATUS_CHANGED") == 1 }, "status echo")
}
