package domain

import (
	"sync"
	"time"
)

// Session is the mutable per-connection state. The dispatcher serializes all
// event handling for one connection, but the typing auto-stop callback fires
// from a timer goroutine, so the fields are guarded by a mutex.
type Session struct {
	ID string

	mu       sync.Mutex
	userID   string
	username string
	roomID   string

	typingTimer *time.Timer
	typingGen   uint64

	rateStart time.Time
	rateCount int
}

func NewSession(id string) *Session {
	return &Session{ID: id}
}

// Identify binds the session to a user. userID and username are set together;
// both stay set across room switches.
func (s *Session) Identify(userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.username = username
}

// Identity returns the bound user, if any. ok is false until the first
// successful join.
func (s *Session) Identity() (userID, username string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.username, s.userID != ""
}

func (s *Session) SetRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
}

func (s *Session) Room() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.roomID != ""
}

func (s *Session) ClearRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = ""
}

// ArmTyping schedules fn after d, first cancelling any pending timer. At most
// one timer exists per session; a stale timer that fires after a re-arm or a
// cancel is a no-op.
func (s *Session) ArmTyping(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingGen++
	gen := s.typingGen
	s.typingTimer = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.typingGen != gen || s.typingTimer == nil {
			s.mu.Unlock()
			return
		}
		s.typingTimer = nil
		s.mu.Unlock()
		fn()
	})
}

// CancelTyping stops the pending timer, if any. Safe to call when nothing is
// armed.
func (s *Session) CancelTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.typingGen++
}

func (s *Session) TypingArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingTimer != nil
}

// AllowMessage applies the per-connection rolling rate window. The counter
// counts attempts, not deliveries: rejected sends keep climbing past the
// ceiling until the window rolls over.
func (s *Session) AllowMessage(now time.Time, window time.Duration, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateStart.IsZero() || now.Sub(s.rateStart) >= window {
		s.rateStart = now
		s.rateCount = 0
	}
	s.rateCount++
	return s.rateCount <= limit
}

func (s *Session) RateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateCount
}
