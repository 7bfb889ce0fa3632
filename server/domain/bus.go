package domain

import "sync"

const busBuffer = 16

// StatusChange is published when a user's status is persisted; the session
// engine fans it out to every room the user participates in.
type StatusChange struct {
	User User
}

// Disconnect is published after a connection's teardown cascade completes.
type Disconnect struct {
	ConnID   string
	UserID   string
	Username string
}

// Bus is a typed in-process publish/subscribe channel fan-out. Publish never
// blocks; a subscriber that falls behind loses events.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs []chan T
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

func (b *Bus[T]) Subscribe() <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan T, busBuffer)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
