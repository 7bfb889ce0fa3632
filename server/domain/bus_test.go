package domain_test

import (
	"testing"

	"github.com/ponyo877/chatroom/server/domain"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := domain.NewBus[domain.StatusChange]()
	ch := bus.Subscribe()

	bus.Publish(domain.StatusChange{User: domain.User{ID: "u1"}})

	select {
	case ev := <-ch:
		if ev.User.ID != "u1" {
			t.Errorf("got user %q, want u1", ev.User.ID)
		}
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := domain.NewBus[int]()
	bus.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			bus.Publish(i)
		}
	}()
	<-done
}

func TestBus_Close(t *testing.T) {
	bus := domain.NewBus[int]()
	ch := bus.Subscribe()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
}
