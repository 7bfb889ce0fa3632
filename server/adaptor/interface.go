package adaptor

import (
	"time"

	"github.com/ponyo877/chatroom/server/domain"
	"github.com/ponyo877/chatroom/server/usecase"
)

// SessionHandler receives the transport lifecycle hooks: one open, any number
// of inbound frames, one close.
type SessionHandler interface {
	HandleOpen(connID string, p domain.Pusher)
	HandleMessage(connID string, raw []byte)
	HandleClose(connID string)
}

// RoomAPI backs the admin HTTP endpoints.
type RoomAPI interface {
	Rooms() ([]domain.RoomInfo, error)
	CreateRoom(name string) (domain.Room, error)
	DeleteRoom(roomID string) error
	RoomHistory(roomID string, limit int, before time.Time) (usecase.HistoryResult, error)
	SearchMessages(roomID, pattern string) ([]domain.MessageDTO, error)
}
