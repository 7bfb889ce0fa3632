package usecase

import (
	"errors"
	"time"

	"github.com/ponyo877/chatroom/server/domain"
)

var ErrNotFound = errors.New("not found")

var ErrAlreadyExists = errors.New("already exists")

// Repository is the storage abstraction behind the business operations. Both
// the sqlite and the in-memory backend implement it.
type Repository interface {
	// User
	GetUser(id string) (domain.User, error)
	GetUserByName(name string) (domain.User, error) // case-insensitive
	CreateUser(user domain.User) error
	UpdateUserStatus(id string, status domain.UserStatus, lastSeen time.Time) error

	// Room
	GetRoom(id string) (domain.Room, error)
	CreateRoom(room domain.Room) error
	DeleteRoom(id string) error
	ListRooms() ([]domain.RoomInfo, error)

	// Participants
	AddParticipant(roomID, userID string) error
	RemoveParticipant(roomID, userID string) error
	ListParticipants(roomID string) ([]domain.User, error)
	ListUserRooms(userID string) ([]string, error)

	// Message
	CreateMessage(message domain.Message) error
	GetMessage(id string) (domain.Message, error)
	UpdateMessageContent(id, content string, editedAt time.Time) error
	SoftDeleteMessage(id string, deletedAt time.Time) error
	// ListMessages returns up to limit messages in chronological order; a
	// zero before means "newest". The bool reports whether older messages
	// remain.
	ListMessages(roomID string, limit int, before time.Time) ([]domain.Message, bool, error)
	SearchMessages(roomID, pattern string) ([]domain.Message, error)
}
