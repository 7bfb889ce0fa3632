package domain

import "time"

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusAway    UserStatus = "away"
	StatusOffline UserStatus = "offline"
)

func (s UserStatus) IsValid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	default:
		return false
	}
}

type User struct {
	ID        string
	Name      string
	Status    UserStatus
	LastSeen  time.Time
	CreatedAt time.Time
}

func NewUser(id, name string, createdAt time.Time) User {
	return User{
		ID:        id,
		Name:      name,
		Status:    StatusOnline,
		LastSeen:  createdAt,
		CreatedAt: createdAt,
	}
}

// UserDTO is the wire representation of a user.
type UserDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

func (u User) DTO() UserDTO {
	return UserDTO{
		ID:       u.ID,
		Username: u.Name,
		Status:   string(u.Status),
	}
}
