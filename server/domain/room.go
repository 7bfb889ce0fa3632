package domain

import "time"

type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

func NewRoom(id, name string, createdAt time.Time) Room {
	return Room{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
	}
}

// RoomDTO is the wire representation of a room.
type RoomDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (r Room) DTO() RoomDTO {
	return RoomDTO{ID: r.ID, Name: r.Name}
}

// RoomInfo is a room plus its current participant count, as listed by the
// rooms API.
type RoomInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OnlineCount  int       `json:"onlineCount"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
}
