package domain

import "time"

type Message struct {
	ID         string
	RoomID     string
	AuthorID   string
	AuthorName string
	Content    string
	ReplyTo    string
	CreatedAt  time.Time
	EditedAt   time.Time
	Deleted    bool
}

func NewMessage(id, roomID, authorID, authorName, content, replyTo string, createdAt time.Time) Message {
	return Message{
		ID:         id,
		RoomID:     roomID,
		AuthorID:   authorID,
		AuthorName: authorName,
		Content:    content,
		ReplyTo:    replyTo,
		CreatedAt:  createdAt,
	}
}

// ReplyRef is the resolved reference carried by a message that replies to
// another one. A deleted target keeps its author name but loses its content.
type ReplyRef struct {
	ID         string `json:"id"`
	AuthorName string `json:"authorName"`
	Content    string `json:"content,omitempty"`
}

// MessageDTO is the wire representation of a message. Deleted messages are
// tombstones: the id and author survive, the content does not.
type MessageDTO struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"roomId"`
	AuthorID  string     `json:"authorId"`
	Author    string     `json:"author"`
	Content   string     `json:"content"`
	ReplyTo   *ReplyRef  `json:"replyTo,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	Deleted   bool       `json:"deleted,omitempty"`
}

func (m Message) DTO(replyTo *ReplyRef) MessageDTO {
	dto := MessageDTO{
		ID:        m.ID,
		RoomID:    m.RoomID,
		AuthorID:  m.AuthorID,
		Author:    m.AuthorName,
		Content:   m.Content,
		ReplyTo:   replyTo,
		CreatedAt: m.CreatedAt,
		Deleted:   m.Deleted,
	}
	if !m.EditedAt.IsZero() {
		t := m.EditedAt
		dto.EditedAt = &t
	}
	if m.Deleted {
		dto.Content = ""
	}
	return dto
}
