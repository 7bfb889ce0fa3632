package repository

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ponyo877/chatroom/server/domain"
	"github.com/ponyo877/chatroom/server/usecase"
)

// Memory is the in-memory counterpart of Repository, interchangeable behind
// usecase.Repository. Nothing survives a restart.
type Memory struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	rooms        map[string]domain.Room
	participants map[string]map[string]time.Time // roomID -> userID -> joinedAt
	messages     map[string]domain.Message
	order        []string // message ids in insertion order
}

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[string]domain.User),
		rooms:        make(map[string]domain.Room),
		participants: make(map[string]map[string]time.Time),
		messages:     make(map[string]domain.Message),
	}
}

func (m *Memory) GetUser(id string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return domain.User{}, usecase.ErrNotFound
	}
	return user, nil
}

func (m *Memory) GetUserByName(name string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Name, name) {
			return user, nil
		}
	}
	return domain.User{}, usecase.ErrNotFound
}

func (m *Memory) CreateUser(user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Name, user.Name) {
			return usecase.ErrAlreadyExists
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *Memory) UpdateUserStatus(id string, status domain.UserStatus, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return usecase.ErrNotFound
	}
	user.Status = status
	user.LastSeen = lastSeen
	m.users[id] = user
	return nil
}

func (m *Memory) GetRoom(id string) (domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, usecase.ErrNotFound
	}
	return room, nil
}

func (m *Memory) CreateRoom(room domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rooms {
		if existing.Name == room.Name {
			return usecase.ErrAlreadyExists
		}
	}
	m.rooms[room.ID] = room
	return nil
}

func (m *Memory) DeleteRoom(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return usecase.ErrNotFound
	}
	delete(m.rooms, id)
	delete(m.participants, id)
	kept := m.order[:0]
	for _, msgID := range m.order {
		if m.messages[msgID].RoomID == id {
			delete(m.messages, msgID)
			continue
		}
		kept = append(kept, msgID)
	}
	m.order = kept
	return nil
}

func (m *Memory) ListRooms() ([]domain.RoomInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]domain.RoomInfo, 0, len(m.rooms))
	for id, room := range m.rooms {
		info := domain.RoomInfo{ID: id, Name: room.Name, CreatedAt: room.CreatedAt}
		for userID := range m.participants[id] {
			if user, ok := m.users[userID]; ok && user.Status != domain.StatusOffline {
				info.OnlineCount++
			}
		}
		for _, msg := range m.messages {
			if msg.RoomID == id && !msg.Deleted {
				info.MessageCount++
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos, nil
}

func (m *Memory) AddParticipant(roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.participants[roomID]
	if !ok {
		set = make(map[string]time.Time)
		m.participants[roomID] = set
	}
	if _, ok := set[userID]; ok {
		return usecase.ErrAlreadyExists
	}
	set[userID] = time.Now()
	return nil
}

func (m *Memory) RemoveParticipant(roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.participants[roomID]
	if !ok {
		return usecase.ErrNotFound
	}
	if _, ok := set[userID]; !ok {
		return usecase.ErrNotFound
	}
	delete(set, userID)
	return nil
}

func (m *Memory) ListParticipants(roomID string) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.participants[roomID]
	users := make([]domain.User, 0, len(set))
	for userID := range set {
		if user, ok := m.users[userID]; ok {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return set[users[i].ID].Before(set[users[j].ID]) })
	return users, nil
}

func (m *Memory) ListUserRooms(userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomIDs := []string{}
	for roomID, set := range m.participants {
		if _, ok := set[userID]; ok {
			roomIDs = append(roomIDs, roomID)
		}
	}
	sort.Strings(roomIDs)
	return roomIDs, nil
}

func (m *Memory) CreateMessage(message domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[message.ID] = message
	m.order = append(m.order, message.ID)
	return nil
}

func (m *Memory) GetMessage(id string) (domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return domain.Message{}, usecase.ErrNotFound
	}
	if user, ok := m.users[msg.AuthorID]; ok {
		msg.AuthorName = user.Name
	}
	return msg, nil
}

func (m *Memory) UpdateMessageContent(id, content string, editedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Deleted {
		return usecase.ErrNotFound
	}
	msg.Content = content
	msg.EditedAt = editedAt
	m.messages[id] = msg
	return nil
}

func (m *Memory) SoftDeleteMessage(id string, deletedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Deleted {
		return usecase.ErrNotFound
	}
	msg.Deleted = true
	m.messages[id] = msg
	return nil
}

func (m *Memory) ListMessages(roomID string, limit int, before time.Time) ([]domain.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := []domain.Message{}
	for _, msgID := range m.order {
		msg := m.messages[msgID]
		if msg.RoomID != roomID {
			continue
		}
		if !before.IsZero() && !msg.CreatedAt.Before(before) {
			continue
		}
		if user, ok := m.users[msg.AuthorID]; ok {
			msg.AuthorName = user.Name
		}
		all = append(all, msg)
	}
	hasMore := len(all) > limit
	if hasMore {
		all = all[len(all)-limit:]
	}
	return all, hasMore, nil
}

func (m *Memory) SearchMessages(roomID, pattern string) ([]domain.Message, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := []domain.Message{}
	for _, msgID := range m.order {
		msg := m.messages[msgID]
		if msg.RoomID != roomID || msg.Deleted || !re.MatchString(msg.Content) {
			continue
		}
		if user, ok := m.users[msg.AuthorID]; ok {
			msg.AuthorName = user.Name
		}
		matches = append(matches, msg)
	}
	return matches, nil
}
