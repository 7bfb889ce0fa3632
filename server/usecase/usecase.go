package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ponyo877/chatroom/server/domain"
)

// Usecase implements the business operations over a storage handle. Failures
// that clients can act on come back as domain.StatusError; everything else is
// an internal error.
type Usecase struct {
	repo Repository
	now  func() time.Time
}

func NewUsecase(repo Repository) *Usecase {
	return &Usecase{repo: repo, now: time.Now}
}

type JoinResult struct {
	User        domain.User
	Room        domain.Room
	Messages    []domain.MessageDTO
	HasMore     bool
	OnlineUsers []domain.UserDTO
}

// JoinRoom reactivates or creates the user behind a username (usernames act
// as soft identity, case-insensitive), adds it to the room's participant set
// and loads the recent history plus the online participants.
func (u *Usecase) JoinRoom(roomID, username string, historyLimit int) (JoinResult, error) {
	room, err := u.repo.GetRoom(roomID)
	if err != nil {
		return JoinResult{}, roomErr(roomID, err)
	}

	now := u.now()
	user, err := u.repo.GetUserByName(username)
	switch {
	case err == nil:
		user.Status = domain.StatusOnline
		user.LastSeen = now
		if err := u.repo.UpdateUserStatus(user.ID, domain.StatusOnline, now); err != nil {
			return JoinResult{}, fmt.Errorf("reactivating user %s: %w", user.ID, err)
		}
	case errors.Is(err, ErrNotFound):
		user = domain.NewUser(ulid.Make().String(), username, now)
		if err := u.repo.CreateUser(user); err != nil {
			return JoinResult{}, fmt.Errorf("creating user %q: %w", username, err)
		}
	default:
		return JoinResult{}, fmt.Errorf("looking up user %q: %w", username, err)
	}

	if err := u.repo.AddParticipant(roomID, user.ID); err != nil && !errors.Is(err, ErrAlreadyExists) {
		return JoinResult{}, fmt.Errorf("adding participant: %w", err)
	}

	messages, hasMore, err := u.repo.ListMessages(roomID, historyLimit, time.Time{})
	if err != nil {
		return JoinResult{}, fmt.Errorf("loading history for room %s: %w", roomID, err)
	}
	dtos, err := u.resolveMessages(messages)
	if err != nil {
		return JoinResult{}, err
	}

	online, err := u.onlineParticipants(roomID)
	if err != nil {
		return JoinResult{}, err
	}

	return JoinResult{
		User:        user,
		Room:        room,
		Messages:    dtos,
		HasMore:     hasMore,
		OnlineUsers: online,
	}, nil
}

// CheckRoomExists reports a ROOM_NOT_FOUND status error when the room does
// not exist.
func (u *Usecase) CheckRoomExists(roomID string) error {
	if _, err := u.repo.GetRoom(roomID); err != nil {
		return roomErr(roomID, err)
	}
	return nil
}

// LeaveRoom removes the user from the room's participant set and stamps it
// offline with a last-seen time.
func (u *Usecase) LeaveRoom(userID, roomID string) error {
	if _, err := u.repo.GetRoom(roomID); err != nil {
		return roomErr(roomID, err)
	}
	if err := u.repo.RemoveParticipant(roomID, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("removing participant: %w", err)
	}
	if err := u.repo.UpdateUserStatus(userID, domain.StatusOffline, u.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.NewStatusError(domain.CodeUserNotFound, "user not found: "+userID)
		}
		return fmt.Errorf("marking user %s offline: %w", userID, err)
	}
	return nil
}

func (u *Usecase) SendMessage(roomID, authorID, content, replyTo string) (domain.MessageDTO, error) {
	user, err := u.repo.GetUser(authorID)
	if err != nil {
		return domain.MessageDTO{}, userErr(authorID, err)
	}
	if _, err := u.repo.GetRoom(roomID); err != nil {
		return domain.MessageDTO{}, roomErr(roomID, err)
	}
	var replyRef *domain.ReplyRef
	if replyTo != "" {
		target, err := u.repo.GetMessage(replyTo)
		if err != nil {
			return domain.MessageDTO{}, messageErr(replyTo, err)
		}
		replyRef = newReplyRef(target)
	}

	msg := domain.NewMessage(ulid.Make().String(), roomID, user.ID, user.Name, content, replyTo, u.now())
	if err := u.repo.CreateMessage(msg); err != nil {
		return domain.MessageDTO{}, fmt.Errorf("persisting message: %w", err)
	}
	return msg.DTO(replyRef), nil
}

func (u *Usecase) EditMessage(messageID, userID, content string) (domain.MessageDTO, error) {
	msg, err := u.repo.GetMessage(messageID)
	if err != nil || msg.Deleted {
		return domain.MessageDTO{}, messageErr(messageID, errOrNotFound(err))
	}
	if msg.AuthorID != userID {
		return domain.MessageDTO{}, domain.NewStatusError(domain.CodeUnauthorized, "message belongs to another user")
	}
	editedAt := u.now()
	if err := u.repo.UpdateMessageContent(messageID, content, editedAt); err != nil {
		return domain.MessageDTO{}, fmt.Errorf("updating message %s: %w", messageID, err)
	}
	msg.Content = content
	msg.EditedAt = editedAt
	return u.resolveMessage(msg)
}

// DeleteMessage tombstones a message. Returns the room the message belonged
// to so the caller can broadcast.
func (u *Usecase) DeleteMessage(messageID, userID string) (string, error) {
	msg, err := u.repo.GetMessage(messageID)
	if err != nil || msg.Deleted {
		return "", messageErr(messageID, errOrNotFound(err))
	}
	if msg.AuthorID != userID {
		return "", domain.NewStatusError(domain.CodeUnauthorized, "message belongs to another user")
	}
	if err := u.repo.SoftDeleteMessage(messageID, u.now()); err != nil {
		return "", fmt.Errorf("deleting message %s: %w", messageID, err)
	}
	return msg.RoomID, nil
}

func (u *Usecase) UpdateStatus(userID string, status domain.UserStatus) (domain.User, error) {
	user, err := u.repo.GetUser(userID)
	if err != nil {
		return domain.User{}, userErr(userID, err)
	}
	now := u.now()
	if err := u.repo.UpdateUserStatus(userID, status, now); err != nil {
		return domain.User{}, fmt.Errorf("updating status of %s: %w", userID, err)
	}
	user.Status = status
	user.LastSeen = now
	return user, nil
}

// MarkDisconnected is the disconnect-time variant of UpdateStatus: best
// effort, offline plus last-seen stamp.
func (u *Usecase) MarkDisconnected(userID string) error {
	if err := u.repo.UpdateUserStatus(userID, domain.StatusOffline, u.now()); err != nil {
		return fmt.Errorf("marking user %s disconnected: %w", userID, err)
	}
	return nil
}

// UserRooms lists the ids of all rooms the user participates in.
func (u *Usecase) UserRooms(userID string) ([]string, error) {
	rooms, err := u.repo.ListUserRooms(userID)
	if err != nil {
		return nil, fmt.Errorf("listing rooms of %s: %w", userID, err)
	}
	return rooms, nil
}

func (u *Usecase) Rooms() ([]domain.RoomInfo, error) {
	return u.repo.ListRooms()
}

type HistoryResult struct {
	Messages []domain.MessageDTO `json:"messages"`
	Users    []domain.UserDTO    `json:"users"`
	HasMore  bool                `json:"hasMore"`
}

func (u *Usecase) RoomHistory(roomID string, limit int, before time.Time) (HistoryResult, error) {
	if _, err := u.repo.GetRoom(roomID); err != nil {
		return HistoryResult{}, roomErr(roomID, err)
	}
	messages, hasMore, err := u.repo.ListMessages(roomID, limit, before)
	if err != nil {
		return HistoryResult{}, fmt.Errorf("loading history for room %s: %w", roomID, err)
	}
	dtos, err := u.resolveMessages(messages)
	if err != nil {
		return HistoryResult{}, err
	}
	users, err := u.repo.ListParticipants(roomID)
	if err != nil {
		return HistoryResult{}, fmt.Errorf("listing participants of room %s: %w", roomID, err)
	}
	userDTOs := make([]domain.UserDTO, len(users))
	for i, user := range users {
		userDTOs[i] = user.DTO()
	}
	return HistoryResult{Messages: dtos, Users: userDTOs, HasMore: hasMore}, nil
}

func (u *Usecase) CreateRoom(name string) (domain.Room, error) {
	room := domain.NewRoom(ulid.Make().String(), name, u.now())
	if err := u.repo.CreateRoom(room); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return domain.Room{}, ErrAlreadyExists
		}
		return domain.Room{}, fmt.Errorf("creating room %q: %w", name, err)
	}
	return room, nil
}

func (u *Usecase) DeleteRoom(roomID string) error {
	if err := u.repo.DeleteRoom(roomID); err != nil {
		return roomErr(roomID, err)
	}
	return nil
}

func (u *Usecase) SearchMessages(roomID, pattern string) ([]domain.MessageDTO, error) {
	if _, err := u.repo.GetRoom(roomID); err != nil {
		return nil, roomErr(roomID, err)
	}
	messages, err := u.repo.SearchMessages(roomID, pattern)
	if err != nil {
		return nil, fmt.Errorf("searching room %s: %w", roomID, err)
	}
	return u.resolveMessages(messages)
}

func (u *Usecase) onlineParticipants(roomID string) ([]domain.UserDTO, error) {
	users, err := u.repo.ListParticipants(roomID)
	if err != nil {
		return nil, fmt.Errorf("listing participants of room %s: %w", roomID, err)
	}
	online := make([]domain.UserDTO, 0, len(users))
	for _, user := range users {
		if user.Status != domain.StatusOffline {
			online = append(online, user.DTO())
		}
	}
	return online, nil
}

func (u *Usecase) resolveMessages(messages []domain.Message) ([]domain.MessageDTO, error) {
	dtos := make([]domain.MessageDTO, len(messages))
	cache := make(map[string]*domain.ReplyRef)
	for i, msg := range messages {
		var ref *domain.ReplyRef
		if msg.ReplyTo != "" {
			cached, ok := cache[msg.ReplyTo]
			if !ok {
				target, err := u.repo.GetMessage(msg.ReplyTo)
				if err == nil {
					cached = newReplyRef(target)
				} else if !errors.Is(err, ErrNotFound) {
					return nil, fmt.Errorf("resolving reply %s: %w", msg.ReplyTo, err)
				}
				cache[msg.ReplyTo] = cached
			}
			ref = cached
		}
		dtos[i] = msg.DTO(ref)
	}
	return dtos, nil
}

func (u *Usecase) resolveMessage(msg domain.Message) (domain.MessageDTO, error) {
	dtos, err := u.resolveMessages([]domain.Message{msg})
	if err != nil {
		return domain.MessageDTO{}, err
	}
	return dtos[0], nil
}

// newReplyRef keeps the author of a deleted target resolvable but drops its
// content.
func newReplyRef(target domain.Message) *domain.ReplyRef {
	ref := &domain.ReplyRef{ID: target.ID, AuthorName: target.AuthorName}
	if !target.Deleted {
		ref.Content = target.Content
	}
	return ref
}

func errOrNotFound(err error) error {
	if err != nil {
		return err
	}
	return ErrNotFound
}

func roomErr(roomID string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return domain.NewStatusError(domain.CodeRoomNotFound, "room not found: "+roomID)
	}
	return fmt.Errorf("looking up room %s: %w", roomID, err)
}

func userErr(userID string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return domain.NewStatusError(domain.CodeUserNotFound, "user not found: "+userID)
	}
	return fmt.Errorf("looking up user %s: %w", userID, err)
}

func messageErr(messageID string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return domain.NewStatusError(domain.CodeMessageNotFound, "message not found: "+messageID)
	}
	return fmt.Errorf("looking up message %s: %w", messageID, err)
}
