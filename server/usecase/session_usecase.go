package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ponyo877/chatroom/server/domain"
	"github.com/ponyo877/chatroom/server/schema"
)

// SessionConfig tunes the per-connection lifecycle controls.
type SessionConfig struct {
	HistoryLimit  int
	RateLimit     int
	RateWindow    time.Duration
	TypingTimeout time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		HistoryLimit:  50,
		RateLimit:     30,
		RateWindow:    60 * time.Second,
		TypingTimeout: 3 * time.Second,
	}
}

// SessionUsecase is the session engine: it turns inbound frames from the
// transport into business operations and fans the resulting events out to the
// right subset of connections.
type SessionUsecase struct {
	uc        *Usecase
	registry  *domain.Registry
	schema    *schema.Validator
	statusBus *domain.Bus[domain.StatusChange]
	discoBus  *domain.Bus[domain.Disconnect]
	cfg       SessionConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewSessionUsecase(
	uc *Usecase,
	registry *domain.Registry,
	statusBus *domain.Bus[domain.StatusChange],
	discoBus *domain.Bus[domain.Disconnect],
	cfg SessionConfig,
	logger *slog.Logger,
) *SessionUsecase {
	return &SessionUsecase{
		uc:        uc,
		registry:  registry,
		schema:    schema.New(),
		statusBus: statusBus,
		discoBus:  discoBus,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Start consumes status-change events from the bus and fans each one out to
// every room the affected user participates in.
func (s *SessionUsecase) Start(ctx context.Context) {
	ch := s.statusBus.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				s.fanoutStatus(ev.User)
			}
		}
	}()
}

// HandleOpen registers a freshly accepted connection.
func (s *SessionUsecase) HandleOpen(connID string, p domain.Pusher) {
	s.registry.Add(connID, p)
	s.logger.Info("connection opened", "conn", connID)
}

// HandleClose is the idempotent teardown cascade: cancel the typing timer,
// leave the live room and tell its remaining subscribers, then mark the user
// offline. Storage failures are logged and never block the teardown.
func (s *SessionUsecase) HandleClose(connID string) {
	session, ok := s.registry.Session(connID)
	if !ok {
		return
	}
	session.CancelTyping()

	roomID, hadRoom := s.registry.Unsubscribe(connID)
	userID, username, authed := session.Identity()
	if hadRoom {
		s.registry.Broadcast(roomID, domain.NewUserLeftEvent(roomID, userID, username), "")
	}
	if authed {
		if err := s.uc.MarkDisconnected(userID); err != nil {
			s.logger.Warn("mark user offline on disconnect", "conn", connID, "user", userID, "error", err)
		}
		s.discoBus.Publish(domain.Disconnect{ConnID: connID, UserID: userID, Username: username})
	}
	s.registry.Deregister(connID)
	s.logger.Info("connection closed", "conn", connID)
}

// HandleMessage validates one inbound frame and dispatches it.
func (s *SessionUsecase) HandleMessage(connID string, raw []byte) {
	session, ok := s.registry.Session(connID)
	if !ok {
		return
	}
	event, violations := s.schema.Validate(raw)
	if len(violations) > 0 {
		s.sendErrorEvent(connID, domain.CodeInvalidMessage, strings.Join(violations, "; "))
		return
	}

	switch event.Type {
	case domain.EventJoinRoom:
		s.handleJoin(session, event)
	case domain.EventLeaveRoom:
		s.handleLeave(session)
	case domain.EventSendMessage:
		s.handleSend(session, event)
	case domain.EventEditMessage:
		s.handleEdit(session, event)
	case domain.EventDeleteMessage:
		s.handleDelete(session, event)
	case domain.EventTypingStart:
		s.handleTypingStart(session)
	case domain.EventTypingStop:
		s.handleTypingStop(session)
	case domain.EventUpdateStatus:
		s.handleStatus(session, event)
	default:
		// unreachable once the schema passed; keep the dispatcher crash-free
		s.logger.Debug("ignoring unknown event type", "conn", connID, "type", event.Type)
	}
}

func (s *SessionUsecase) handleJoin(session *domain.Session, event domain.ClientEvent) {
	oldRoom, hadRoom := session.Room()
	rejoin := hadRoom && oldRoom == event.RoomID

	// joining while in a room is a switch: leave the old room first, but only
	// once the target room is known to exist, so a bad room id cannot evict
	// the user from their current room
	if hadRoom && !rejoin {
		if err := s.uc.CheckRoomExists(event.RoomID); err != nil {
			s.sendError(session.ID, err)
			return
		}
		s.leaveRoom(session, oldRoom)
	}

	res, err := s.uc.JoinRoom(event.RoomID, event.Username, s.cfg.HistoryLimit)
	if err != nil {
		s.sendError(session.ID, err)
		return
	}
	session.Identify(res.User.ID, res.User.Name)
	session.SetRoom(res.Room.ID)
	s.registry.Subscribe(session.ID, res.Room.ID, res.User.ID)

	s.unicast(session.ID, domain.NewConnectedEvent(res.User.DTO(), res.Room.DTO(), res.OnlineUsers))
	s.unicast(session.ID, domain.NewRoomHistoryEvent(res.Room.ID, res.Messages, res.HasMore))
	// a rejoin of the current room only replays the snapshot; peers were
	// already notified
	if !rejoin {
		s.registry.Broadcast(res.Room.ID, domain.NewUserJoinedEvent(res.Room.ID, res.User.DTO()), session.ID)
	}
	s.logger.Info("user joined room", "conn", session.ID, "user", res.User.Name, "room", res.Room.ID)
}

func (s *SessionUsecase) handleLeave(session *domain.Session) {
	if _, _, ok := session.Identity(); !ok {
		return
	}
	roomID, ok := session.Room()
	if !ok {
		return
	}
	s.leaveRoom(session, roomID)
}

// leaveRoom performs the leave cascade for the session's given room. The
// in-memory bookkeeping and the peer broadcast happen even when the persisted
// side fails.
func (s *SessionUsecase) leaveRoom(session *domain.Session, roomID string) {
	session.CancelTyping()
	s.registry.Unsubscribe(session.ID)
	session.ClearRoom()

	userID, username, _ := session.Identity()
	if err := s.uc.LeaveRoom(userID, roomID); err != nil {
		s.logger.Warn("leave room", "conn", session.ID, "room", roomID, "error", err)
		s.sendError(session.ID, err)
	}
	s.registry.Broadcast(roomID, domain.NewUserLeftEvent(roomID, userID, username), session.ID)
}

func (s *SessionUsecase) handleSend(session *domain.Session, event domain.ClientEvent) {
	userID, username, ok := session.Identity()
	if !ok {
		s.sendErrorEvent(session.ID, domain.CodeUnauthorized, "join a room first")
		return
	}
	roomID, ok := session.Room()
	if !ok {
		s.sendErrorEvent(session.ID, domain.CodeUnauthorized, "no active room")
		return
	}
	if !session.AllowMessage(s.now(), s.cfg.RateWindow, s.cfg.RateLimit) {
		s.sendErrorEvent(session.ID, domain.CodeRateLimited, "message rate limit exceeded")
		return
	}

	// sending counts as having stopped typing
	if session.TypingArmed() {
		session.CancelTyping()
		s.registry.Broadcast(roomID, domain.NewStoppedTypingEvent(roomID, userID, username), session.ID)
	}

	dto, err := s.uc.SendMessage(roomID, userID, event.Content, event.ReplyTo)
	if err != nil {
		s.sendError(session.ID, err)
		return
	}
	s.registry.Broadcast(roomID, domain.NewMessageReceivedEvent(dto), "")
}

func (s *SessionUsecase) handleEdit(session *domain.Session, event domain.ClientEvent) {
	userID, _, ok := session.Identity()
	if !ok {
		s.sendErrorEvent(session.ID, domain.CodeUnauthorized, "join a room first")
		return
	}
	dto, err := s.uc.EditMessage(event.MessageID, userID, event.Content)
	if err != nil {
		s.sendError(session.ID, err)
		return
	}
	if roomID, ok := session.Room(); ok {
		s.registry.Broadcast(roomID, domain.NewMessageEditedEvent(dto), "")
	}
}

func (s *SessionUsecase) handleDelete(session *domain.Session, event domain.ClientEvent) {
	userID, _, ok := session.Identity()
	if !ok {
		s.sendErrorEvent(session.ID, domain.CodeUnauthorized, "join a room first")
		return
	}
	if _, err := s.uc.DeleteMessage(event.MessageID, userID); err != nil {
		s.sendError(session.ID, err)
		return
	}
	if roomID, ok := session.Room(); ok {
		s.registry.Broadcast(roomID, domain.NewMessageDeletedEvent(roomID, event.MessageID), "")
	}
}

func (s *SessionUsecase) handleTypingStart(session *domain.Session) {
	userID, username, ok := session.Identity()
	if !ok {
		return
	}
	roomID, ok := session.Room()
	if !ok {
		return
	}
	s.registry.Broadcast(roomID, domain.NewTypingEvent(roomID, userID, username), session.ID)
	connID := session.ID
	session.ArmTyping(s.cfg.TypingTimeout, func() {
		s.autoStopTyping(connID)
	})
}

func (s *SessionUsecase) handleTypingStop(session *domain.Session) {
	userID, username, ok := session.Identity()
	if !ok {
		return
	}
	roomID, ok := session.Room()
	if !ok {
		return
	}
	session.CancelTyping()
	s.registry.Broadcast(roomID, domain.NewStoppedTypingEvent(roomID, userID, username), session.ID)
}

// autoStopTyping fires when a typing timer elapses; it behaves like an
// inbound TYPING_STOP for whatever room the connection is in by then. The
// connection may already be gone, which is fine.
func (s *SessionUsecase) autoStopTyping(connID string) {
	session, ok := s.registry.Session(connID)
	if !ok {
		return
	}
	userID, username, ok := session.Identity()
	if !ok {
		return
	}
	roomID, ok := session.Room()
	if !ok {
		return
	}
	s.registry.Broadcast(roomID, domain.NewStoppedTypingEvent(roomID, userID, username), connID)
}

func (s *SessionUsecase) handleStatus(session *domain.Session, event domain.ClientEvent) {
	userID, _, ok := session.Identity()
	if !ok {
		s.sendErrorEvent(session.ID, domain.CodeUnauthorized, "join a room first")
		return
	}
	user, err := s.uc.UpdateStatus(userID, domain.UserStatus(event.Status))
	if err != nil {
		s.sendError(session.ID, err)
		return
	}
	s.statusBus.Publish(domain.StatusChange{User: user})
}

// fanoutStatus broadcasts USER_STATUS_CHANGED to every room the user
// participates in. This is the one fan-out that targets multiple rooms.
func (s *SessionUsecase) fanoutStatus(user domain.User) {
	rooms, err := s.uc.UserRooms(user.ID)
	if err != nil {
		s.logger.Warn("resolve rooms for status fan-out", "user", user.ID, "error", err)
		return
	}
	event := domain.NewStatusChangedEvent(user.DTO())
	for _, roomID := range rooms {
		s.registry.Broadcast(roomID, event, "")
	}
}

func (s *SessionUsecase) sendError(connID string, err error) {
	code := domain.CodeOf(err)
	message := "internal error"
	var se domain.StatusError
	if errors.As(err, &se) && code != domain.CodeInternal {
		message = se.Message
	} else {
		// internal detail stays in the log
		s.logger.Error("internal error handling frame", "conn", connID, "error", err)
	}
	s.sendErrorEvent(connID, code, message)
}

func (s *SessionUsecase) sendErrorEvent(connID string, code domain.ErrorCode, message string) {
	s.unicast(connID, domain.NewErrorEvent(code, message))
}

func (s *SessionUsecase) unicast(connID string, event any) {
	if err := s.registry.Unicast(connID, event); err != nil {
		s.logger.Warn("drop unicast", "conn", connID, "error", err)
	}
}
