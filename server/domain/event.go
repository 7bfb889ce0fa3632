package domain

// EventType tags an inbound client frame. The set is closed; anything else is
// rejected by the schema validator before it reaches the dispatcher.
type EventType string

const (
	EventJoinRoom      EventType = "JOIN_ROOM"
	EventLeaveRoom     EventType = "LEAVE_ROOM"
	EventSendMessage   EventType = "SEND_MESSAGE"
	EventEditMessage   EventType = "EDIT_MESSAGE"
	EventDeleteMessage EventType = "DELETE_MESSAGE"
	EventTypingStart   EventType = "TYPING_START"
	EventTypingStop    EventType = "TYPING_STOP"
	EventUpdateStatus  EventType = "UPDATE_STATUS"
)

// ClientEvent is the decoded, schema-valid form of an inbound frame. Fields
// are populated per event type; unused fields stay zero.
type ClientEvent struct {
	Type      EventType `json:"type"`
	RoomID    string    `json:"roomId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"content,omitempty"`
	ReplyTo   string    `json:"replyTo,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// ServerType tags an outbound server frame.
type ServerType string

const (
	ServerConnected         ServerType = "CONNECTED"
	ServerRoomHistory       ServerType = "ROOM_HISTORY"
	ServerUserJoined        ServerType = "USER_JOINED"
	ServerUserLeft          ServerType = "USER_LEFT"
	ServerMessageReceived   ServerType = "MESSAGE_RECEIVED"
	ServerMessageEdited     ServerType = "MESSAGE_EDITED"
	ServerMessageDeleted    ServerType = "MESSAGE_DELETED"
	ServerUserTyping        ServerType = "USER_TYPING"
	ServerUserStoppedTyping ServerType = "USER_STOPPED_TYPING"
	ServerUserStatusChanged ServerType = "USER_STATUS_CHANGED"
	ServerError             ServerType = "ERROR"
)

// The outbound event shapes below are the project's wire contract; existing
// clients depend on the exact field names.

type ConnectedEvent struct {
	Type        ServerType `json:"type"`
	User        UserDTO    `json:"user"`
	Room        RoomDTO    `json:"room"`
	OnlineUsers []UserDTO  `json:"onlineUsers"`
}

func NewConnectedEvent(user UserDTO, room RoomDTO, online []UserDTO) ConnectedEvent {
	return ConnectedEvent{Type: ServerConnected, User: user, Room: room, OnlineUsers: online}
}

type RoomHistoryEvent struct {
	Type     ServerType   `json:"type"`
	RoomID   string       `json:"roomId"`
	Messages []MessageDTO `json:"messages"`
	HasMore  bool         `json:"hasMore"`
}

func NewRoomHistoryEvent(roomID string, messages []MessageDTO, hasMore bool) RoomHistoryEvent {
	return RoomHistoryEvent{Type: ServerRoomHistory, RoomID: roomID, Messages: messages, HasMore: hasMore}
}

type UserJoinedEvent struct {
	Type   ServerType `json:"type"`
	RoomID string     `json:"roomId"`
	User   UserDTO    `json:"user"`
}

func NewUserJoinedEvent(roomID string, user UserDTO) UserJoinedEvent {
	return UserJoinedEvent{Type: ServerUserJoined, RoomID: roomID, User: user}
}

type UserLeftEvent struct {
	Type     ServerType `json:"type"`
	RoomID   string     `json:"roomId"`
	UserID   string     `json:"userId"`
	Username string     `json:"username"`
}

func NewUserLeftEvent(roomID, userID, username string) UserLeftEvent {
	return UserLeftEvent{Type: ServerUserLeft, RoomID: roomID, UserID: userID, Username: username}
}

type MessageReceivedEvent struct {
	Type    ServerType `json:"type"`
	Message MessageDTO `json:"message"`
}

func NewMessageReceivedEvent(message MessageDTO) MessageReceivedEvent {
	return MessageReceivedEvent{Type: ServerMessageReceived, Message: message}
}

type MessageEditedEvent struct {
	Type    ServerType `json:"type"`
	Message MessageDTO `json:"message"`
}

func NewMessageEditedEvent(message MessageDTO) MessageEditedEvent {
	return MessageEditedEvent{Type: ServerMessageEdited, Message: message}
}

type MessageDeletedEvent struct {
	Type      ServerType `json:"type"`
	RoomID    string     `json:"roomId"`
	MessageID string     `json:"messageId"`
}

func NewMessageDeletedEvent(roomID, messageID string) MessageDeletedEvent {
	return MessageDeletedEvent{Type: ServerMessageDeleted, RoomID: roomID, MessageID: messageID}
}

type TypingEvent struct {
	Type     ServerType `json:"type"`
	RoomID   string     `json:"roomId"`
	UserID   string     `json:"userId"`
	Username string     `json:"username"`
}

func NewTypingEvent(roomID, userID, username string) TypingEvent {
	return TypingEvent{Type: ServerUserTyping, RoomID: roomID, UserID: userID, Username: username}
}

func NewStoppedTypingEvent(roomID, userID, username string) TypingEvent {
	return TypingEvent{Type: ServerUserStoppedTyping, RoomID: roomID, UserID: userID, Username: username}
}

type StatusChangedEvent struct {
	Type     ServerType `json:"type"`
	UserID   string     `json:"userId"`
	Username string     `json:"username"`
	Status   string     `json:"status"`
}

func NewStatusChangedEvent(user UserDTO) StatusChangedEvent {
	return StatusChangedEvent{
		Type:     ServerUserStatusChanged,
		UserID:   user.ID,
		Username: user.Username,
		Status:   user.Status,
	}
}

type ErrorEvent struct {
	Type    ServerType `json:"type"`
	Code    ErrorCode  `json:"code"`
	Message string     `json:"message"`
}

func NewErrorEvent(code ErrorCode, message string) ErrorEvent {
	return ErrorEvent{Type: ServerError, Code: code, Message: message}
}
