// Package schema structurally validates inbound client frames before they
// reach the dispatcher. The event-type set is closed; payload constraints are
// enforced with struct tags.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/ponyo877/chatroom/server/domain"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{2,30}$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	// report violations under the wire-level field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

type joinRoomPayload struct {
	RoomID   string `json:"roomId" validate:"required,min=1,max=50"`
	Username string `json:"username" validate:"required,username"`
}

type sendMessagePayload struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
	ReplyTo string `json:"replyTo" validate:"omitempty,min=1,max=50"`
}

type editMessagePayload struct {
	MessageID string `json:"messageId" validate:"required,min=1,max=50"`
	Content   string `json:"content" validate:"required,min=1,max=2000"`
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId" validate:"required,min=1,max=50"`
}

type updateStatusPayload struct {
	Status string `json:"status" validate:"required,oneof=online away offline"`
}

// Validate parses and validates one raw frame. On success it returns the
// decoded event; otherwise a non-empty list of violation messages.
func (s *Validator) Validate(raw []byte) (domain.ClientEvent, []string) {
	var event domain.ClientEvent
	if !gjson.ValidBytes(raw) {
		return event, []string{"frame is not valid JSON"}
	}
	typ := gjson.GetBytes(raw, "type")
	if !typ.Exists() {
		return event, []string{"missing event type"}
	}
	event.Type = domain.EventType(typ.String())

	switch event.Type {
	case domain.EventJoinRoom:
		var p joinRoomPayload
		if msgs := s.decode(raw, &p); len(msgs) > 0 {
			return event, msgs
		}
		event.RoomID = p.RoomID
		event.Username = p.Username
	case domain.EventSendMessage:
		var p sendMessagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return event, []string{"malformed payload: " + err.Error()}
		}
		p.Content = strings.TrimSpace(p.Content)
		if msgs := violations(s.validate.Struct(p)); len(msgs) > 0 {
			return event, msgs
		}
		event.Content = p.Content
		event.ReplyTo = p.ReplyTo
	case domain.EventEditMessage:
		var p editMessagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return event, []string{"malformed payload: " + err.Error()}
		}
		p.Content = strings.TrimSpace(p.Content)
		if msgs := violations(s.validate.Struct(p)); len(msgs) > 0 {
			return event, msgs
		}
		event.MessageID = p.MessageID
		event.Content = p.Content
	case domain.EventDeleteMessage:
		var p deleteMessagePayload
		if msgs := s.decode(raw, &p); len(msgs) > 0 {
			return event, msgs
		}
		event.MessageID = p.MessageID
	case domain.EventUpdateStatus:
		var p updateStatusPayload
		if msgs := s.decode(raw, &p); len(msgs) > 0 {
			return event, msgs
		}
		event.Status = p.Status
	case domain.EventLeaveRoom, domain.EventTypingStart, domain.EventTypingStop:
		// no payload
	default:
		return event, []string{fmt.Sprintf("unknown event type: %q", typ.String())}
	}
	return event, nil
}

func (s *Validator) decode(raw []byte, payload any) []string {
	if err := json.Unmarshal(raw, payload); err != nil {
		return []string{"malformed payload: " + err.Error()}
	}
	return violations(s.validate.Struct(payload))
}

func violations(err error) []string {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: violates %s constraint", fe.Field(), fe.Tag()))
	}
	return msgs
}
