package domain

import "errors"

// ErrorCode is a wire-level error code carried by ERROR frames.
type ErrorCode string

const (
	CodeRoomNotFound    ErrorCode = "ROOM_NOT_FOUND"
	CodeUserNotFound    ErrorCode = "USER_NOT_FOUND"
	CodeMessageNotFound ErrorCode = "MESSAGE_NOT_FOUND"
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeInvalidMessage  ErrorCode = "INVALID_MESSAGE"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StatusError is a business failure that crosses the usecase boundary with a
// code from the closed set above.
type StatusError struct {
	Code    ErrorCode
	Message string
}

func (e StatusError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func NewStatusError(code ErrorCode, message string) error {
	return StatusError{Code: code, Message: message}
}

// CodeOf extracts the wire code of an error. Anything that is not a
// StatusError, or carries a code the frame schema does not recognize, maps to
// INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var se StatusError
	if !errors.As(err, &se) {
		return CodeInternal
	}
	switch se.Code {
	case CodeRoomNotFound, CodeUserNotFound, CodeMessageNotFound,
		CodeUnauthorized, CodeRateLimited, CodeInvalidMessage:
		return se.Code
	default:
		return CodeInternal
	}
}
