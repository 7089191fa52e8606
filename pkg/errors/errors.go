package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound               = "NOT_FOUND"
	CodeBadRequest             = "BAD_REQUEST"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInternal               = "INTERNAL_ERROR"
	CodeTooManyRequests        = "TOO_MANY_REQUESTS"
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeNotAParticipant        = "NOT_A_PARTICIPANT"
	CodeSelfConversation       = "SELF_CONVERSATION"
	CodeEmptyMessage           = "EMPTY_MESSAGE"
	CodePersistence            = "PERSISTENCE_ERROR"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
	Details map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// With attaches a detail key to the error and returns it for chaining.
func (e *AppError) With(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// Validation reports malformed input. Callers must fix the input and resubmit.
func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func InvalidTransition(entity, id, from, to string) *AppError {
	return (&AppError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("%s %s cannot move from %s to %s", entity, id, from, to),
		Status:  http.StatusConflict,
	}).With("id", id).With("from", from).With("to", to)
}

// ConcurrentModification means the caller lost a race; retry with fresh state.
func ConcurrentModification(entity, id string) *AppError {
	return (&AppError{
		Code:    CodeConcurrentModification,
		Message: fmt.Sprintf("%s %s was modified concurrently", entity, id),
		Status:  http.StatusConflict,
	}).With("id", id)
}

func NotAParticipant(conversationID, userID string) *AppError {
	return (&AppError{
		Code:    CodeNotAParticipant,
		Message: "user is not a participant of this conversation",
		Status:  http.StatusForbidden,
	}).With("conversation_id", conversationID).With("user_id", userID)
}

func SelfConversation(userID string) *AppError {
	return (&AppError{
		Code:    CodeSelfConversation,
		Message: "cannot open a conversation with yourself",
		Status:  http.StatusBadRequest,
	}).With("user_id", userID)
}

func EmptyMessage(conversationID string) *AppError {
	return (&AppError{
		Code:    CodeEmptyMessage,
		Message: "message body is empty",
		Status:  http.StatusBadRequest,
	}).With("conversation_id", conversationID)
}

// Persistence wraps a transient storage failure. The whole operation is safe to retry.
func Persistence(message string, err error) *AppError {
	return &AppError{
		Code:    CodePersistence,
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsRetryable(err error) bool {
	return Is(err, CodeConcurrentModification) || Is(err, CodePersistence)
}

// As is errors.As, re-exported so callers don't need both packages.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
