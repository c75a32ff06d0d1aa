package utils

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrDuplicate    = "DUPLICATE"
	ErrInvalidInput = "INVALID_INPUT"

	// Authentication/Authorization errors
	ErrUnauthorized = "UNAUTHORIZED"
	ErrForbidden    = "FORBIDDEN" // User is authenticated but doesn't have permission
	ErrInvalidToken = "INVALID_TOKEN"

	// User-specific errors
	ErrUserNotFound       = "USER_NOT_FOUND"
	ErrUserAlreadyExists  = "USER_ALREADY_EXISTS"
	ErrInvalidCredentials = "INVALID_CREDENTIALS"
	ErrAlreadyFollowing   = "ALREADY_FOLLOWING"

	// Chat-specific errors
	ErrConversationNotFound  = "CONVERSATION_NOT_FOUND"
	ErrMessageNotFound       = "MESSAGE_NOT_FOUND"
	ErrNotConversationMember = "NOT_CONVERSATION_MEMBER"

	// Actor communication errors
	ErrActorTimeout = "ACTOR_TIMEOUT"

	ErrDatabase = "database_error"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

// Specific error creators for common cases
func NewUserNotFoundError(userId string) *AppError {
	return &AppError{
		Code:    ErrUserNotFound,
		Message: "User not found: " + userId,
	}
}

func NewConversationNotFoundError(conversationId string) *AppError {
	return &AppError{
		Code:    ErrConversationNotFound,
		Message: "Conversation not found: " + conversationId,
	}
}

func NewMessageNotFoundError(messageId string) *AppError {
	return &AppError{
		Code:    ErrMessageNotFound,
		Message: "Message not found: " + messageId,
	}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Unauthorized: " + reason,
	}
}

func NewInvalidInputError(message string) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: message,
	}
}

func NewDatabaseError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrDatabase,
		Message: message,
		Origin:  err,
	}
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound covers the generic and every entity-specific not-found code.
func IsNotFound(err error) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}
	switch appErr.Code {
	case ErrNotFound, ErrUserNotFound, ErrConversationNotFound, ErrMessageNotFound:
		return true
	}
	return false
}

// Helper method to check if an error is related to authentication
func IsAuthError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == ErrUnauthorized ||
			appErr.Code == ErrInvalidToken
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound, ErrUserNotFound, ErrConversationNotFound, ErrMessageNotFound:
		return http.StatusNotFound
	case ErrInvalidInput, ErrInvalidCredentials, ErrAlreadyFollowing:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken:
		return http.StatusUnauthorized
	case ErrForbidden, ErrNotConversationMember:
		return http.StatusForbidden
	case ErrDuplicate, ErrUserAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
