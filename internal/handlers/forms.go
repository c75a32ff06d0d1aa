package handlers

import (
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/google/uuid"
)

// SignUpForm is the registration form
type SignUpForm struct {
	Name     string `form:"name" validate:"required"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=8"`
}

// LoginForm is the login form
type LoginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

// ForgotPasswordForm asks for a reset link
type ForgotPasswordForm struct {
	Email string `form:"email" validate:"required,email"`
}

// SettingForm edits the current user's profile
type SettingForm struct {
	Name string `form:"name" validate:"required"`
}

// FollowForm is posted from the users and friends pages
type FollowForm struct {
	Type   string `form:"type" validate:"required,oneof=follow unfollow"`
	UserID string `form:"userId" validate:"required,uuid"`
}

// ChatIndexForm is posted from the chat list
type ChatIndexForm struct {
	Type           string `form:"type" validate:"required,oneof=delete"`
	ConversationID string `form:"conversationId" validate:"required,uuid"`
}

// ChatForm is posted from a single conversation
type ChatForm struct {
	Type      string `form:"type" validate:"required,oneof=send delete seen accept"`
	Message   string `form:"message" validate:"required_if=Type send"`
	MessageID string `form:"messageId" validate:"required_if=Type delete,required_if=Type seen,omitempty,uuid"`
}

// RedirectChatForm opens the conversation with another user
type RedirectChatForm struct {
	RequestUserID string `form:"requestUserId" validate:"required,uuid"`
}

// TypingForm signals that the current user is typing to id
type TypingForm struct {
	ID string `form:"id" validate:"required,uuid"`
}

// formTagName makes validator report fields by their form name.
func formTagName(f reflect.StructField) string {
	return f.Tag.Get("form")
}

// submitted returns the posted values, passwords excluded.
func submitted(r *http.Request) map[string]string {
	fields := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if k == "password" || len(v) == 0 {
			continue
		}
		fields[k] = v[0]
	}
	return fields
}

// newFormDecoder reads the same `form` tags the validator reports by.
func newFormDecoder() *form.Decoder {
	decoder := form.NewDecoder()
	decoder.SetTagName("form")
	return decoder
}

// bindForm parses the request body into dst and validates it. On failure
// the returned FormError is ready to send.
func (s *Server) bindForm(r *http.Request, dst interface{}) *FormError {
	if err := r.ParseForm(); err != nil {
		return &FormError{Message: "Invalid form data"}
	}
	if err := s.decoder.Decode(dst, trimmed(r.PostForm)); err != nil {
		return &FormError{Fields: submitted(r), Message: "Invalid form data"}
	}
	if err := s.validate.Struct(dst); err != nil {
		return &FormError{
			Fields:  submitted(r),
			Errors:  fieldMessages(err),
			Message: "Invalid form data",
		}
	}
	return nil
}

// trimmed copies values with surrounding whitespace removed. Passwords are
// kept as typed.
func trimmed(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for k, vs := range values {
		if k == "password" {
			out[k] = vs
			continue
		}
		cleaned := make([]string, len(vs))
		for i, v := range vs {
			cleaned[i] = strings.TrimSpace(v)
		}
		out[k] = cleaned
	}
	return out
}

// mustUUID is for values that already passed the uuid validator.
func mustUUID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}
