package models

import (
	"time"

	"github.com/google/uuid"
)

// Session maps the digest of an opaque session token to its user.
type Session struct {
	TokenHash string     `json:"-" db:"token_hash"`
	UserID    uuid.UUID  `json:"userId" db:"user_id"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
