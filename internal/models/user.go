package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Email        string      `json:"email" db:"email"`
	PasswordHash string      `json:"-" db:"password_hash"`
	Role         Role        `json:"role" db:"role"`
	Followers    []uuid.UUID `json:"followers"`
	Following    []uuid.UUID `json:"following"`
	LastLoginIP  string      `json:"-" db:"last_login_ip"`
	LastActiveAt time.Time   `json:"lastActiveAt" db:"last_active_at"`
	CreatedAt    time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time   `json:"updatedAt" db:"updated_at"`
}

// UserInfo is the public projection of a user shown on directory and profile pages.
type UserInfo struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

func (u *User) Info() UserInfo {
	return UserInfo{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		LastActiveAt: u.LastActiveAt,
	}
}

// IsFollowing reports whether u follows other.
func (u *User) IsFollowing(other uuid.UUID) bool {
	return ContainsID(u.Following, other)
}

// IsFollowedBy reports whether other follows u.
func (u *User) IsFollowedBy(other uuid.UUID) bool {
	return ContainsID(u.Followers, other)
}

// ContainsID reports whether id is in ids.
func ContainsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// AppendUnique appends id to ids unless already present.
func AppendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	if ContainsID(ids, id) {
		return ids
	}
	return append(ids, id)
}

// RemoveID returns ids without any occurrence of id.
func RemoveID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
