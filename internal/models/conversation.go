package models

import (
	"time"

	"github.com/google/uuid"
)

type ConversationType string

const (
	ConversationNormalChat ConversationType = "NORMAL_CHAT"
	ConversationGroupChat  ConversationType = "GROUP_CHAT"
)

type ConversationStatus string

const (
	StatusNormal  ConversationStatus = "NORMAL"
	StatusRequest ConversationStatus = "REQUEST"
)

func (s ConversationStatus) Valid() bool {
	return s == StatusNormal || s == StatusRequest
}

type Conversation struct {
	ID        uuid.UUID          `json:"id" db:"id"`
	UserIDs   []uuid.UUID        `json:"userIds"`
	Type      ConversationType   `json:"type" db:"type"`
	Status    ConversationStatus `json:"status" db:"status"`
	CreatedAt time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time          `json:"updatedAt" db:"updated_at"`
}

// TypeForMembers derives the conversation type from its member count.
func TypeForMembers(memberCount int) ConversationType {
	if memberCount > 2 {
		return ConversationGroupChat
	}
	return ConversationNormalChat
}

func (c *Conversation) HasMember(userID uuid.UUID) bool {
	return ContainsID(c.UserIDs, userID)
}

// OtherMembers lists every member except userID.
func (c *Conversation) OtherMembers(userID uuid.UUID) []uuid.UUID {
	return RemoveID(c.UserIDs, userID)
}

// ConversationView is a conversation with its members resolved and its
// messages filtered for one viewer.
type ConversationView struct {
	Conversation
	Members  []UserInfo `json:"users"`
	Messages []Message  `json:"messages"`
}
