// internal/database/memory.go
package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
)

// MemoryDB keeps everything in process memory. It backs DB_TYPE=memory and
// the engine and handler tests. Every read returns a copy.
type MemoryDB struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]*models.User
	emails        map[string]uuid.UUID
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID]*models.Message
	sessions      map[string]*models.Session
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:         make(map[uuid.UUID]*models.User),
		emails:        make(map[string]uuid.UUID),
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID]*models.Message),
		sessions:      make(map[string]*models.Session),
	}
}

func (m *MemoryDB) Close(ctx context.Context) error { return nil }

// --- User Methods ---

func (m *MemoryDB) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := m.emails[key]; exists {
		return utils.NewAppError(utils.ErrUserAlreadyExists, "User with this email already exists", nil)
	}
	stampUser(user)
	m.users[user.ID] = copyUser(user)
	m.emails[key] = user.ID
	return nil
}

func (m *MemoryDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, utils.NewUserNotFoundError(id.String())
	}
	return copyUser(u), nil
}

func (m *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, utils.NewAppError(utils.ErrUserNotFound, "User not found", nil)
	}
	return copyUser(m.users[id]), nil
}

func (m *MemoryDB) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			users = append(users, copyUser(u))
		}
	}
	return users, nil
}

func (m *MemoryDB) ListUsersExcept(ctx context.Context, id uuid.UUID) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]*models.User, 0, len(m.users))
	for uid, u := range m.users {
		if uid != id {
			users = append(users, copyUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (m *MemoryDB) UpdateUserName(ctx context.Context, id uuid.UUID, name string) error {
	return m.updateUser(id, func(u *models.User) { u.Name = name })
}

func (m *MemoryDB) UpdateUserLogin(ctx context.Context, id uuid.UUID, ip string) error {
	now := time.Now()
	return m.updateUser(id, func(u *models.User) {
		u.LastLoginIP = ip
		u.LastActiveAt = now
	})
}

func (m *MemoryDB) UpdateUserActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.updateUser(id, func(u *models.User) { u.LastActiveAt = at })
}

func (m *MemoryDB) updateUser(id uuid.UUID, apply func(u *models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return utils.NewUserNotFoundError(id.String())
	}
	apply(u)
	u.UpdatedAt = time.Now()
	return nil
}

// --- Follow Graph ---

func (m *MemoryDB) AddFollow(ctx context.Context, targetID, followerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, follower, err := m.followPair(targetID, followerID)
	if err != nil {
		return err
	}
	now := time.Now()
	target.Followers = models.AppendUnique(target.Followers, followerID)
	follower.Following = models.AppendUnique(follower.Following, targetID)
	target.UpdatedAt, follower.UpdatedAt = now, now
	return nil
}

func (m *MemoryDB) RemoveFollow(ctx context.Context, targetID, followerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, follower, err := m.followPair(targetID, followerID)
	if err != nil {
		return err
	}
	now := time.Now()
	target.Followers = models.RemoveID(target.Followers, followerID)
	follower.Following = models.RemoveID(follower.Following, targetID)
	target.UpdatedAt, follower.UpdatedAt = now, now
	return nil
}

func (m *MemoryDB) followPair(targetID, followerID uuid.UUID) (*models.User, *models.User, error) {
	if targetID == followerID {
		return nil, nil, utils.NewInvalidInputError("a user cannot follow themselves")
	}
	target, ok := m.users[targetID]
	if !ok {
		return nil, nil, utils.NewUserNotFoundError(targetID.String())
	}
	follower, ok := m.users[followerID]
	if !ok {
		return nil, nil, utils.NewUserNotFoundError(followerID.String())
	}
	return target, follower, nil
}

// --- Conversation Methods ---

func (m *MemoryDB) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stampConversation(conv)
	m.conversations[conv.ID] = copyConversation(conv)
	return nil
}

func (m *MemoryDB) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, utils.NewConversationNotFoundError(id.String())
	}
	return copyConversation(c), nil
}

func (m *MemoryDB) FindConversationByMembers(ctx context.Context, firstID, secondID uuid.UUID) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *models.Conversation
	for _, c := range m.conversations {
		if c.Type != models.ConversationNormalChat || !c.HasMember(firstID) || !c.HasMember(secondID) {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			found = c
		}
	}
	if found == nil {
		return nil, utils.NewAppError(utils.ErrConversationNotFound, "Conversation not found for members", nil)
	}
	return copyConversation(found), nil
}

func (m *MemoryDB) ListConversations(ctx context.Context, userID uuid.UUID, status models.ConversationStatus, newestFirst bool) ([]*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	withMessages := make(map[uuid.UUID]bool)
	for _, msg := range m.messages {
		withMessages[msg.ConversationID] = true
	}

	convs := make([]*models.Conversation, 0)
	for _, c := range m.conversations {
		if c.Status == status && c.HasMember(userID) && withMessages[c.ID] {
			convs = append(convs, copyConversation(c))
		}
	}
	sortConversations(convs, newestFirst)
	return convs, nil
}

func (m *MemoryDB) UpdateConversationStatus(ctx context.Context, id uuid.UUID, status models.ConversationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return utils.NewConversationNotFoundError(id.String())
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryDB) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return utils.NewConversationNotFoundError(id.String())
	}
	for mid, msg := range m.messages {
		if msg.ConversationID == id {
			delete(m.messages, mid)
		}
	}
	delete(m.conversations, id)
	return nil
}

// --- Message Methods ---

func (m *MemoryDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[msg.ConversationID]
	if !ok {
		return utils.NewConversationNotFoundError(msg.ConversationID.String())
	}
	stampMessage(msg)
	m.messages[msg.ID] = copyMessage(msg)
	c.UpdatedAt = msg.CreatedAt
	return nil
}

func (m *MemoryDB) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, utils.NewMessageNotFoundError(id.String())
	}
	return m.withSenderName(copyMessage(msg)), nil
}

func (m *MemoryDB) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := make([]*models.Message, 0)
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			msgs = append(msgs, m.withSenderName(copyMessage(msg)))
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

func (m *MemoryDB) AddMessageDeleteFor(ctx context.Context, messageID, userID uuid.UUID) error {
	return m.updateMessage(messageID, func(msg *models.Message) {
		msg.DeleteFor = models.AppendUnique(msg.DeleteFor, userID)
	})
}

func (m *MemoryDB) AddMessageSeen(ctx context.Context, messageID, userID uuid.UUID) error {
	return m.updateMessage(messageID, func(msg *models.Message) {
		msg.SeenIDs = models.AppendUnique(msg.SeenIDs, userID)
	})
}

func (m *MemoryDB) updateMessage(id uuid.UUID, apply func(msg *models.Message)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return utils.NewMessageNotFoundError(id.String())
	}
	apply(msg)
	msg.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryDB) withSenderName(msg *models.Message) *models.Message {
	if u, ok := m.users[msg.SenderID]; ok {
		msg.SenderName = u.Name
	}
	return msg
}

// --- Session Methods ---

func (m *MemoryDB) CreateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	s := *session
	m.sessions[session.TokenHash] = &s
	return nil
}

func (m *MemoryDB) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "session not found", nil)
	}
	out := *s
	return &out, nil
}

func (m *MemoryDB) DeleteSession(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

// --- helpers shared by every backend ---

func stampUser(user *models.User) {
	now := time.Now()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.LastActiveAt.IsZero() {
		user.LastActiveAt = now
	}
	user.UpdatedAt = now
	if user.Followers == nil {
		user.Followers = []uuid.UUID{}
	}
	if user.Following == nil {
		user.Following = []uuid.UUID{}
	}
}

func stampConversation(conv *models.Conversation) {
	now := time.Now()
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.Type == "" {
		conv.Type = models.TypeForMembers(len(conv.UserIDs))
	}
	if conv.Status == "" {
		conv.Status = models.StatusNormal
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
}

func stampMessage(msg *models.Message) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.UpdatedAt = msg.CreatedAt
	if msg.SeenIDs == nil {
		msg.SeenIDs = []uuid.UUID{}
	}
	if msg.DeleteFor == nil {
		msg.DeleteFor = []uuid.UUID{}
	}
}

func sortConversations(convs []*models.Conversation, newestFirst bool) {
	sort.SliceStable(convs, func(i, j int) bool {
		if newestFirst {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].UpdatedAt.Before(convs[j].UpdatedAt)
	})
}

func copyIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	return out
}

func copyUser(u *models.User) *models.User {
	out := *u
	out.Followers = copyIDs(u.Followers)
	out.Following = copyIDs(u.Following)
	return &out
}

func copyConversation(c *models.Conversation) *models.Conversation {
	out := *c
	out.UserIDs = copyIDs(c.UserIDs)
	return &out
}

func copyMessage(msg *models.Message) *models.Message {
	out := *msg
	out.SeenIDs = copyIDs(msg.SeenIDs)
	out.DeleteFor = copyIDs(msg.DeleteFor)
	return &out
}
