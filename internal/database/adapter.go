// internal/database/adapter.go
package database

import (
	"context"
	"fmt"
	"time"

	"chit-chat/internal/config"
	"chit-chat/internal/models"

	"github.com/google/uuid"
)

// DBAdapter defines the common interface for database operations.
// PostgreSQL is the primary backend; MongoDB and an in-memory store
// implement the same contract.
type DBAdapter interface {
	// Connection
	Close(ctx context.Context) error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error)
	ListUsersExcept(ctx context.Context, id uuid.UUID) ([]*models.User, error)
	UpdateUserName(ctx context.Context, id uuid.UUID, name string) error
	UpdateUserLogin(ctx context.Context, id uuid.UUID, ip string) error
	UpdateUserActivity(ctx context.Context, id uuid.UUID, at time.Time) error

	// Follow graph. Both sides of the edge are written atomically.
	AddFollow(ctx context.Context, targetID, followerID uuid.UUID) error
	RemoveFollow(ctx context.Context, targetID, followerID uuid.UUID) error

	// Conversation methods
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	FindConversationByMembers(ctx context.Context, firstID, secondID uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID, status models.ConversationStatus, newestFirst bool) ([]*models.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id uuid.UUID, status models.ConversationStatus) error
	DeleteConversation(ctx context.Context, id uuid.UUID) error

	// Message methods
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error)
	AddMessageDeleteFor(ctx context.Context, messageID, userID uuid.UUID) error
	AddMessageSeen(ctx context.Context, messageID, userID uuid.UUID) error

	// Session methods
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
}

// Open connects the backend selected by cfg.Type and prepares its schema.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (DBAdapter, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryDB(), nil
	case "mongo":
		m, err := NewMongoDB(cfg.URI, cfg.Name)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			m.Close(ctx)
			return nil, err
		}
		return m, nil
	case "postgres":
		p, err := NewPostgresDB(cfg.URI)
		if err != nil {
			return nil, err
		}
		if err := p.InitializeTables(ctx); err != nil {
			p.Close(ctx)
			return nil, fmt.Errorf("failed to initialize database tables: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

var (
	_ DBAdapter = (*PostgresDB)(nil)
	_ DBAdapter = (*MongoDB)(nil)
	_ DBAdapter = (*MemoryDB)(nil)
)
