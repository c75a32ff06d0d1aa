// internal/database/postgres_chat.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type conversationRow struct {
	ID        uuid.UUID      `db:"id"`
	UserIDs   pq.StringArray `db:"user_ids"`
	Type      string         `db:"type"`
	Status    string         `db:"status"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

const conversationColumns = `c.id, c.user_ids, c.type, c.status, c.created_at, c.updated_at`

func (r *conversationRow) toModel() (*models.Conversation, error) {
	members, err := parseUUIDs(r.UserIDs)
	if err != nil {
		return nil, err
	}
	return &models.Conversation{
		ID:        r.ID,
		UserIDs:   members,
		Type:      models.ConversationType(r.Type),
		Status:    models.ConversationStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

type messageRow struct {
	ID             uuid.UUID      `db:"id"`
	ConversationID uuid.UUID      `db:"conversation_id"`
	SenderID       uuid.UUID      `db:"sender_id"`
	SenderName     string         `db:"sender_name"`
	Text           string         `db:"message"`
	SeenIDs        pq.StringArray `db:"seen_ids"`
	DeleteFor      pq.StringArray `db:"delete_for"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

const messageColumns = `m.id, m.conversation_id, m.sender_id, COALESCE(u.name, '') AS sender_name, m.message, m.seen_ids, m.delete_for, m.created_at, m.updated_at`

func (r *messageRow) toModel() (*models.Message, error) {
	seen, err := parseUUIDs(r.SeenIDs)
	if err != nil {
		return nil, err
	}
	deleteFor, err := parseUUIDs(r.DeleteFor)
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		SenderName:     r.SenderName,
		Text:           r.Text,
		SeenIDs:        seen,
		DeleteFor:      deleteFor,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

// --- Conversation Methods ---

// CreateConversation inserts a conversation. No uniqueness is enforced on the member set.
func (p *PostgresDB) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	stampConversation(conv)
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO conversations (id, user_ids, type, status, created_at, updated_at)
		VALUES ($1, $2::uuid[], $3, $4, $5, $6)
	`, conv.ID, uuidArray(conv.UserIDs), string(conv.Type), string(conv.Status), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return utils.NewDatabaseError("failed to create conversation", err)
	}
	return nil
}

func (p *PostgresDB) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var row conversationRow
	err := p.DB.GetContext(ctx, &row, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewConversationNotFoundError(id.String())
		}
		return nil, utils.NewDatabaseError("failed to query conversation", err)
	}
	return row.toModel()
}

// FindConversationByMembers returns the oldest direct conversation containing both users.
func (p *PostgresDB) FindConversationByMembers(ctx context.Context, firstID, secondID uuid.UUID) (*models.Conversation, error) {
	var row conversationRow
	err := p.DB.GetContext(ctx, &row, `
		SELECT `+conversationColumns+` FROM conversations c
		WHERE c.user_ids @> $1::uuid[] AND c.type = $2
		ORDER BY c.created_at ASC
		LIMIT 1
	`, uuidArray([]uuid.UUID{firstID, secondID}), string(models.ConversationNormalChat))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrConversationNotFound, "Conversation not found for members", err)
		}
		return nil, utils.NewDatabaseError("failed to query conversation by members", err)
	}
	return row.toModel()
}

// ListConversations returns the user's conversations in status that hold at least one message.
func (p *PostgresDB) ListConversations(ctx context.Context, userID uuid.UUID, status models.ConversationStatus, newestFirst bool) ([]*models.Conversation, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	query := `
		SELECT ` + conversationColumns + ` FROM conversations c
		WHERE $1::uuid = ANY(c.user_ids)
		  AND c.status = $2
		  AND EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id)
		ORDER BY c.updated_at ` + order

	var rows []conversationRow
	if err := p.DB.SelectContext(ctx, &rows, query, userID, string(status)); err != nil {
		return nil, utils.NewDatabaseError("failed to list conversations", err)
	}
	convs := make([]*models.Conversation, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, nil
}

func (p *PostgresDB) UpdateConversationStatus(ctx context.Context, id uuid.UUID, status models.ConversationStatus) error {
	result, err := p.DB.ExecContext(ctx,
		`UPDATE conversations SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return utils.NewDatabaseError("failed to update conversation status", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return utils.NewConversationNotFoundError(id.String())
	}
	return nil
}

// DeleteConversation removes the conversation's messages and then the conversation in one transaction.
func (p *PostgresDB) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewDatabaseError("failed to begin delete transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
		return utils.NewDatabaseError("failed to delete conversation messages", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return utils.NewDatabaseError("failed to delete conversation", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return utils.NewConversationNotFoundError(id.String())
	}

	if err := tx.Commit(); err != nil {
		return utils.NewDatabaseError("failed to commit delete transaction", err)
	}
	return nil
}

// --- Message Methods ---

// CreateMessage inserts the message and bumps the conversation's updated_at together.
func (p *PostgresDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	stampMessage(msg)

	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewDatabaseError("failed to begin message transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE id = $1`, msg.ConversationID, msg.CreatedAt)
	if err != nil {
		return utils.NewDatabaseError("failed to touch conversation", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return utils.NewConversationNotFoundError(msg.ConversationID.String())
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, message, seen_ids, delete_for, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::uuid[], $6::uuid[], $7, $8)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Text,
		uuidArray(msg.SeenIDs), uuidArray(msg.DeleteFor), msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return utils.NewDatabaseError("failed to save message", err)
	}

	if err := tx.Commit(); err != nil {
		return utils.NewDatabaseError("failed to commit message transaction", err)
	}
	return nil
}

func (p *PostgresDB) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var row messageRow
	err := p.DB.GetContext(ctx, &row, `
		SELECT `+messageColumns+` FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewMessageNotFoundError(id.String())
		}
		return nil, utils.NewDatabaseError("failed to query message", err)
	}
	return row.toModel()
}

func (p *PostgresDB) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	var rows []messageRow
	err := p.DB.SelectContext(ctx, &rows, `
		SELECT `+messageColumns+` FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1
		ORDER BY m.created_at ASC`, conversationID)
	if err != nil {
		return nil, utils.NewDatabaseError("failed to list messages", err)
	}
	msgs := make([]*models.Message, 0, len(rows))
	for i := range rows {
		msg, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// AddMessageDeleteFor hides the message for userID only.
func (p *PostgresDB) AddMessageDeleteFor(ctx context.Context, messageID, userID uuid.UUID) error {
	return p.appendMessageID(ctx, messageID, userID, "failed to delete message for user",
		`UPDATE messages SET delete_for = CASE WHEN $2::uuid = ANY(delete_for) THEN delete_for ELSE array_append(delete_for, $2::uuid) END, updated_at = NOW() WHERE id = $1`)
}

func (p *PostgresDB) AddMessageSeen(ctx context.Context, messageID, userID uuid.UUID) error {
	return p.appendMessageID(ctx, messageID, userID, "failed to mark message seen",
		`UPDATE messages SET seen_ids = CASE WHEN $2::uuid = ANY(seen_ids) THEN seen_ids ELSE array_append(seen_ids, $2::uuid) END, updated_at = NOW() WHERE id = $1`)
}

func (p *PostgresDB) appendMessageID(ctx context.Context, messageID, userID uuid.UUID, failure, query string) error {
	result, err := p.DB.ExecContext(ctx, query, messageID, userID)
	if err != nil {
		return utils.NewDatabaseError(failure, err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return utils.NewMessageNotFoundError(messageID.String())
	}
	return nil
}
