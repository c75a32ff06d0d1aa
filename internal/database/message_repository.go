// internal/database/message_repository.go
package database

import (
	"context"
	"fmt"
	"time"

	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageDocument represents the MongoDB document structure for chat messages
type MessageDocument struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversationId"`
	SenderID       string    `bson:"senderId"`
	Text           string    `bson:"message"`
	SeenIDs        []string  `bson:"seenIds"`
	DeleteFor      []string  `bson:"deleteFor"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func (doc *MessageDocument) toModel() (*models.Message, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid message ID in database: %v", err)
	}
	convID, _ := uuid.Parse(doc.ConversationID)
	senderID, _ := uuid.Parse(doc.SenderID)
	seen, err := parseUUIDs(doc.SeenIDs)
	if err != nil {
		return nil, err
	}
	deleteFor, err := parseUUIDs(doc.DeleteFor)
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		Text:           doc.Text,
		SeenIDs:        seen,
		DeleteFor:      deleteFor,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

// CreateMessage saves a message and touches its conversation in one transaction.
func (m *MongoDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	stampMessage(msg)
	doc := MessageDocument{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID.String(),
		Text:           msg.Text,
		SeenIDs:        idStrings(msg.SeenIDs),
		DeleteFor:      idStrings(msg.DeleteFor),
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
	}

	return m.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		result, err := m.Conversations.UpdateOne(sessCtx,
			bson.M{"_id": doc.ConversationID},
			bson.M{"$set": bson.M{"updatedAt": msg.CreatedAt}})
		if err != nil {
			return utils.NewDatabaseError("failed to touch conversation", err)
		}
		if result.MatchedCount == 0 {
			return utils.NewConversationNotFoundError(doc.ConversationID)
		}
		if _, err := m.Messages.InsertOne(sessCtx, doc); err != nil {
			return utils.NewDatabaseError("failed to save message", err)
		}
		return nil
	})
}

func (m *MongoDB) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var doc MessageDocument
	err := m.Messages.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewMessageNotFoundError(id.String())
	}
	if err != nil {
		return nil, utils.NewDatabaseError("failed to query message", err)
	}
	msg, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	if err := m.attachSenderNames(ctx, []*models.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

func (m *MongoDB) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := m.Messages.Find(ctx, bson.M{"conversationId": conversationID.String()}, opts)
	if err != nil {
		return nil, utils.NewDatabaseError("failed to list messages", err)
	}
	defer cursor.Close(ctx)

	msgs := make([]*models.Message, 0)
	for cursor.Next(ctx) {
		var doc MessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message: %v", err)
		}
		msg, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	if err := m.attachSenderNames(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (m *MongoDB) attachSenderNames(ctx context.Context, msgs []*models.Message) error {
	var senders []uuid.UUID
	for _, msg := range msgs {
		senders = models.AppendUnique(senders, msg.SenderID)
	}
	users, err := m.GetUsersByIDs(ctx, senders)
	if err != nil {
		return err
	}
	names := make(map[uuid.UUID]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	for _, msg := range msgs {
		msg.SenderName = names[msg.SenderID]
	}
	return nil
}

func (m *MongoDB) AddMessageDeleteFor(ctx context.Context, messageID, userID uuid.UUID) error {
	return m.addToMessageSet(ctx, messageID, "deleteFor", userID)
}

func (m *MongoDB) AddMessageSeen(ctx context.Context, messageID, userID uuid.UUID) error {
	return m.addToMessageSet(ctx, messageID, "seenIds", userID)
}

func (m *MongoDB) addToMessageSet(ctx context.Context, messageID uuid.UUID, field string, userID uuid.UUID) error {
	result, err := m.Messages.UpdateOne(ctx,
		bson.M{"_id": messageID.String()},
		bson.M{
			"$addToSet": bson.M{field: userID.String()},
			"$set":      bson.M{"updatedAt": time.Now()},
		})
	if err != nil {
		return utils.NewDatabaseError("failed to update message", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewMessageNotFoundError(messageID.String())
	}
	return nil
}
