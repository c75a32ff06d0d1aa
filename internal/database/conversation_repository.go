// internal/database/conversation_repository.go
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

// ConversationDocument represents the MongoDB document structure for conversations
type ConversationDocument struct {
	ID        string    `bson:"_id"`
	UserIDs   []string  `bson:"userIds"`
	Type      string    `bson:"type"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (doc *ConversationDocument) toModel() (*models.Conversation, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation ID in database: %v", err)
	}
	members, err := parseUUIDs(doc.UserIDs)
	if err != nil {
		return nil, err
	}
	return &models.Conversation{
		ID:        id,
		UserIDs:   members,
		Type:      models.ConversationType(doc.Type),
		Status:    models.ConversationStatus(doc.Status),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (m *MongoDB) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	stampConversation(conv)
	_, err := m.Conversations.InsertOne(ctx, ConversationDocument{
		ID:        conv.ID.String(),
		UserIDs:   idStrings(conv.UserIDs),
		Type:      string(conv.Type),
		Status:    string(conv.Status),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	})
	if err != nil {
		return utils.NewDatabaseError("failed to create conversation", err)
	}
	return nil
}

func (m *MongoDB) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var doc ConversationDocument
	err := m.Conversations.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewConversationNotFoundError(id.String())
	}
	if err != nil {
		return nil, utils.NewDatabaseError("failed to query conversation", err)
	}
	return doc.toModel()
}

func (m *MongoDB) FindConversationByMembers(ctx context.Context, firstID, secondID uuid.UUID) (*models.Conversation, error) {
	var doc ConversationDocument
	filter := bson.M{
		"userIds": bson.M{"$all": []string{firstID.String(), secondID.String()}},
		"type":    string(models.ConversationNormalChat),
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	err := m.Conversations.FindOne(ctx, filter, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewAppError(utils.ErrConversationNotFound, "Conversation not found for members", err)
	}
	if err != nil {
		return nil, utils.NewDatabaseError("failed to query conversation by members", err)
	}
	return doc.toModel()
}

func (m *MongoDB) ListConversations(ctx context.Context, userID uuid.UUID, status models.ConversationStatus, newestFirst bool) ([]*models.Conversation, error) {
	direction := 1
	if newestFirst {
		direction = -1
	}
	filter := bson.M{
		"userIds": userID.String(),
		"status":  string(status),
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: direction}})

	cursor, err := m.Conversations.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewDatabaseError("failed to list conversations", err)
	}
	defer cursor.Close(ctx)

	var docs []ConversationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %v", err)
	}
	if len(docs) == 0 {
		return []*models.Conversation{}, nil
	}

	// Conversations are only listed once they hold at least one message.
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	withMessages, err := m.Messages.Distinct(ctx, "conversationId", bson.M{"conversationId": bson.M{"$in": ids}})
	if err != nil {
		return nil, utils.NewDatabaseError("failed to query conversations with messages", err)
	}
	hasMessages := make(map[string]bool, len(withMessages))
	for _, v := range withMessages {
		if id, ok := v.(string); ok {
			hasMessages[id] = true
		}
	}

	convs := make([]*models.Conversation, 0, len(hasMessages))
	for i := range docs {
		if !hasMessages[docs[i].ID] {
			continue
		}
		c, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, nil
}

func (m *MongoDB) UpdateConversationStatus(ctx context.Context, id uuid.UUID, status models.ConversationStatus) error {
	result, err := m.Conversations.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"status": string(status), "updatedAt": time.Now()}})
	if err != nil {
		return utils.NewDatabaseError("failed to update conversation status", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewConversationNotFoundError(id.String())
	}
	return nil
}

func (m *MongoDB) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	return m.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := m.Messages.DeleteMany(sessCtx, bson.M{"conversationId": id.String()}); err != nil {
			return utils.NewDatabaseError("failed to delete conversation messages", err)
		}
		result, err := m.Conversations.DeleteOne(sessCtx, bson.M{"_id": id.String()})
		if err != nil {
			return utils.NewDatabaseError("failed to delete conversation", err)
		}
		if result.DeletedCount == 0 {
			return utils.NewConversationNotFoundError(id.String())
		}
		return nil
	})
}
