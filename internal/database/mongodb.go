// internal/database/mongodb.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB implements DBAdapter on a replica set; multi-document writes use
// session transactions.
type MongoDB struct {
	Client        *mongo.Client
	Users         *mongo.Collection
	Conversations *mongo.Collection
	Messages      *mongo.Collection
	Sessions      *mongo.Collection
}

func NewMongoDB(uri, dbName string) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	log.Println("Successfully connected to MongoDB!")

	db := client.Database(dbName)
	return &MongoDB{
		Client:        client,
		Users:         db.Collection("users"),
		Conversations: db.Collection("conversations"),
		Messages:      db.Collection("messages"),
		Sessions:      db.Collection("session_tokens"),
	}, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("Closing MongoDB connection...")
	return m.Client.Disconnect(ctx)
}

// EnsureIndexes creates the unique email index and the lookup indexes.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{m.Users, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{m.Conversations, mongo.IndexModel{Keys: bson.D{{Key: "userIds", Value: 1}}}},
		{m.Messages, mongo.IndexModel{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: 1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %v", idx.coll.Name(), err)
		}
	}
	return nil
}

// withTransaction runs fn inside a session transaction.
func (m *MongoDB) withTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	sess, err := m.Client.StartSession()
	if err != nil {
		return utils.NewDatabaseError("failed to start mongo session", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

// --- Session Methods ---

type SessionDocument struct {
	TokenHash string     `bson:"_id"`
	UserID    string     `bson:"userId"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty"`
	CreatedAt time.Time  `bson:"createdAt"`
}

func (m *MongoDB) CreateSession(ctx context.Context, session *models.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	_, err := m.Sessions.InsertOne(ctx, SessionDocument{
		TokenHash: session.TokenHash,
		UserID:    session.UserID.String(),
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return utils.NewDatabaseError("failed to save session", err)
	}
	return nil
}

func (m *MongoDB) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	var doc SessionDocument
	err := m.Sessions.FindOne(ctx, bson.M{"_id": tokenHash}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewAppError(utils.ErrNotFound, "session not found", err)
	}
	if err != nil {
		return nil, utils.NewDatabaseError("failed to query session", err)
	}
	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in database: %v", err)
	}
	return &models.Session{
		TokenHash: doc.TokenHash,
		UserID:    userID,
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (m *MongoDB) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := m.Sessions.DeleteOne(ctx, bson.M{"_id": tokenHash}); err != nil {
		return utils.NewDatabaseError("failed to delete session", err)
	}
	return nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
