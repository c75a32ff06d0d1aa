// internal/database/user_repository.go
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

// UserDocument represents the MongoDB schema for a user
type UserDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	Role         string    `bson:"role"`
	Followers    []string  `bson:"followers"`
	Following    []string  `bson:"following"`
	LastLoginIP  string    `bson:"lastLoginIp"`
	LastActiveAt time.Time `bson:"lastActiveAt"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (doc *UserDocument) toModel() (*models.User, error) {
	userID, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in database: %v", err)
	}
	followers, err := parseUUIDs(doc.Followers)
	if err != nil {
		return nil, err
	}
	following, err := parseUUIDs(doc.Following)
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:           userID,
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Role:         models.Role(doc.Role),
		Followers:    followers,
		Following:    following,
		LastLoginIP:  doc.LastLoginIP,
		LastActiveAt: doc.LastActiveAt,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

// CreateUser inserts a new user document.
func (m *MongoDB) CreateUser(ctx context.Context, user *models.User) error {
	stampUser(user)
	doc := UserDocument{
		ID:           user.ID.String(),
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		Followers:    idStrings(user.Followers),
		Following:    idStrings(user.Following),
		LastLoginIP:  user.LastLoginIP,
		LastActiveAt: user.LastActiveAt,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}

	if _, err := m.Users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewAppError(utils.ErrUserAlreadyExists, "User with this email already exists", err)
		}
		return utils.NewDatabaseError("failed to save user", err)
	}
	return nil
}

// GetUser retrieves a user from MongoDB by their ID
func (m *MongoDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var doc UserDocument
	err := m.Users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewUserNotFoundError(id.String())
	}
	if err != nil {
		return nil, utils.NewDatabaseError("failed to query user by id", err)
	}
	return doc.toModel()
}

// GetUserByEmail retrieves a user from MongoDB by their email address
func (m *MongoDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var doc UserDocument
	err := m.Users.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewAppError(utils.ErrUserNotFound, "User not found", err)
	}
	if err != nil {
		return nil, utils.NewDatabaseError("failed to query user by email", err)
	}
	return doc.toModel()
}

func (m *MongoDB) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	if len(ids) == 0 {
		return []*models.User{}, nil
	}
	return m.findUsers(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
}

func (m *MongoDB) ListUsersExcept(ctx context.Context, id uuid.UUID) ([]*models.User, error) {
	return m.findUsers(ctx, bson.M{"_id": bson.M{"$ne": id.String()}})
}

func (m *MongoDB) findUsers(ctx context.Context, filter bson.M) ([]*models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := m.Users.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewDatabaseError("failed to query users", err)
	}
	defer cursor.Close(ctx)

	users := make([]*models.User, 0)
	for cursor.Next(ctx) {
		var doc UserDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user: %v", err)
		}
		u, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, cursor.Err()
}

func (m *MongoDB) UpdateUserName(ctx context.Context, id uuid.UUID, name string) error {
	return m.setUserFields(ctx, id, bson.M{"name": name, "updatedAt": time.Now()})
}

func (m *MongoDB) UpdateUserLogin(ctx context.Context, id uuid.UUID, ip string) error {
	now := time.Now()
	return m.setUserFields(ctx, id, bson.M{"lastLoginIp": ip, "lastActiveAt": now, "updatedAt": now})
}

func (m *MongoDB) UpdateUserActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.setUserFields(ctx, id, bson.M{"lastActiveAt": at})
}

func (m *MongoDB) setUserFields(ctx context.Context, id uuid.UUID, fields bson.M) error {
	result, err := m.Users.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": fields})
	if err != nil {
		return utils.NewDatabaseError("failed to update user", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewUserNotFoundError(id.String())
	}
	return nil
}

// --- Follow Graph ---

func (m *MongoDB) AddFollow(ctx context.Context, targetID, followerID uuid.UUID) error {
	return m.updateFollowEdge(ctx, targetID, followerID, "$addToSet")
}

func (m *MongoDB) RemoveFollow(ctx context.Context, targetID, followerID uuid.UUID) error {
	return m.updateFollowEdge(ctx, targetID, followerID, "$pull")
}

func (m *MongoDB) updateFollowEdge(ctx context.Context, targetID, followerID uuid.UUID, op string) error {
	if targetID == followerID {
		return utils.NewInvalidInputError("a user cannot follow themselves")
	}
	return m.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		now := time.Now()
		result, err := m.Users.UpdateOne(sessCtx,
			bson.M{"_id": targetID.String()},
			bson.M{op: bson.M{"followers": followerID.String()}, "$set": bson.M{"updatedAt": now}})
		if err != nil {
			return utils.NewDatabaseError("failed to update followers", err)
		}
		if result.MatchedCount == 0 {
			return utils.NewUserNotFoundError(targetID.String())
		}

		result, err = m.Users.UpdateOne(sessCtx,
			bson.M{"_id": followerID.String()},
			bson.M{op: bson.M{"following": targetID.String()}, "$set": bson.M{"updatedAt": now}})
		if err != nil {
			return utils.NewDatabaseError("failed to update following", err)
		}
		if result.MatchedCount == 0 {
			return utils.NewUserNotFoundError(followerID.String())
		}
		return nil
	})
}
