package database

import (
	"context"
	"os"
	"testing"
	"time"

	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runAdapterContract exercises the behavior every DBAdapter must share.
func runAdapterContract(t *testing.T, db DBAdapter) {
	ctx := context.Background()

	newUser := func(t *testing.T, name string) *models.User {
		t.Helper()
		u := &models.User{
			Name:         name,
			Email:        name + "-" + uuid.NewString() + "@example.test",
			PasswordHash: "hash",
		}
		require.NoError(t, db.CreateUser(ctx, u))
		return u
	}

	t.Run("duplicate email", func(t *testing.T) {
		u := newUser(t, "dup")
		err := db.CreateUser(ctx, &models.User{Name: "other", Email: u.Email, PasswordHash: "x"})
		assert.True(t, utils.IsErrorCode(err, utils.ErrUserAlreadyExists))
	})

	t.Run("user lookups", func(t *testing.T) {
		u := newUser(t, "lookup")
		byID, err := db.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, byID.Email)
		assert.Equal(t, models.RoleUser, byID.Role)

		byEmail, err := db.GetUserByEmail(ctx, u.Email)
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		_, err = db.GetUser(ctx, uuid.New())
		assert.True(t, utils.IsNotFound(err))

		require.NoError(t, db.UpdateUserName(ctx, u.ID, "renamed"))
		require.NoError(t, db.UpdateUserLogin(ctx, u.ID, "10.0.0.1"))
		got, err := db.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.Equal(t, "10.0.0.1", got.LastLoginIP)

		assert.True(t, utils.IsNotFound(db.UpdateUserActivity(ctx, uuid.New(), time.Now())))
	})

	t.Run("follow edges are symmetric", func(t *testing.T) {
		a, b := newUser(t, "alice"), newUser(t, "bob")

		require.NoError(t, db.AddFollow(ctx, b.ID, a.ID))
		require.NoError(t, db.AddFollow(ctx, b.ID, a.ID))

		gotA, _ := db.GetUser(ctx, a.ID)
		gotB, _ := db.GetUser(ctx, b.ID)
		assert.Equal(t, []uuid.UUID{b.ID}, gotA.Following)
		assert.Equal(t, []uuid.UUID{a.ID}, gotB.Followers)
		assert.Empty(t, gotA.Followers)

		require.NoError(t, db.RemoveFollow(ctx, b.ID, a.ID))
		gotA, _ = db.GetUser(ctx, a.ID)
		gotB, _ = db.GetUser(ctx, b.ID)
		assert.Empty(t, gotA.Following)
		assert.Empty(t, gotB.Followers)

		assert.True(t, utils.IsNotFound(db.AddFollow(ctx, uuid.New(), a.ID)))
		assert.True(t, utils.IsErrorCode(db.AddFollow(ctx, a.ID, a.ID), utils.ErrInvalidInput))
	})

	t.Run("conversations and messages", func(t *testing.T) {
		a, b, c := newUser(t, "a"), newUser(t, "b"), newUser(t, "c")

		direct := &models.Conversation{UserIDs: []uuid.UUID{a.ID, b.ID}, Status: models.StatusRequest}
		require.NoError(t, db.CreateConversation(ctx, direct))
		assert.Equal(t, models.ConversationNormalChat, direct.Type)

		group := &models.Conversation{UserIDs: []uuid.UUID{a.ID, b.ID, c.ID}, Status: models.StatusNormal}
		require.NoError(t, db.CreateConversation(ctx, group))
		assert.Equal(t, models.ConversationGroupChat, group.Type)

		found, err := db.FindConversationByMembers(ctx, b.ID, a.ID)
		require.NoError(t, err)
		assert.Equal(t, direct.ID, found.ID)

		_, err = db.FindConversationByMembers(ctx, a.ID, c.ID)
		assert.True(t, utils.IsNotFound(err))

		// Empty conversations are not listed.
		requested, err := db.ListConversations(ctx, a.ID, models.StatusRequest, true)
		require.NoError(t, err)
		assert.Empty(t, requested)

		msg := &models.Message{ConversationID: direct.ID, SenderID: a.ID, Text: "hi"}
		require.NoError(t, db.CreateMessage(ctx, msg))

		requested, err = db.ListConversations(ctx, b.ID, models.StatusRequest, true)
		require.NoError(t, err)
		require.Len(t, requested, 1)
		assert.Equal(t, direct.ID, requested[0].ID)

		require.NoError(t, db.AddMessageDeleteFor(ctx, msg.ID, a.ID))
		require.NoError(t, db.AddMessageSeen(ctx, msg.ID, b.ID))
		got, err := db.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.False(t, got.VisibleTo(a.ID))
		assert.True(t, got.VisibleTo(b.ID))
		assert.True(t, got.SeenBy(b.ID))
		assert.Equal(t, "a", got.SenderName)

		assert.True(t, utils.IsNotFound(db.AddMessageSeen(ctx, uuid.New(), b.ID)))
		assert.True(t, utils.IsNotFound(db.CreateMessage(ctx, &models.Message{ConversationID: uuid.New(), SenderID: a.ID, Text: "x"})))

		require.NoError(t, db.UpdateConversationStatus(ctx, direct.ID, models.StatusNormal))
		normal, err := db.ListConversations(ctx, a.ID, models.StatusNormal, false)
		require.NoError(t, err)
		require.Len(t, normal, 1)

		require.NoError(t, db.DeleteConversation(ctx, direct.ID))
		_, err = db.GetConversation(ctx, direct.ID)
		assert.True(t, utils.IsNotFound(err))
		_, err = db.GetMessage(ctx, msg.ID)
		assert.True(t, utils.IsNotFound(err))
		assert.True(t, utils.IsNotFound(db.DeleteConversation(ctx, direct.ID)))
	})

	t.Run("listing only counts the user's own conversations", func(t *testing.T) {
		a, b, c, d := newUser(t, "l1"), newUser(t, "l2"), newUser(t, "l3"), newUser(t, "l4")
		talked := &models.Conversation{UserIDs: []uuid.UUID{a.ID, b.ID}, Status: models.StatusNormal}
		quiet := &models.Conversation{UserIDs: []uuid.UUID{a.ID, c.ID}, Status: models.StatusNormal}
		others := &models.Conversation{UserIDs: []uuid.UUID{c.ID, d.ID}, Status: models.StatusNormal}
		for _, conv := range []*models.Conversation{talked, quiet, others} {
			require.NoError(t, db.CreateConversation(ctx, conv))
		}
		require.NoError(t, db.CreateMessage(ctx, &models.Message{ConversationID: talked.ID, SenderID: a.ID, Text: "hi"}))
		require.NoError(t, db.CreateMessage(ctx, &models.Message{ConversationID: others.ID, SenderID: c.ID, Text: "yo"}))

		listed, err := db.ListConversations(ctx, a.ID, models.StatusNormal, false)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, talked.ID, listed[0].ID)

		listed, err = db.ListConversations(ctx, c.ID, models.StatusNormal, false)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, others.ID, listed[0].ID)

		listed, err = db.ListConversations(ctx, d.ID, models.StatusRequest, false)
		require.NoError(t, err)
		assert.NotNil(t, listed)
		assert.Empty(t, listed)
	})

	t.Run("conversation ordering", func(t *testing.T) {
		a, b, c := newUser(t, "o1"), newUser(t, "o2"), newUser(t, "o3")
		first := &models.Conversation{UserIDs: []uuid.UUID{a.ID, b.ID}, Status: models.StatusNormal}
		second := &models.Conversation{UserIDs: []uuid.UUID{a.ID, c.ID}, Status: models.StatusNormal}
		require.NoError(t, db.CreateConversation(ctx, first))
		require.NoError(t, db.CreateConversation(ctx, second))

		base := time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)
		require.NoError(t, db.CreateMessage(ctx, &models.Message{ConversationID: second.ID, SenderID: a.ID, Text: "1", CreatedAt: base}))
		require.NoError(t, db.CreateMessage(ctx, &models.Message{ConversationID: first.ID, SenderID: a.ID, Text: "2", CreatedAt: base.Add(time.Minute)}))

		asc, err := db.ListConversations(ctx, a.ID, models.StatusNormal, false)
		require.NoError(t, err)
		require.Len(t, asc, 2)
		assert.Equal(t, second.ID, asc[0].ID)
		assert.Equal(t, first.ID, asc[1].ID)

		desc, err := db.ListConversations(ctx, a.ID, models.StatusNormal, true)
		require.NoError(t, err)
		require.Len(t, desc, 2)
		assert.Equal(t, first.ID, desc[0].ID)

		msgs, err := db.ListMessages(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "2", msgs[0].Text)
	})

	t.Run("sessions", func(t *testing.T) {
		u := newUser(t, "sess")
		hash := uuid.NewString()
		require.NoError(t, db.CreateSession(ctx, &models.Session{TokenHash: hash, UserID: u.ID}))

		s, err := db.GetSession(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, u.ID, s.UserID)

		require.NoError(t, db.DeleteSession(ctx, hash))
		_, err = db.GetSession(ctx, hash)
		assert.True(t, utils.IsNotFound(err))
	})
}

func TestMemoryDBContract(t *testing.T) {
	runAdapterContract(t, NewMemoryDB())
}

func TestMemoryDBReturnsCopies(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	u := &models.User{Name: "copy", Email: "copy@example.test", PasswordHash: "x"}
	require.NoError(t, db.CreateUser(ctx, u))

	got, err := db.GetUser(ctx, u.ID)
	require.NoError(t, err)
	got.Followers = append(got.Followers, uuid.New())
	got.Name = "mutated"

	again, err := db.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Followers)
	assert.Equal(t, "copy", again.Name)
}

func TestPostgresDBContract(t *testing.T) {
	uri := os.Getenv("TEST_DATABASE_URL")
	if uri == "" {
		t.Skip("Skipping: TEST_DATABASE_URL not set")
	}
	db, err := NewPostgresDB(uri)
	if err != nil {
		t.Skipf("Skipping: could not connect to test database: %v", err)
	}
	defer db.Close(context.Background())
	require.NoError(t, db.InitializeTables(context.Background()))

	runAdapterContract(t, db)
}

func TestMongoDBContract(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("Skipping: TEST_MONGO_URI not set")
	}
	db, err := NewMongoDB(uri, "chitchat_test")
	if err != nil {
		t.Skipf("Skipping: could not connect to test mongo: %v", err)
	}
	defer db.Close(context.Background())
	require.NoError(t, db.EnsureIndexes(context.Background()))

	runAdapterContract(t, db)
}
