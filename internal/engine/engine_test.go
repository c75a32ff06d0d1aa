package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"chit-chat/internal/database"
	"chit-chat/internal/events"
	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.MessageEvent
}

func (s *recordingSink) PublishMessage(ctx context.Context, ev events.MessageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *database.MemoryDB) {
	t.Helper()
	db := database.NewMemoryDB()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	return New(db, events.NewBroker(), utils.NewMetricsCollector(), opts...), db
}

func mustRegister(t *testing.T, e *Engine, name string) *models.User {
	t.Helper()
	u, err := e.Register(context.Background(), name, name+"@example.com", "password123", "127.0.0.1")
	require.NoError(t, err)
	return u
}

func reload(t *testing.T, e *Engine, id uuid.UUID) *models.User {
	t.Helper()
	u, err := e.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestRegisterAndLogin(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	user, err := e.Register(ctx, "alice", " Alice@Example.com ", "password123", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "password123", user.PasswordHash)

	_, err = e.Register(ctx, "alice2", "alice@example.com", "other", "10.0.0.1")
	assert.True(t, utils.IsErrorCode(err, utils.ErrUserAlreadyExists))

	logged, err := e.Login(ctx, "ALICE@example.com", "password123", "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
	assert.Equal(t, "10.0.0.2", reload(t, e, user.ID).LastLoginIP)

	_, err = e.Login(ctx, "alice@example.com", "wrong", "")
	require.Error(t, err)
	assert.Equal(t, invalidCredentials, err.(*utils.AppError).Message)

	_, err = e.Login(ctx, "nobody@example.com", "password123", "")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidCredentials))
}

func TestRequestPasswordReset(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, e, "erin")

	assert.NoError(t, e.RequestPasswordReset(ctx, " ERIN@example.com "))

	err := e.RequestPasswordReset(ctx, "nobody@example.com")
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
	assert.Equal(t, "User with this email does not exist", err.Error())
}

func TestUpdateProfile(t *testing.T) {
	e, _ := newTestEngine(t)
	u := mustRegister(t, e, "bob")

	_, err := e.UpdateProfile(context.Background(), u.ID, "   ")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	updated, err := e.UpdateProfile(context.Background(), u.ID, "robert")
	require.NoError(t, err)
	assert.Equal(t, "robert", updated.Name)
}

func TestFollowKeepsBothListsInStep(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b := mustRegister(t, e, "a"), mustRegister(t, e, "b")

	require.NoError(t, e.Follow(ctx, b.ID, a.ID))
	assert.Contains(t, reload(t, e, a.ID).Following, b.ID)
	assert.Contains(t, reload(t, e, b.ID).Followers, a.ID)

	mutual, err := e.IsMutualFollow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, mutual)

	require.NoError(t, e.Follow(ctx, a.ID, b.ID))
	mutual, err = e.IsMutualFollow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, mutual)

	require.NoError(t, e.Unfollow(ctx, b.ID, a.ID))
	assert.NotContains(t, reload(t, e, a.ID).Following, b.ID)
	assert.NotContains(t, reload(t, e, b.ID).Followers, a.ID)
	assert.Contains(t, reload(t, e, a.ID).Followers, b.ID)

	assert.Error(t, e.Follow(ctx, a.ID, a.ID))
	assert.True(t, utils.IsNotFound(e.Follow(ctx, uuid.New(), a.ID)))
}

func TestMutualFollowInEitherOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b := mustRegister(t, e, "a"), mustRegister(t, e, "b")

	// b follows a first, then a follows b.
	require.NoError(t, e.Follow(ctx, a.ID, b.ID))
	mutual, err := e.IsMutualFollow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, mutual)

	require.NoError(t, e.Follow(ctx, b.ID, a.ID))
	for _, pair := range [][2]uuid.UUID{{a.ID, b.ID}, {b.ID, a.ID}} {
		mutual, err = e.IsMutualFollow(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, mutual)
	}

	ua, ub := reload(t, e, a.ID), reload(t, e, b.ID)
	assert.Contains(t, ua.Following, b.ID)
	assert.Contains(t, ua.Followers, b.ID)
	assert.Contains(t, ub.Following, a.ID)
	assert.Contains(t, ub.Followers, a.ID)
}

func TestCreateConversationValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b, c := mustRegister(t, e, "a"), mustRegister(t, e, "b"), mustRegister(t, e, "c")

	_, err := e.CreateConversation(ctx, []uuid.UUID{a.ID, a.ID}, models.StatusNormal)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	_, err = e.CreateConversation(ctx, []uuid.UUID{a.ID, b.ID}, "ARCHIVED")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	direct, err := e.CreateConversation(ctx, []uuid.UUID{a.ID, b.ID}, models.StatusNormal)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationNormalChat, direct.Type)

	group, err := e.CreateConversation(ctx, []uuid.UUID{a.ID, b.ID, c.ID}, models.StatusNormal)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationGroupChat, group.Type)

	found, err := e.GetConversationByUserIDs(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, direct.ID, found.ID)
}

func TestStartConversationStatusFollowsMutuality(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b, c := mustRegister(t, e, "a"), mustRegister(t, e, "b"), mustRegister(t, e, "c")

	require.NoError(t, e.Follow(ctx, b.ID, a.ID))
	require.NoError(t, e.Follow(ctx, a.ID, b.ID))

	normal, err := e.StartConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNormal, normal.Status)

	again, err := e.StartConversation(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, normal.ID, again.ID)

	require.NoError(t, e.Follow(ctx, c.ID, a.ID))
	request, err := e.StartConversation(ctx, a.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequest, request.Status)
}

func TestFollowUserOpensConversation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b := mustRegister(t, e, "a"), mustRegister(t, e, "b")

	conv, err := e.FollowUser(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequest, conv.Status)
	assert.Contains(t, reload(t, e, b.ID).Followers, a.ID)

	_, err = e.FollowUser(ctx, a.ID, b.ID)
	assert.True(t, utils.IsErrorCode(err, utils.ErrAlreadyFollowing))

	back, err := e.FollowUser(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, back.ID)
	assert.Equal(t, models.StatusRequest, back.Status)

	_, err = e.FollowUser(ctx, a.ID, uuid.New())
	assert.True(t, utils.IsNotFound(err))
}

func TestFollowUserBackCreatesNormalWhenFollowed(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b := mustRegister(t, e, "a"), mustRegister(t, e, "b")

	// b already follows a, without any conversation between them.
	require.NoError(t, e.Follow(ctx, a.ID, b.ID))

	conv, err := e.FollowUser(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNormal, conv.Status)
}

func TestAcceptRequest(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b, outsider := mustRegister(t, e, "a"), mustRegister(t, e, "b"), mustRegister(t, e, "c")

	conv, err := e.FollowUser(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = e.SendMessage(ctx, a.ID, conv.ID, "hi")
	require.NoError(t, err)

	for _, member := range []uuid.UUID{a.ID, b.ID} {
		requested, err := e.GetRequestedConversations(ctx, member)
		require.NoError(t, err)
		require.Len(t, requested, 1)
		assert.Equal(t, conv.ID, requested[0].ID)
	}

	// Following back makes the pair mutual but leaves the request pending.
	back, err := e.FollowUser(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, back.ID)
	mutual, err := e.IsMutualFollow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, mutual)
	for _, member := range []uuid.UUID{a.ID, b.ID} {
		requested, err := e.GetRequestedConversations(ctx, member)
		require.NoError(t, err)
		assert.Len(t, requested, 1)
	}

	_, err = e.AcceptConversation(ctx, outsider.ID, conv.ID)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotConversationMember))

	accepted, err := e.AcceptConversation(ctx, b.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNormal, accepted.Status)

	for _, member := range []uuid.UUID{a.ID, b.ID} {
		requested, err := e.GetRequestedConversations(ctx, member)
		require.NoError(t, err)
		assert.Empty(t, requested)

		normal, err := e.GetConversations(ctx, member)
		require.NoError(t, err)
		require.Len(t, normal, 1)
		assert.Equal(t, conv.ID, normal[0].ID)
	}
}

func TestMutualFollowDoesNotPromoteExistingRequest(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b := mustRegister(t, e, "a"), mustRegister(t, e, "b")

	conv, err := e.FollowUser(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = e.FollowUser(ctx, b.ID, a.ID)
	require.NoError(t, err)

	stored, err := e.GetConversationByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequest, stored.Status)
}

func TestCheckThenCreateRaceLeavesTwoConversations(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b := mustRegister(t, e, "a"), mustRegister(t, e, "b")

	// Two callers both observe "no conversation" before either creates one.
	existsA, err := e.IsConversationAlreadyExist(ctx, a.ID, b.ID)
	require.NoError(t, err)
	existsB, err := e.IsConversationAlreadyExist(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.False(t, existsA)
	require.False(t, existsB)

	first, err := e.CreateConversation(ctx, []uuid.UUID{a.ID, b.ID}, models.StatusRequest)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := e.CreateConversation(ctx, []uuid.UUID{b.ID, a.ID}, models.StatusRequest)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	for _, c := range []*models.Conversation{first, second} {
		_, err := e.CreateMessage(ctx, c.ID, a.ID, "hello")
		require.NoError(t, err)
	}
	requested, err := e.GetRequestedConversations(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, requested, 2)

	found, err := e.GetConversationByUserIDs(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestListingsSkipEmptyAndOrderByActivity(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b, c := mustRegister(t, e, "a"), mustRegister(t, e, "b"), mustRegister(t, e, "c")

	ab, err := e.CreateConversation(ctx, []uuid.UUID{a.ID, b.ID}, models.StatusNormal)
	require.NoError(t, err)
	ac, err := e.CreateConversation(ctx, []uuid.UUID{a.ID, c.ID}, models.StatusNormal)
	require.NoError(t, err)

	list, err := e.GetConversations(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = e.SendMessage(ctx, a.ID, ac.ID, "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = e.SendMessage(ctx, a.ID, ab.ID, "second")
	require.NoError(t, err)

	list, err = e.GetConversations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ac.ID, list[0].ID)
	assert.Equal(t, ab.ID, list[1].ID)

	index, err := e.ListConversationsFor(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, index.Normal, 2)
	assert.Len(t, index.Normal[0].Members, 2)
	assert.Empty(t, index.Requested)
}

func TestSendMessageNotifiesOtherMembers(t *testing.T) {
	sink := &recordingSink{}
	e, _ := newTestEngine(t, WithMessageSink(sink))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, b, c := mustRegister(t, e, "a"), mustRegister(t, e, "b"), mustRegister(t, e, "c")

	conv, err := e.CreateConversation(ctx, []uuid.UUID{a.ID, b.ID, c.ID}, models.StatusNormal)
	require.NoError(t, err)

	subA := e.Broker().Subscribe(ctx, a.ID, events.SendMessage)
	subB := e.Broker().Subscribe(ctx, b.ID, events.SendMessage)
	subC := e.Broker().Subscribe(ctx, c.ID, events.SendMessage)

	msg, err := e.SendMessage(ctx, a.ID, conv.ID, "  hello group  ")
	require.NoError(t, err)
	assert.Equal(t, "hello group", msg.Text)

	for _, tc := range []struct {
		sub *events.Subscription
		id  uuid.UUID
	}{{subB, b.ID}, {subC, c.ID}} {
		select {
		case ev := <-tc.sub.C:
			assert.Equal(t, events.SendMessage, ev.Name)
			assert.Equal(t, tc.id.String(), ev.Data)
		case <-time.After(time.Second):
			t.Fatalf("no event for %s", tc.id)
		}
	}
	select {
	case ev := <-subA.C:
		t.Fatalf("sender got %v", ev)
	default:
	}

	require.Len(t, sink.events, 1)
	assert.ElementsMatch(t, []string{b.ID.String(), c.ID.String()}, sink.events[0].RecipientIDs)

	_, err = e.SendMessage(ctx, a.ID, conv.ID, "   ")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	outsider := mustRegister(t, e, "d")
	_, err = e.SendMessage(ctx, outsider.ID, conv.ID, "sneaky")
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotConversationMember))

	_, err = e.SendMessage(ctx, a.ID, uuid.New(), "nowhere")
	assert.True(t, utils.IsNotFound(err))
}

func TestSoftDeleteAndSeen(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b := mustRegister(t, e, "a"), mustRegister(t, e, "b")

	conv, err := e.CreateConversation(ctx, []uuid.UUID{a.ID, b.ID}, models.StatusNormal)
	require.NoError(t, err)
	msg, err := e.SendMessage(ctx, a.ID, conv.ID, "secret")
	require.NoError(t, err)

	require.NoError(t, e.DeleteMessageForMember(ctx, a.ID, conv.ID, msg.ID))
	require.NoError(t, e.DeleteMessage(ctx, msg.ID, a.ID))

	forA, err := e.OpenConversation(ctx, a.ID, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, forA.Messages)

	forB, err := e.OpenConversation(ctx, b.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, forB.Messages, 1)
	assert.Equal(t, "a", forB.Messages[0].SenderName)

	require.NoError(t, e.MarkSeenByMember(ctx, b.ID, conv.ID, msg.ID))
	require.NoError(t, e.UpdateMessage(ctx, msg.ID, b.ID))
	forB, err = e.OpenConversation(ctx, b.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID}, forB.Messages[0].SeenIDs)

	assert.True(t, utils.IsNotFound(e.DeleteMessage(ctx, uuid.New(), a.ID)))
	assert.True(t, utils.IsNotFound(e.UpdateMessage(ctx, uuid.New(), a.ID)))

	other, err := e.CreateConversation(ctx, []uuid.UUID{a.ID, b.ID}, models.StatusNormal)
	require.NoError(t, err)
	assert.True(t, utils.IsNotFound(e.MarkSeenByMember(ctx, b.ID, other.ID, msg.ID)))
}

func TestDeleteConversationCascades(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b, c := mustRegister(t, e, "a"), mustRegister(t, e, "b"), mustRegister(t, e, "c")

	conv, err := e.CreateConversation(ctx, []uuid.UUID{a.ID, b.ID}, models.StatusNormal)
	require.NoError(t, err)
	msg, err := e.SendMessage(ctx, a.ID, conv.ID, "bye")
	require.NoError(t, err)

	assert.True(t, utils.IsErrorCode(e.DeleteConversation(ctx, c.ID, conv.ID), utils.ErrNotConversationMember))
	require.NoError(t, e.DeleteConversation(ctx, b.ID, conv.ID))

	_, err = e.GetConversationByID(ctx, conv.ID)
	assert.True(t, utils.IsNotFound(err))
	assert.True(t, utils.IsNotFound(e.UpdateMessage(ctx, msg.ID, b.ID)))
	assert.True(t, utils.IsNotFound(e.DeleteConversationByID(ctx, conv.ID)))
}

func TestPublishTyping(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	target := uuid.New()

	sub := e.Broker().Subscribe(ctx, target, events.OnInput)
	e.PublishTyping(ctx, target)

	select {
	case ev := <-sub.C:
		assert.Equal(t, events.OnInput, ev.Name)
		assert.Equal(t, target.String(), ev.Data)
	case <-time.After(time.Second):
		t.Fatal("no on-input event")
	}
}

func TestDirectoryAndProfile(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a, b, c, d := mustRegister(t, e, "a"), mustRegister(t, e, "b"), mustRegister(t, e, "c"), mustRegister(t, e, "d")

	require.NoError(t, e.Follow(ctx, b.ID, a.ID))
	require.NoError(t, e.Follow(ctx, a.ID, c.ID))

	dir, err := e.Directory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, dir.Following, 1)
	assert.Equal(t, b.ID, dir.Following[0].ID)
	require.Len(t, dir.Followers, 1)
	assert.Equal(t, c.ID, dir.Followers[0].ID)
	require.Len(t, dir.Friends, 1)
	assert.Equal(t, d.ID, dir.Friends[0].ID)

	profile, err := e.Profile(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, profile.IsFollowed)
	assert.False(t, profile.FollowsYou)
	require.Len(t, profile.Followers, 1)
	assert.Equal(t, "a", profile.Followers[0].Name)
}
