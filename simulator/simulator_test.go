package simulator

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"chit-chat/internal/config"
	"chit-chat/internal/database"
	"chit-chat/internal/engine"
	"chit-chat/internal/events"
	"chit-chat/internal/handlers"
	"chit-chat/internal/middleware"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := database.NewMemoryDB()
	metrics := utils.NewMetricsCollector()
	eng := engine.New(db, events.NewBroker(), metrics, engine.WithBcryptCost(bcrypt.MinCost))

	cfg := config.DefaultSessionConfig()
	cfg.Secret = "simulator-test-secret"
	server := handlers.NewServer(eng, middleware.NewSessionManager(db, cfg, false), metrics, nil)

	srv := httptest.NewServer(server.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string, users int) SimConfig {
	cfg := DefaultSimConfig()
	cfg.EngineURL = url
	cfg.NumUsers = users
	cfg.Workers = 2
	cfg.Seed = 42
	cfg.ZipfS = 0
	return cfg
}

func TestSeedRegistersUsersAndFollows(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.URL, 4)
	cfg.FollowProbability = 0.5

	sim := NewSimulator(cfg)
	require.NoError(t, sim.Seed(context.Background()))

	m := sim.GetMetrics()
	assert.Equal(t, 4, m.TotalUsers)
	assert.Zero(t, m.FailedRequests)
	assert.Greater(t, m.Follows, 0)
	assert.LessOrEqual(t, m.Follows, 8)

	seen := make(map[uuid.UUID]bool)
	for _, u := range sim.users {
		assert.NotEqual(t, uuid.Nil, u.ID)
		assert.False(t, seen[u.ID], "duplicate user id")
		seen[u.ID] = true
	}
}

func TestSeedNeedsTwoUsers(t *testing.T) {
	srv := newTestServer(t)
	sim := NewSimulator(testConfig(srv.URL, 1))
	assert.Error(t, sim.Seed(context.Background()))
}

func TestMessageRequestIsAccepted(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.URL, 2)
	cfg.AcceptProbability = 1

	sim := NewSimulator(cfg)
	require.NoError(t, sim.createInitialUsers(context.Background()))
	require.Len(t, sim.users, 2)
	sender, recipient := sim.users[0], sim.users[1]

	ctx := context.Background()
	chatPath, err := sim.openChat(ctx, sender, recipient)
	require.NoError(t, err)

	res, err := sim.action(ctx, sender, chatPath, url.Values{"type": {"send"}, "message": {"hello"}})
	require.NoError(t, err)
	require.True(t, res.OK, res.message())

	sim.acceptRequests(ctx, recipient)
	assert.Equal(t, 1, sim.GetMetrics().Accepted)

	body, err := sim.get(ctx, recipient, "/chat")
	require.NoError(t, err)
	var lists struct {
		Normal []struct {
			ID uuid.UUID `json:"id"`
		} `json:"conversations"`
		Requested []json.RawMessage `json:"requestedConversations"`
	}
	require.NoError(t, json.Unmarshal(body, &lists))
	assert.Empty(t, lists.Requested)
	require.Len(t, lists.Normal, 1)
	assert.Equal(t, chatPath, "/chat/"+lists.Normal[0].ID.String())
}

func TestRunStopsWithContext(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.URL, 3)
	cfg.MessageFrequency = 3600 * 4

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	sim := NewSimulator(cfg)
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("simulation did not stop")
	}
	assert.Equal(t, 3, sim.GetMetrics().TotalUsers)
}
