package actors

import (
	stdctx "context"
	"sync"
	"testing"
	"time"

	"chit-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActivityStore struct {
	mu      sync.Mutex
	writes  map[uuid.UUID]time.Time
	calls   int
	missing map[uuid.UUID]bool
}

func newFakeActivityStore() *fakeActivityStore {
	return &fakeActivityStore{
		writes:  make(map[uuid.UUID]time.Time),
		missing: make(map[uuid.UUID]bool),
	}
}

func (f *fakeActivityStore) UpdateUserActivity(ctx stdctx.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.missing[id] {
		return utils.NewUserNotFoundError(id.String())
	}
	f.writes[id] = at
	return nil
}

func (f *fakeActivityStore) snapshot() (map[uuid.UUID]time.Time, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]time.Time, len(f.writes))
	for k, v := range f.writes {
		out[k] = v
	}
	return out, f.calls
}

func TestPresenceActorCoalescesTouches(t *testing.T) {
	system := actor.NewActorSystem()
	store := newFakeActivityStore()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPresenceActor(store)
	})
	pid := system.Root.Spawn(props)

	user := uuid.New()
	early := time.Now().Add(-time.Minute)
	late := time.Now()
	system.Root.Send(pid, &TouchMsg{UserID: user, At: late})
	system.Root.Send(pid, &TouchMsg{UserID: user, At: early})

	res, err := system.Root.RequestFuture(pid, &FlushMsg{}, 5*time.Second).Result()
	require.NoError(t, err)

	result, ok := res.(*FlushResult)
	require.True(t, ok)
	assert.Equal(t, 1, result.Written)

	writes, calls := store.snapshot()
	assert.Equal(t, 1, calls)
	assert.True(t, writes[user].Equal(late))

	res, err = system.Root.RequestFuture(pid, &FlushMsg{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, 0, res.(*FlushResult).Written)
}

func TestPresenceDropsUnknownUsers(t *testing.T) {
	system := actor.NewActorSystem()
	store := newFakeActivityStore()
	ghost := uuid.New()
	store.missing[ghost] = true

	p := NewPresence(system, store, 0)
	p.Touch(ghost)

	result, err := p.Flush()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	result, err = p.Flush()
	require.NoError(t, err)
	assert.Equal(t, 0, result.Failed)
}

func TestPresenceStopFlushes(t *testing.T) {
	system := actor.NewActorSystem()
	store := newFakeActivityStore()

	p := NewPresence(system, store, time.Hour)
	p.Start(stdctx.Background())

	a, b := uuid.New(), uuid.New()
	p.Touch(a)
	p.Touch(b)
	p.Stop()
	p.Stop()

	writes, _ := store.snapshot()
	assert.Len(t, writes, 2)
	assert.Contains(t, writes, a)
	assert.Contains(t, writes, b)
}

func TestPresenceTickerFlushes(t *testing.T) {
	system := actor.NewActorSystem()
	store := newFakeActivityStore()

	p := NewPresence(system, store, 10*time.Millisecond)
	ctx, cancel := stdctx.WithCancel(stdctx.Background())
	defer cancel()
	p.Start(ctx)

	user := uuid.New()
	p.Touch(user)

	assert.Eventually(t, func() bool {
		writes, _ := store.snapshot()
		_, ok := writes[user]
		return ok
	}, time.Second, 10*time.Millisecond)
}
