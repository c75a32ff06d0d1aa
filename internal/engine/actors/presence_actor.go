package actors

import (
	stdctx "context"
	"log"
	"sync"
	"time"

	"chit-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// ActivityStore is the part of the database the presence actor writes to.
type ActivityStore interface {
	UpdateUserActivity(ctx stdctx.Context, id uuid.UUID, at time.Time) error
}

// Message types
type (
	// TouchMsg records that a user made an authenticated request.
	TouchMsg struct {
		UserID uuid.UUID
		At     time.Time
	}

	// FlushMsg writes every buffered timestamp to the store.
	FlushMsg struct{}

	FlushResult struct {
		Written int
		Failed  int
	}
)

// PresenceActor batches last-active timestamps so that a busy user costs
// one write per flush instead of one per request.
type PresenceActor struct {
	store   ActivityStore
	pending map[uuid.UUID]time.Time
}

func NewPresenceActor(store ActivityStore) *PresenceActor {
	return &PresenceActor{
		store:   store,
		pending: make(map[uuid.UUID]time.Time),
	}
}

func (a *PresenceActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *TouchMsg:
		if prev, ok := a.pending[msg.UserID]; !ok || msg.At.After(prev) {
			a.pending[msg.UserID] = msg.At
		}

	case *FlushMsg:
		result := a.flush()
		if context.Sender() != nil {
			context.Respond(result)
		}

	case *actor.Started:
		log.Printf("PresenceActor started")

	case *actor.Stopping:
		a.flush()
	}
}

func (a *PresenceActor) flush() *FlushResult {
	result := &FlushResult{}
	if len(a.pending) == 0 {
		return result
	}

	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
	defer cancel()

	for id, at := range a.pending {
		if err := a.store.UpdateUserActivity(ctx, id, at); err != nil {
			// Unknown users are dropped, any other failure is retried next flush.
			if utils.IsNotFound(err) {
				delete(a.pending, id)
			}
			log.Printf("PresenceActor: failed to record activity for User %s: %v", id, err)
			result.Failed++
			continue
		}
		delete(a.pending, id)
		result.Written++
	}
	return result
}

// Presence owns the actor and the periodic flush.
type Presence struct {
	system   *actor.ActorSystem
	pid      *actor.PID
	interval time.Duration
	stopOnce sync.Once
	done     chan struct{}
}

func NewPresence(system *actor.ActorSystem, store ActivityStore, interval time.Duration) *Presence {
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPresenceActor(store)
	})
	return &Presence{
		system:   system,
		pid:      system.Root.Spawn(props),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Touch never blocks the request path.
func (p *Presence) Touch(userID uuid.UUID) {
	p.system.Root.Send(p.pid, &TouchMsg{UserID: userID, At: time.Now()})
}

func (p *Presence) Flush() (*FlushResult, error) {
	future := p.system.Root.RequestFuture(p.pid, &FlushMsg{}, 5*time.Second)
	res, err := future.Result()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrActorTimeout, "Presence flush timed out", err)
	}
	return res.(*FlushResult), nil
}

// Start flushes every interval until ctx is done or Stop is called.
func (p *Presence) Start(ctx stdctx.Context) {
	if p.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case <-ticker.C:
				p.system.Root.Send(p.pid, &FlushMsg{})
			}
		}
	}()
}

// Stop writes whatever is buffered and stops the actor.
func (p *Presence) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		if _, err := p.Flush(); err != nil {
			log.Printf("Presence: final flush failed: %v", err)
		}
		p.system.Root.Stop(p.pid)
	})
}
