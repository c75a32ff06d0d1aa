// Package events fans chat notifications out to connected clients.
package events

import (
	"context"
	"log"
	"sync"

	"chit-chat/internal/utils"

	"github.com/google/uuid"
)

// Named events pushed to clients.
const (
	SendMessage = "send-message"
	OnInput     = "on-input"
)

const defaultBufferSize = 16

// Event is one notification. To selects the recipient; Data is what the
// client receives as the event payload.
type Event struct {
	Name string    `json:"event"`
	Data string    `json:"data"`
	To   uuid.UUID `json:"to"`
}

// Relay forwards published events to every instance, including this one.
// The relay hands events back through Broker.Deliver.
type Relay interface {
	Publish(ctx context.Context, ev Event) error
}

// Broker maintains the set of active subscriptions and delivers events to
// them. Delivery is at-most-once: events with no matching subscriber, or
// arriving at a full subscriber buffer, are dropped.
type Broker struct {
	mu sync.RWMutex

	// Maps recipient ID to its live subscriptions. uuid.Nil holds
	// subscriptions that receive every recipient's events.
	subs map[uuid.UUID]map[*Subscription]struct{}

	relay      Relay
	metrics    *utils.MetricsCollector
	bufferSize int
}

type Option func(*Broker)

func WithBufferSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

func WithMetrics(m *utils.MetricsCollector) Option {
	return func(b *Broker) { b.metrics = m }
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		subs:       make(map[uuid.UUID]map[*Subscription]struct{}),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetRelay routes Publish through r. Must be called before the broker is shared.
func (b *Broker) SetRelay(r Relay) {
	b.relay = r
}

// Subscribe registers a subscription for events addressed to userID and
// named in names (all names when empty). It is removed when ctx is done or
// Close is called.
func (b *Broker) Subscribe(ctx context.Context, userID uuid.UUID, names ...string) *Subscription {
	ch := make(chan Event, b.bufferSize)
	s := &Subscription{
		C:      ch,
		ch:     ch,
		userID: userID,
		names:  make(map[string]bool, len(names)),
		broker: b,
		done:   make(chan struct{}),
	}
	for _, n := range names {
		s.names[n] = true
	}

	b.mu.Lock()
	if _, ok := b.subs[userID]; !ok {
		b.subs[userID] = make(map[*Subscription]struct{})
	}
	b.subs[userID][s] = struct{}{}
	count := len(b.subs[userID])
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.StreamOpened()
	}
	log.Printf("Event subscription opened for User %s. Total subscriptions for user: %d", userID, count)

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s
}

// Publish sends ev to its subscribers, through the relay when one is set.
// It returns the number of local subscriptions that received it.
func (b *Broker) Publish(ctx context.Context, ev Event) int {
	if b.relay != nil {
		err := b.relay.Publish(ctx, ev)
		if err == nil {
			return 0
		}
		log.Printf("Event relay publish failed, delivering locally: %v", err)
	}
	return b.Deliver(ev)
}

// Deliver hands ev to matching local subscriptions without blocking.
func (b *Broker) Deliver(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched, delivered := 0, 0
	for _, key := range []uuid.UUID{ev.To, uuid.Nil} {
		for s := range b.subs[key] {
			if !s.wants(ev.Name) {
				continue
			}
			matched++
			select {
			case s.ch <- ev:
				delivered++
			default:
				log.Printf("Event buffer full for subscription of User %s. %s dropped.", s.userID, ev.Name)
				b.dropped(ev.Name)
			}
		}
		if ev.To == uuid.Nil {
			break
		}
	}

	// Full buffers were counted above.
	if matched == 0 {
		b.dropped(ev.Name)
	}
	if delivered > 0 && b.metrics != nil {
		b.metrics.EventDelivered(ev.Name)
	}
	return delivered
}

// SubscriberCount reports live subscriptions for userID.
func (b *Broker) SubscriberCount(userID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

func (b *Broker) dropped(name string) {
	if b.metrics != nil {
		b.metrics.EventDropped(name)
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	if userSubs, ok := b.subs[s.userID]; ok {
		delete(userSubs, s)
		if len(userSubs) == 0 {
			delete(b.subs, s.userID)
		}
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.StreamClosed()
	}
	log.Printf("Event subscription closed for User %s", s.userID)
}

// Subscription is a live registration. C is closed once the subscription ends.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	userID uuid.UUID
	names  map[string]bool
	broker *Broker
	once   sync.Once
	done   chan struct{}
}

func (s *Subscription) wants(name string) bool {
	return len(s.names) == 0 || s.names[name]
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
		close(s.ch)
	})
}
