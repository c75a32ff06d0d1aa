package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"chit-chat/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertNothing(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case ev := <-s.C:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBrokerDeliversToRecipientOnly(t *testing.T) {
	b := NewBroker()
	alice, bob := uuid.New(), uuid.New()

	subA := b.Subscribe(context.Background(), alice, SendMessage)
	subB := b.Subscribe(context.Background(), bob, SendMessage)
	defer subA.Close()
	defer subB.Close()

	n := b.Publish(context.Background(), Event{Name: SendMessage, To: bob, Data: bob.String()})
	assert.Equal(t, 1, n)

	ev := receive(t, subB)
	assert.Equal(t, SendMessage, ev.Name)
	assert.Equal(t, bob.String(), ev.Data)
	assertNothing(t, subA)
}

func TestBrokerFiltersByName(t *testing.T) {
	b := NewBroker()
	user := uuid.New()
	typing := b.Subscribe(context.Background(), user, OnInput)
	all := b.Subscribe(context.Background(), user)
	defer typing.Close()
	defer all.Close()

	b.Publish(context.Background(), Event{Name: SendMessage, To: user, Data: user.String()})

	assert.Equal(t, SendMessage, receive(t, all).Name)
	assertNothing(t, typing)
}

func TestBrokerWildcardSubscriber(t *testing.T) {
	b := NewBroker()
	watcher := b.Subscribe(context.Background(), uuid.Nil)
	defer watcher.Close()

	target := uuid.New()
	b.Publish(context.Background(), Event{Name: OnInput, To: target, Data: target.String()})
	assert.Equal(t, target.String(), receive(t, watcher).Data)
}

// counterValue reads one labelled series from the collector's registry.
func counterValue(t *testing.T, metrics *utils.MetricsCollector, name, event string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "event" && lp.GetValue() == event {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestBrokerDropsWithoutSubscriber(t *testing.T) {
	metrics := utils.NewMetricsCollector()
	b := NewBroker(WithMetrics(metrics))
	assert.Equal(t, 0, b.Publish(context.Background(), Event{Name: SendMessage, To: uuid.New()}))
	assert.Equal(t, 1.0, counterValue(t, metrics, "chitchat_events_dropped_total", SendMessage))
}

func TestBrokerDropsWhenBufferFull(t *testing.T) {
	metrics := utils.NewMetricsCollector()
	b := NewBroker(WithBufferSize(1), WithMetrics(metrics))
	user := uuid.New()
	sub := b.Subscribe(context.Background(), user)
	defer sub.Close()

	assert.Equal(t, 1, b.Publish(context.Background(), Event{Name: SendMessage, To: user, Data: "1"}))
	assert.Equal(t, 0, b.Publish(context.Background(), Event{Name: SendMessage, To: user, Data: "2"}))
	assert.Equal(t, "1", receive(t, sub).Data)

	assert.Equal(t, 1.0, counterValue(t, metrics, "chitchat_events_dropped_total", SendMessage))
	assert.Equal(t, 1.0, counterValue(t, metrics, "chitchat_events_delivered_total", SendMessage))
}

func TestBrokerCountsEachFullSubscriptionOnce(t *testing.T) {
	metrics := utils.NewMetricsCollector()
	b := NewBroker(WithBufferSize(1), WithMetrics(metrics))
	user := uuid.New()
	first := b.Subscribe(context.Background(), user)
	defer first.Close()
	second := b.Subscribe(context.Background(), user)
	defer second.Close()

	assert.Equal(t, 2, b.Publish(context.Background(), Event{Name: OnInput, To: user, Data: "1"}))
	assert.Equal(t, 0, b.Publish(context.Background(), Event{Name: OnInput, To: user, Data: "2"}))

	assert.Equal(t, 2.0, counterValue(t, metrics, "chitchat_events_dropped_total", OnInput))
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	b := NewBroker()
	user := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx, user)
	assert.Equal(t, 1, b.SubscriberCount(user))

	cancel()
	select {
	case _, ok := <-sub.C:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.Equal(t, 0, b.SubscriberCount(user))

	// Closing again is a no-op and publishing after close is dropped.
	sub.Close()
	assert.Equal(t, 0, b.Publish(context.Background(), Event{Name: SendMessage, To: user}))
}

type fakeRelay struct {
	broker *Broker
	err    error
	sent   []Event
}

func (f *fakeRelay) Publish(ctx context.Context, ev Event) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, ev)
	f.broker.Deliver(ev)
	return nil
}

func TestBrokerPublishesThroughRelay(t *testing.T) {
	b := NewBroker()
	relay := &fakeRelay{broker: b}
	b.SetRelay(relay)

	user := uuid.New()
	sub := b.Subscribe(context.Background(), user)
	defer sub.Close()

	b.Publish(context.Background(), Event{Name: SendMessage, To: user, Data: user.String()})
	require.Len(t, relay.sent, 1)
	assert.Equal(t, user.String(), receive(t, sub).Data)
}

func TestBrokerFallsBackWhenRelayFails(t *testing.T) {
	b := NewBroker()
	b.SetRelay(&fakeRelay{broker: b, err: errors.New("redis down")})

	user := uuid.New()
	sub := b.Subscribe(context.Background(), user)
	defer sub.Close()

	assert.Equal(t, 1, b.Publish(context.Background(), Event{Name: OnInput, To: user, Data: user.String()}))
	assert.Equal(t, OnInput, receive(t, sub).Name)
}
