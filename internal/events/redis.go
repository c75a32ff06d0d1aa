package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRelay shares events between server instances over a Redis pub/sub
// channel. Every instance runs Run and delivers what it receives locally.
type RedisRelay struct {
	client  *redis.Client
	channel string
	broker  *Broker
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func NewRedisRelay(client *redis.Client, channel string, broker *Broker) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, broker: broker}
}

func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run consumes the channel until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	log.Printf("[Redis] Event relay subscribed | channel=%s", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Println("[Redis] Event relay shutting down...")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[Redis] Event decode error: %v", err)
				continue
			}
			r.broker.Deliver(ev)
		}
	}
}
