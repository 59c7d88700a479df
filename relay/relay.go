// Package relay carries fanout signals between service replicas over Redis pub/sub, so a
// change accepted by one replica reaches the viewers connected to every replica.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/redis/go-redis/v9"
)

const signal = "reports_changed"

// Notifier is the local fanout the relay forwards to.
type Notifier interface {
	Notify()
}

// Relay implements Notifier by publishing to a Redis channel, and forwards every message
// seen on that channel to the local notifier.
type Relay struct {
	client  *redis.Client
	channel string
	local   Notifier

	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// New connects to Redis
func New(redisURL, channel string, local Notifier) (*Relay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, channel, local), nil
}

// NewWithClient creates a relay from an existing Redis client
func NewWithClient(client *redis.Client, channel string, local Notifier) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		local:   local,
	}
}

// Start subscribes to the channel and forwards messages until Close is called.
// The subscription is confirmed before Start returns.
func (r *Relay) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.pubsub = pubsub

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for range pubsub.Channel() {
			r.local.Notify()
		}
	}()

	log.Infof("Relaying fanout over redis channel %s", r.channel)
	return nil
}

// Notify publishes the change signal. If Redis cannot take it, local viewers are still
// notified.
func (r *Relay) Notify() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, signal).Err(); err != nil {
		log.Warnf("Failed to publish fanout signal, notifying local viewers only: %v", err)
		r.local.Notify()
	}
}

// Close stops forwarding and closes the Redis client.
func (r *Relay) Close() error {
	if r.pubsub != nil {
		r.pubsub.Close()
		r.wg.Wait()
	}
	return r.client.Close()
}
