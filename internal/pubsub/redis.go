package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBroker implements Broker on Redis PUBLISH/SUBSCRIBE, one Redis channel
// per group, so every server process sharing the Redis instance can reach
// every recipient's sessions.
type RedisBroker struct {
	logger *logrus.Logger
	client *redis.Client

	mu     sync.Mutex
	closed bool
}

func NewRedisBroker(addr, password string, db int, logger *logrus.Logger) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("addr", addr).Info("Connected to Redis")

	return &RedisBroker{
		logger: logger,
		client: client,
	}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, group string, payload []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	if err := b.client.Publish(ctx, group, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to group %s: %w", group, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, group string) (*Subscription, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	ps := b.client.Subscribe(ctx, group)
	// Force the SUBSCRIBE round trip so a dead Redis fails here, not later.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to group %s: %w", group, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
				b.logger.WithField("group", group).Warn("dropping message for slow subscriber")
			}
		}
	}()

	var once sync.Once
	return NewSubscription(out, func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				b.logger.WithError(err).WithField("group", group).Warn("failed to close redis subscription")
			}
		})
	}), nil
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

func (b *RedisBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
