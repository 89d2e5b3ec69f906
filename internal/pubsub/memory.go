package pubsub

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 64

// MemoryBroker is the single-process Broker. It backs tests and deployments
// without Redis; delivery never crosses a process boundary.
type MemoryBroker struct {
	logger *logrus.Logger

	mu     sync.RWMutex
	groups map[string]map[*memorySubscriber]struct{}
	closed bool
}

type memorySubscriber struct {
	ch   chan []byte
	once sync.Once
}

func NewMemoryBroker(logger *logrus.Logger) *MemoryBroker {
	return &MemoryBroker{
		logger: logger,
		groups: make(map[string]map[*memorySubscriber]struct{}),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, group string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for sub := range b.groups[group] {
		select {
		case sub.ch <- payload:
		default:
			// Subscriber is not draining; dropping beats stalling the
			// publisher. The persisted record is the durability guarantee.
			b.logger.WithField("group", group).Warn("dropping message for slow subscriber")
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, group string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscriber{ch: make(chan []byte, subscriberBuffer)}
	if b.groups[group] == nil {
		b.groups[group] = make(map[*memorySubscriber]struct{})
	}
	b.groups[group][sub] = struct{}{}

	return NewSubscription(sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.groups[group]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.groups, group)
			}
		}
		// Closing under the lock keeps Publish from writing to a closed
		// channel.
		sub.once.Do(func() { close(sub.ch) })
	}), nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for group, subs := range b.groups {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(b.groups, group)
	}
	return nil
}

// SubscriberCount reports current membership of a group, for introspection.
func (b *MemoryBroker) SubscriberCount(group string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[group])
}
