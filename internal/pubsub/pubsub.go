// Package pubsub is the group publish/subscribe capability used to reach a
// recipient's live sessions regardless of which process accepted them. A
// group is an opaque name; this project uses one group per recipient.
package pubsub

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("pubsub: broker is closed")

type Broker interface {
	// Publish sends payload to every current subscriber of group. It is
	// best-effort with respect to delivery and bounded by ctx.
	Publish(ctx context.Context, group string, payload []byte) error

	// Subscribe returns a subscription whose channel receives every payload
	// published to group after the call returns.
	Subscribe(ctx context.Context, group string) (*Subscription, error)

	Close() error
}

// Subscription is one membership in a group. Close is idempotent and causes
// C to be closed once any in-flight deliveries are drained.
type Subscription struct {
	C <-chan []byte

	close func()
}

func NewSubscription(c <-chan []byte, close func()) *Subscription {
	return &Subscription{C: c, close: close}
}

func (s *Subscription) Close() {
	if s.close != nil {
		s.close()
	}
}

// GroupForUser is the naming convention for per-recipient groups.
func GroupForUser(userID string) string {
	return "notifications_" + userID
}
