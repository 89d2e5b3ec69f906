// Package ws owns the live-connection side of notification delivery: the
// per-process registry of recipients' open sessions and the session handler
// for one websocket connection.
package ws

import (
	"context"
	"fmt"
	"sync"

	"elearn-portal/internal/pubsub"

	"github.com/sirupsen/logrus"
)

// Registry tracks which recipients currently have live sessions in this
// process. All sessions of one recipient share a single transport-group
// subscription, held for as long as at least one session remains
// (reference counting by session-set size).
type Registry struct {
	broker pubsub.Broker
	logger *logrus.Logger

	mu    sync.Mutex
	users map[string]*userEntry
}

type userEntry struct {
	sessions map[string]*Client
	sub      *pubsub.Subscription

	// ready is closed once the group subscription is attached (or failed);
	// registrants other than the first wait on it instead of subscribing.
	ready chan struct{}
	err   error
}

func NewRegistry(broker pubsub.Broker, logger *logrus.Logger) *Registry {
	return &Registry{
		broker: broker,
		logger: logger,
		users:  make(map[string]*userEntry),
	}
}

// Register adds a session under its recipient and, for the recipient's first
// session in this process, subscribes to the recipient's transport group.
// The registry lock is never held across the subscribe call.
func (r *Registry) Register(ctx context.Context, client *Client) error {
	r.mu.Lock()
	entry, exists := r.users[client.userID]
	if !exists {
		entry = &userEntry{
			sessions: make(map[string]*Client),
			ready:    make(chan struct{}),
		}
		r.users[client.userID] = entry
	}
	entry.sessions[client.sessionID] = client
	r.mu.Unlock()

	if !exists {
		return r.attachSubscription(ctx, client.userID, entry)
	}

	// Another session is (or was) establishing the shared subscription.
	select {
	case <-entry.ready:
	case <-ctx.Done():
		r.remove(client)
		return ctx.Err()
	}
	if entry.err != nil {
		r.remove(client)
		return entry.err
	}
	return nil
}

func (r *Registry) attachSubscription(ctx context.Context, userID string, entry *userEntry) error {
	sub, err := r.broker.Subscribe(ctx, pubsub.GroupForUser(userID))

	r.mu.Lock()
	if err != nil {
		entry.err = fmt.Errorf("failed to subscribe to notification group: %w", err)
		delete(r.users, userID)
		close(entry.ready)
		r.mu.Unlock()
		return entry.err
	}

	if len(entry.sessions) == 0 {
		// Every session left while the subscribe round trip was in flight.
		delete(r.users, userID)
		close(entry.ready)
		r.mu.Unlock()
		sub.Close()
		return nil
	}

	entry.sub = sub
	close(entry.ready)
	r.mu.Unlock()

	go r.relay(userID, entry, sub)

	r.logger.WithField("user_id", userID).Debug("Subscribed to notification group")
	return nil
}

// relay fans every group message out to each of the recipient's local
// sessions. It exits when the subscription is closed by the last deregister.
func (r *Registry) relay(userID string, entry *userEntry, sub *pubsub.Subscription) {
	for payload := range sub.C {
		r.mu.Lock()
		clients := make([]*Client, 0, len(entry.sessions))
		for _, client := range entry.sessions {
			clients = append(clients, client)
		}
		r.mu.Unlock()

		for _, client := range clients {
			client.Enqueue(payload)
		}
	}
}

// Deregister removes a session. Removing the recipient's last session drops
// the shared group subscription. Safe to call more than once per session.
func (r *Registry) Deregister(client *Client) {
	sub := r.remove(client)
	if sub != nil {
		sub.Close()
		r.logger.WithField("user_id", client.userID).Debug("Unsubscribed from notification group")
	}
}

func (r *Registry) remove(client *Client) *pubsub.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.users[client.userID]
	if !ok {
		return nil
	}
	if _, ok := entry.sessions[client.sessionID]; !ok {
		return nil
	}

	delete(entry.sessions, client.sessionID)
	if len(entry.sessions) > 0 {
		return nil
	}

	// Last session gone: detach under the lock so a concurrent Register
	// starts from a fresh entry with its own subscription.
	delete(r.users, client.userID)
	return entry.sub
}

// SessionsFor reports the session ids currently registered for a recipient.
// Introspection only; delivery always goes through the transport.
func (r *Registry) SessionsFor(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.users[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(entry.sessions))
	for id := range entry.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) ConnectionsCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, entry := range r.users {
		total += len(entry.sessions)
	}
	return total
}

func (r *Registry) ActiveUsersCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
