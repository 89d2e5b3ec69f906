package ws

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"elearn-portal/internal/pubsub"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRegistry(t *testing.T) (*Registry, *pubsub.MemoryBroker) {
	t.Helper()
	broker := pubsub.NewMemoryBroker(testLogger())
	t.Cleanup(func() { broker.Close() })
	return NewRegistry(broker, testLogger()), broker
}

// newIdleClient builds a client that is registered but whose pumps never run,
// so its send channel can be inspected directly.
func newIdleClient(registry *Registry, userID string) *Client {
	return NewClient(registry, nil, userID, testLogger(), Options{})
}

func expectPayload(t *testing.T, c *Client, want string) {
	t.Helper()
	select {
	case payload := <-c.send:
		assert.Equal(t, want, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed payload")
	}
}

func TestRegistry_SessionsShareOneSubscription(t *testing.T) {
	registry, broker := newTestRegistry(t)
	ctx := context.Background()
	group := pubsub.GroupForUser("u1")

	first := newIdleClient(registry, "u1")
	second := newIdleClient(registry, "u1")

	require.NoError(t, registry.Register(ctx, first))
	require.NoError(t, registry.Register(ctx, second))

	assert.Equal(t, 1, broker.SubscriberCount(group))
	assert.Equal(t, 2, registry.ConnectionsCount())
	assert.Equal(t, 1, registry.ActiveUsersCount())
	assert.Len(t, registry.SessionsFor("u1"), 2)

	registry.Deregister(first)
	assert.Equal(t, 1, broker.SubscriberCount(group), "subscription survives while a session remains")

	registry.Deregister(second)
	assert.Equal(t, 0, broker.SubscriberCount(group), "last session drops the subscription")
	assert.Equal(t, 0, registry.ActiveUsersCount())
}

func TestRegistry_DeregisterIsIdempotent(t *testing.T) {
	registry, broker := newTestRegistry(t)
	ctx := context.Background()

	a := newIdleClient(registry, "u1")
	b := newIdleClient(registry, "u1")
	require.NoError(t, registry.Register(ctx, a))
	require.NoError(t, registry.Register(ctx, b))

	registry.Deregister(a)
	registry.Deregister(a)
	registry.Deregister(a)

	assert.Equal(t, 1, registry.ConnectionsCount(), "repeat deregister must not evict the other session")
	assert.Equal(t, 1, broker.SubscriberCount(pubsub.GroupForUser("u1")))

	registry.Deregister(b)
	registry.Deregister(b)
	assert.Equal(t, 0, registry.ConnectionsCount())
}

func TestRegistry_DeregisterUnknownClientIsNoop(t *testing.T) {
	registry, _ := newTestRegistry(t)

	registry.Deregister(newIdleClient(registry, "ghost"))
	assert.Equal(t, 0, registry.ConnectionsCount())
}

func TestRegistry_RelayReachesEverySession(t *testing.T) {
	registry, broker := newTestRegistry(t)
	ctx := context.Background()

	a := newIdleClient(registry, "u1")
	b := newIdleClient(registry, "u1")
	other := newIdleClient(registry, "u2")
	require.NoError(t, registry.Register(ctx, a))
	require.NoError(t, registry.Register(ctx, b))
	require.NoError(t, registry.Register(ctx, other))

	require.NoError(t, broker.Publish(ctx, pubsub.GroupForUser("u1"), []byte(`{"type":"new_notification"}`)))

	expectPayload(t, a, `{"type":"new_notification"}`)
	expectPayload(t, b, `{"type":"new_notification"}`)

	select {
	case payload := <-other.send:
		t.Fatalf("cross-user leak: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRegistry_ReRegisterAfterLastDeregister(t *testing.T) {
	registry, broker := newTestRegistry(t)
	ctx := context.Background()
	group := pubsub.GroupForUser("u1")

	first := newIdleClient(registry, "u1")
	require.NoError(t, registry.Register(ctx, first))
	registry.Deregister(first)
	require.Equal(t, 0, broker.SubscriberCount(group))

	second := newIdleClient(registry, "u1")
	require.NoError(t, registry.Register(ctx, second))
	assert.Equal(t, 1, broker.SubscriberCount(group))

	require.NoError(t, broker.Publish(ctx, group, []byte("hello")))
	expectPayload(t, second, "hello")
}

type failingBroker struct {
	pubsub.Broker
}

func (failingBroker) Subscribe(ctx context.Context, group string) (*pubsub.Subscription, error) {
	return nil, errors.New("broker unavailable")
}

func TestRegistry_SubscribeFailureLeavesNoState(t *testing.T) {
	registry := NewRegistry(failingBroker{}, testLogger())

	err := registry.Register(context.Background(), newIdleClient(registry, "u1"))
	require.Error(t, err)

	assert.Equal(t, 0, registry.ConnectionsCount())
	assert.Equal(t, 0, registry.ActiveUsersCount())
}
