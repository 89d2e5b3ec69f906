// Package events is the in-process domain event surface. Producers publish
// after their own write has committed; handler failures are isolated and can
// never invalidate the producing operation.
package events

import (
	"context"
	"sync"

	"elearn-portal/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserCreated fires once per newly registered user.
type UserCreated struct {
	UserID   primitive.ObjectID
	Email    string
	FullName string
	Role     models.UserRole
}

type UserCreatedHandler func(ctx context.Context, event UserCreated)

type Bus struct {
	logger *logrus.Logger

	mu          sync.RWMutex
	userCreated []UserCreatedHandler
}

func NewBus(logger *logrus.Logger) *Bus {
	return &Bus{logger: logger}
}

func (b *Bus) SubscribeUserCreated(handler UserCreatedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userCreated = append(b.userCreated, handler)
}

// PublishUserCreated delivers the event to every subscribed handler. A
// panicking handler is recovered and logged; the remaining handlers still
// run and the publisher never observes a failure.
func (b *Bus) PublishUserCreated(ctx context.Context, event UserCreated) {
	b.mu.RLock()
	handlers := make([]UserCreatedHandler, len(b.userCreated))
	copy(handlers, b.userCreated)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.invoke(ctx, handler, event)
	}
}

func (b *Bus) invoke(ctx context.Context, handler UserCreatedHandler, event UserCreated) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event":   "user.created",
				"user_id": event.UserID.Hex(),
				"panic":   r,
			}).Error("Event handler panicked")
		}
	}()
	handler(ctx, event)
}
