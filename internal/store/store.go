// Package store owns durable persistence of notifications. The dispatcher
// only ever calls Create and UpdateStatus; the remaining operations back the
// HTTP history endpoints and client-driven read-state changes.
package store

import (
	"context"
	"errors"

	"elearn-portal/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrNotFound = errors.New("store: notification not found")

// CreateParams fixes every immutable attribute at creation time. The store
// assigns the id, timestamps and the initial QUEUED status.
type CreateParams struct {
	UserID    primitive.ObjectID
	Channel   models.NotificationChannel
	Type      models.NotificationType
	Title     string
	Body      string
	ActionURL string
	Metadata  map[string]interface{}
}

// ListFilter narrows ListByUser. Nil IsRead means both read and unread.
type ListFilter struct {
	IsRead *bool
	Type   models.NotificationType
	Page   int
	Limit  int
}

type NotificationStore interface {
	Create(ctx context.Context, p CreateParams) (*models.Notification, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.NotificationStatus) error

	MarkRead(ctx context.Context, userID, id primitive.ObjectID) (*models.Notification, error)
	MarkUnread(ctx context.Context, userID, id primitive.ObjectID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error)

	ListByUser(ctx context.Context, userID primitive.ObjectID, filter ListFilter) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error)

	Delete(ctx context.Context, userID, id primitive.ObjectID) error
	DeleteAllForUser(ctx context.Context, userID primitive.ObjectID) (int64, error)

	// ListFailed exposes durable-but-unpushed records for an out-of-band
	// resend sweep. Nothing in this process retries them automatically.
	ListFailed(ctx context.Context, limit int) ([]models.Notification, error)
}
