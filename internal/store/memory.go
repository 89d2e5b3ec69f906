package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"elearn-portal/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps notifications in process memory. It exists for tests and
// carries the same semantics as MongoStore.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[primitive.ObjectID]*models.Notification

	// FailCreate makes the next Create calls return this error, to exercise
	// persistence-failure paths.
	FailCreate error
}

var _ NotificationStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notifications: make(map[primitive.ObjectID]*models.Notification)}
}

func (s *MemoryStore) Create(ctx context.Context, p CreateParams) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCreate != nil {
		return nil, s.FailCreate
	}

	channel := p.Channel
	if channel == "" {
		channel = models.NotificationChannelInApp
	}

	now := time.Now()
	notification := &models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    p.UserID,
		Channel:   channel,
		Type:      p.Type,
		Title:     p.Title,
		Body:      p.Body,
		Metadata:  p.Metadata,
		ActionURL: p.ActionURL,
		Status:    models.NotificationStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.notifications[notification.ID] = notification

	clone := *notification
	return &clone, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.NotificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification, ok := s.notifications[id]
	if !ok {
		return ErrNotFound
	}

	now := time.Now()
	notification.Status = status
	notification.UpdatedAt = now
	if status == models.NotificationStatusSent {
		notification.SentAt = &now
	}
	return nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, userID, id primitive.ObjectID) (*models.Notification, error) {
	return s.setRead(userID, id, true)
}

func (s *MemoryStore) MarkUnread(ctx context.Context, userID, id primitive.ObjectID) (*models.Notification, error) {
	return s.setRead(userID, id, false)
}

func (s *MemoryStore) setRead(userID, id primitive.ObjectID, read bool) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification, ok := s.notifications[id]
	if !ok || notification.UserID != userID {
		return nil, ErrNotFound
	}

	now := time.Now()
	notification.IsRead = read
	notification.UpdatedAt = now
	if read {
		notification.ReadAt = &now
	} else {
		notification.ReadAt = nil
	}

	clone := *notification
	return &clone, nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var count int64
	for _, notification := range s.notifications {
		if notification.UserID == userID && !notification.IsRead {
			notification.IsRead = true
			notification.ReadAt = &now
			notification.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID primitive.ObjectID, filter ListFilter) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var notifications []models.Notification
	for _, notification := range s.notifications {
		if notification.UserID != userID {
			continue
		}
		if filter.IsRead != nil && notification.IsRead != *filter.IsRead {
			continue
		}
		if filter.Type != "" && notification.Type != filter.Type {
			continue
		}
		notifications = append(notifications, *notification)
	}

	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	start := (page - 1) * limit
	if start >= len(notifications) {
		return nil, nil
	}
	end := start + limit
	if end > len(notifications) {
		end = len(notifications)
	}
	return notifications[start:end], nil
}

func (s *MemoryStore) UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, notification := range s.notifications {
		if notification.UserID == userID && !notification.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification, ok := s.notifications[id]
	if !ok || notification.UserID != userID {
		return ErrNotFound
	}
	delete(s.notifications, id)
	return nil
}

func (s *MemoryStore) DeleteAllForUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, notification := range s.notifications {
		if notification.UserID == userID {
			delete(s.notifications, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListFailed(ctx context.Context, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var notifications []models.Notification
	for _, notification := range s.notifications {
		if notification.Status == models.NotificationStatusFailed {
			notifications = append(notifications, *notification)
		}
	}

	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.Before(notifications[j].CreatedAt)
	})
	if len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

// Get returns a notification by id, for test assertions.
func (s *MemoryStore) Get(id primitive.ObjectID) (*models.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notification, ok := s.notifications[id]
	if !ok {
		return nil, false
	}
	clone := *notification
	return &clone, true
}
