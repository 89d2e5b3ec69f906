package store

import (
	"context"
	"errors"
	"testing"

	"elearn-portal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryStore_CreateDefaults(t *testing.T) {
	s := NewMemoryStore()
	userID := primitive.NewObjectID()

	n, err := s.Create(context.Background(), CreateParams{
		UserID:   userID,
		Type:     models.NotificationTypeCourse,
		Title:    "Course updated",
		Body:     "Algebra II has new material",
		Metadata: map[string]interface{}{"course_id": "42"},
	})
	require.NoError(t, err)

	assert.False(t, n.ID.IsZero())
	assert.Equal(t, userID, n.UserID)
	assert.Equal(t, models.NotificationStatusQueued, n.Status)
	assert.Equal(t, models.NotificationChannelInApp, n.Channel)
	assert.False(t, n.IsRead)
	assert.Nil(t, n.SentAt)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n, err := s.Create(ctx, CreateParams{UserID: primitive.NewObjectID(), Type: models.NotificationTypeInfo, Title: "t", Body: "b"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, n.ID, models.NotificationStatusSent))
	got, ok := s.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, models.NotificationStatusSent, got.Status)
	assert.NotNil(t, got.SentAt)

	assert.ErrorIs(t, s.UpdateStatus(ctx, primitive.NewObjectID(), models.NotificationStatusFailed), ErrNotFound)
}

func TestMemoryStore_ReadStateTransitions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	n, err := s.Create(ctx, CreateParams{UserID: userID, Type: models.NotificationTypeInfo, Title: "t", Body: "b"})
	require.NoError(t, err)

	read, err := s.MarkRead(ctx, userID, n.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	assert.NotNil(t, read.ReadAt)

	unread, err := s.MarkUnread(ctx, userID, n.ID)
	require.NoError(t, err)
	assert.False(t, unread.IsRead)
	assert.Nil(t, unread.ReadAt)

	// A notification belongs to exactly one recipient.
	_, err = s.MarkRead(ctx, primitive.NewObjectID(), n.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListAndCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	otherID := primitive.NewObjectID()

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, CreateParams{UserID: userID, Type: models.NotificationTypeInfo, Title: "t", Body: "b"})
		require.NoError(t, err)
	}
	enrollment, err := s.Create(ctx, CreateParams{UserID: userID, Type: models.NotificationTypeEnrollment, Title: "t", Body: "b"})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateParams{UserID: otherID, Type: models.NotificationTypeInfo, Title: "t", Body: "b"})
	require.NoError(t, err)

	all, err := s.ListByUser(ctx, userID, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byType, err := s.ListByUser(ctx, userID, ListFilter{Type: models.NotificationTypeEnrollment})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, enrollment.ID, byType[0].ID)

	_, err = s.MarkRead(ctx, userID, enrollment.ID)
	require.NoError(t, err)

	unread := false
	readOnly, err := s.ListByUser(ctx, userID, ListFilter{IsRead: &unread})
	require.NoError(t, err)
	assert.Len(t, readOnly, 3)

	count, err := s.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	marked, err := s.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, marked)

	count, err = s.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	n, err := s.Create(ctx, CreateParams{UserID: userID, Type: models.NotificationTypeInfo, Title: "t", Body: "b"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, primitive.NewObjectID(), n.ID), ErrNotFound)
	require.NoError(t, s.Delete(ctx, userID, n.ID))
	assert.ErrorIs(t, s.Delete(ctx, userID, n.ID), ErrNotFound)
}

func TestMemoryStore_ListFailed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.Create(ctx, CreateParams{UserID: primitive.NewObjectID(), Type: models.NotificationTypeInfo, Title: "t", Body: "b"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, ok.ID, models.NotificationStatusSent))

	failed, err := s.Create(ctx, CreateParams{UserID: primitive.NewObjectID(), Type: models.NotificationTypeInfo, Title: "t", Body: "b"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, failed.ID, models.NotificationStatusFailed))

	got, err := s.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, failed.ID, got[0].ID)
}

func TestMemoryStore_FailCreate(t *testing.T) {
	s := NewMemoryStore()
	s.FailCreate = errors.New("store unavailable")

	_, err := s.Create(context.Background(), CreateParams{UserID: primitive.NewObjectID(), Type: models.NotificationTypeInfo, Title: "t", Body: "b"})
	assert.Error(t, err)
}
