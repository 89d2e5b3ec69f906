package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"elearn-portal/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	collection *mongo.Collection
}

var _ NotificationStore = (*MongoStore)(nil)

func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

func (s *MongoStore) Create(ctx context.Context, p CreateParams) (*models.Notification, error) {
	channel := p.Channel
	if channel == "" {
		channel = models.NotificationChannelInApp
	}

	now := time.Now()
	notification := &models.Notification{
		UserID:    p.UserID,
		Channel:   channel,
		Type:      p.Type,
		Title:     p.Title,
		Body:      p.Body,
		Metadata:  p.Metadata,
		ActionURL: p.ActionURL,
		Status:    models.NotificationStatusQueued,
		IsRead:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	result, err := s.collection.InsertOne(ctx, notification)
	if err != nil {
		return nil, fmt.Errorf("failed to save notification: %w", err)
	}

	notification.ID = result.InsertedID.(primitive.ObjectID)
	return notification, nil
}

func (s *MongoStore) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.NotificationStatus) error {
	now := time.Now()
	update := bson.M{
		"status":     status,
		"updated_at": now,
	}
	if status == models.NotificationStatusSent {
		update["sent_at"] = now
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) MarkRead(ctx context.Context, userID, id primitive.ObjectID) (*models.Notification, error) {
	now := time.Now()
	return s.findAndUpdate(ctx, userID, id, bson.M{
		"is_read":    true,
		"read_at":    now,
		"updated_at": now,
	})
}

func (s *MongoStore) MarkUnread(ctx context.Context, userID, id primitive.ObjectID) (*models.Notification, error) {
	return s.findAndUpdate(ctx, userID, id, bson.M{
		"is_read":    false,
		"read_at":    nil,
		"updated_at": time.Now(),
	})
}

func (s *MongoStore) findAndUpdate(ctx context.Context, userID, id primitive.ObjectID, set bson.M) (*models.Notification, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var notification models.Notification
	err := s.collection.FindOneAndUpdate(ctx, bson.M{
		"_id":     id,
		"user_id": userID,
	}, bson.M{"$set": set}, opts).Decode(&notification)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update notification: %w", err)
	}
	return &notification, nil
}

func (s *MongoStore) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	now := time.Now()
	result, err := s.collection.UpdateMany(ctx, bson.M{
		"user_id": userID,
		"is_read": false,
	}, bson.M{"$set": bson.M{
		"is_read":    true,
		"read_at":    now,
		"updated_at": now,
	}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) ListByUser(ctx context.Context, userID primitive.ObjectID, filter ListFilter) ([]models.Notification, error) {
	query := bson.M{"user_id": userID}
	if filter.IsRead != nil {
		query["is_read"] = *filter.IsRead
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64((page - 1) * limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var notifications []models.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return notifications, nil
}

func (s *MongoStore) UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{
		"user_id": userID,
		"is_read": false,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *MongoStore) Delete(ctx context.Context, userID, id primitive.ObjectID) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{
		"_id":     id,
		"user_id": userID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteAllForUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return result.DeletedCount, nil
}

func (s *MongoStore) ListFailed(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.M{"status": models.NotificationStatusFailed}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch failed notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var notifications []models.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return notifications, nil
}
