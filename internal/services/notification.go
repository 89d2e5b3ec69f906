package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"elearn-portal/internal/models"
	"elearn-portal/internal/pubsub"
	"elearn-portal/internal/store"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationService is the single entry point for producing notifications.
// Persistence is the success contract: once the record is written the caller
// is told the operation succeeded, and the live push to whichever sessions
// happen to be connected is best-effort on top of that.
type NotificationService struct {
	store          store.NotificationStore
	broker         pubsub.Broker
	logger         *logrus.Logger
	publishTimeout time.Duration
}

// SendParams carries notification content shared by every recipient of a
// dispatch call.
type SendParams struct {
	Type      models.NotificationType
	Title     string
	Body      string
	Channel   models.NotificationChannel
	ActionURL string
	Metadata  map[string]interface{}
}

// DeliveryResult is one recipient's outcome of a fan-out call.
type DeliveryResult struct {
	UserID         primitive.ObjectID
	NotificationID primitive.ObjectID
	Status         models.NotificationStatus
	Err            error
}

type newNotificationFrame struct {
	Type         string                  `json:"type"`
	Notification models.NotificationView `json:"notification"`
}

type notificationUpdatedFrame struct {
	Type           string                 `json:"type"`
	NotificationID string                 `json:"notification_id"`
	Updates        map[string]interface{} `json:"updates"`
}

func NewNotificationService(st store.NotificationStore, broker pubsub.Broker, logger *logrus.Logger, publishTimeout time.Duration) *NotificationService {
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &NotificationService{
		store:          st,
		broker:         broker,
		logger:         logger,
		publishTimeout: publishTimeout,
	}
}

// SendToUser persists one notification and pushes it to the recipient's
// transport group. A persistence failure is returned to the caller; a publish
// failure is absorbed, logged and recorded as status "failed" on the durable
// record.
func (s *NotificationService) SendToUser(ctx context.Context, userID primitive.ObjectID, p SendParams) (*models.Notification, error) {
	notification, err := s.store.Create(ctx, store.CreateParams{
		UserID:    userID,
		Channel:   p.Channel,
		Type:      p.Type,
		Title:     p.Title,
		Body:      p.Body,
		ActionURL: p.ActionURL,
		Metadata:  p.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notification for user %s: %w", userID.Hex(), err)
	}

	status := models.NotificationStatusSent
	if err := s.publishNew(ctx, notification); err != nil {
		status = models.NotificationStatusFailed
		s.logger.WithFields(logrus.Fields{
			"user_id":         userID.Hex(),
			"notification_id": notification.ID.Hex(),
		}).WithError(err).Error("Failed to publish notification to transport group")
	}

	if err := s.store.UpdateStatus(ctx, notification.ID, status); err != nil {
		s.logger.WithField("notification_id", notification.ID.Hex()).
			WithError(err).Error("Failed to update notification status")
	} else {
		notification.Status = status
	}

	return notification, nil
}

// SendToUsers fans the same content out to a set of recipients, one durable
// record each. Recipients are deduplicated and processed independently;
// a failure for one never rolls back or aborts the others.
func (s *NotificationService) SendToUsers(ctx context.Context, userIDs []primitive.ObjectID, p SendParams) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(userIDs))

	seen := make(map[primitive.ObjectID]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		result := DeliveryResult{UserID: userID}
		notification, err := s.SendToUser(ctx, userID, p)
		if err != nil {
			result.Err = err
			s.logger.WithField("user_id", userID.Hex()).
				WithError(err).Error("Failed to create notification during fan-out")
		} else {
			result.NotificationID = notification.ID
			result.Status = notification.Status
		}
		results = append(results, result)
	}

	return results
}

// PublishUpdate pushes a notification_updated frame (e.g. after a mark-read)
// to the recipient's live sessions. Best-effort only.
func (s *NotificationService) PublishUpdate(ctx context.Context, notification *models.Notification, updates map[string]interface{}) {
	payload, err := json.Marshal(notificationUpdatedFrame{
		Type:           "notification_updated",
		NotificationID: notification.ID.Hex(),
		Updates:        updates,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal notification update")
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	group := pubsub.GroupForUser(notification.UserID.Hex())
	if err := s.broker.Publish(publishCtx, group, payload); err != nil {
		s.logger.WithField("group", group).WithError(err).Warn("Failed to publish notification update")
	}
}

// FailedNotifications lists durable records whose live push never succeeded,
// for an out-of-band resend sweep.
func (s *NotificationService) FailedNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	return s.store.ListFailed(ctx, limit)
}

func (s *NotificationService) publishNew(ctx context.Context, notification *models.Notification) error {
	payload, err := json.Marshal(newNotificationFrame{
		Type:         "new_notification",
		Notification: notification.View(time.Now()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// Bounded so a slow transport cannot stall the dispatcher.
	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	return s.broker.Publish(publishCtx, pubsub.GroupForUser(notification.UserID.Hex()), payload)
}
