package events

import (
	"context"
	"fmt"

	"elearn-portal/internal/models"
	"elearn-portal/internal/services"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SuperAdminDirectory resolves the current privileged-operator set. The hook
// queries it on every event rather than caching, because the set changes.
type SuperAdminDirectory interface {
	SuperAdminIDs(ctx context.Context) ([]primitive.ObjectID, error)
}

// Dispatcher is the slice of NotificationService the hook needs.
type Dispatcher interface {
	SendToUsers(ctx context.Context, userIDs []primitive.ObjectID, p services.SendParams) []services.DeliveryResult
}

// RegisterUserNotificationHook wires the reactive fan-out: every new user
// registration notifies all super admins. Dispatch failures are logged and
// never propagate to the registration code path.
func RegisterUserNotificationHook(bus *Bus, directory SuperAdminDirectory, dispatcher Dispatcher, backendURL string, logger *logrus.Logger) {
	bus.SubscribeUserCreated(func(ctx context.Context, event UserCreated) {
		admins, err := directory.SuperAdminIDs(ctx)
		if err != nil {
			logger.WithError(err).Error("Failed to resolve super admins for registration notification")
			return
		}
		if len(admins) == 0 {
			return
		}

		actionURL := fmt.Sprintf("%s/admin/users/%s", backendURL, event.UserID.Hex())
		results := dispatcher.SendToUsers(ctx, admins, services.SendParams{
			Type:      models.NotificationTypeUserRegistration,
			Title:     "New User Registration",
			Body:      fmt.Sprintf("A new %s has registered: %s (%s)", event.Role.Display(), event.FullName, event.Email),
			ActionURL: actionURL,
			Metadata: map[string]interface{}{
				"user_id":        event.UserID.Hex(),
				"user_email":     event.Email,
				"user_full_name": event.FullName,
				"user_role":      event.Role.String(),
				"admin_url":      actionURL,
			},
		})

		for _, result := range results {
			if result.Err != nil {
				logger.WithFields(logrus.Fields{
					"admin_id": result.UserID.Hex(),
					"new_user": event.UserID.Hex(),
				}).WithError(result.Err).Error("Failed to notify super admin of registration")
			}
		}
	})
}
