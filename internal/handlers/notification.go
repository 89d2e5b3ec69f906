package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"elearn-portal/internal/models"
	"elearn-portal/internal/services"
	"elearn-portal/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationHandler struct {
	store               store.NotificationStore
	notificationService *services.NotificationService
	logger              *logrus.Logger
}

type SendNotificationRequest struct {
	UserIDs   []string               `json:"user_ids" binding:"required,min=1"`
	Title     string                 `json:"title" binding:"required,max=255"`
	Body      string                 `json:"body" binding:"required"`
	Type      string                 `json:"type" binding:"required"`
	ActionURL string                 `json:"action_url,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewNotificationHandler(st store.NotificationStore, notificationService *services.NotificationService, logger *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{
		store:               st,
		notificationService: notificationService,
		logger:              logger,
	}
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID := c.MustGet("user_id").(primitive.ObjectID)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	filter := store.ListFilter{Page: page, Limit: limit}
	if value := c.Query("is_read"); value != "" {
		isRead := value == "true"
		filter.IsRead = &isRead
	}
	if value := c.Query("type"); value != "" {
		notificationType := models.NotificationType(value)
		if !notificationType.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid notification type",
			})
			return
		}
		filter.Type = notificationType
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	notifications, err := h.store.ListByUser(ctx, userID, filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch notifications")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error fetching notifications",
		})
		return
	}

	unreadCount, err := h.store.UnreadCount(ctx, userID)
	if err != nil {
		unreadCount = 0
	}

	now := time.Now()
	views := make([]models.NotificationView, 0, len(notifications))
	for i := range notifications {
		views = append(views, notifications[i].View(now))
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": views,
		"unread_count":  unreadCount,
		"pagination": gin.H{
			"page":  filter.Page,
			"limit": filter.Limit,
		},
	})
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	userID := c.MustGet("user_id").(primitive.ObjectID)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	count, err := h.store.UnreadCount(ctx, userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to count unread notifications")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error counting notifications",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	h.setReadState(c, true)
}

func (h *NotificationHandler) MarkAsUnread(c *gin.Context) {
	h.setReadState(c, false)
}

func (h *NotificationHandler) setReadState(c *gin.Context, read bool) {
	userID := c.MustGet("user_id").(primitive.ObjectID)

	notificationID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid notification ID",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	var notification *models.Notification
	if read {
		notification, err = h.store.MarkRead(ctx, userID, notificationID)
	} else {
		notification, err = h.store.MarkUnread(ctx, userID, notificationID)
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Notification not found",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to update notification")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error updating notification",
		})
		return
	}

	// Other open sessions of this user see the read-state change live.
	h.notificationService.PublishUpdate(ctx, notification, map[string]interface{}{
		"is_read": notification.IsRead,
	})

	c.JSON(http.StatusOK, notification.View(time.Now()))
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID := c.MustGet("user_id").(primitive.ObjectID)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	count, err := h.store.MarkAllRead(ctx, userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to mark notifications as read")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error updating notifications",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%d notifications marked as read", count),
	})
}

func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	userID := c.MustGet("user_id").(primitive.ObjectID)

	notificationID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid notification ID",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	err = h.store.Delete(ctx, userID, notificationID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Notification not found",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete notification")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error deleting notification",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

func (h *NotificationHandler) DeleteAllNotifications(c *gin.Context) {
	userID := c.MustGet("user_id").(primitive.ObjectID)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	count, err := h.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete notifications")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error deleting notifications",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%d notifications deleted", count),
	})
}

// SendNotification is the admin fan-out endpoint. Per-recipient outcomes are
// returned individually; one recipient failing never fails the request.
func (h *NotificationHandler) SendNotification(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	notificationType := models.NotificationType(req.Type)
	if !notificationType.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid notification type",
		})
		return
	}

	userIDs := make([]primitive.ObjectID, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid user ID: %s", raw),
			})
			return
		}
		userIDs = append(userIDs, id)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	results := h.notificationService.SendToUsers(ctx, userIDs, services.SendParams{
		Type:      notificationType,
		Title:     req.Title,
		Body:      req.Body,
		ActionURL: req.ActionURL,
		Metadata:  req.Metadata,
	})

	response := make([]gin.H, 0, len(results))
	for _, result := range results {
		item := gin.H{"user_id": result.UserID.Hex()}
		if result.Err != nil {
			item["error"] = "Failed to create notification"
		} else {
			item["notification_id"] = result.NotificationID.Hex()
			item["status"] = result.Status
		}
		response = append(response, item)
	}

	c.JSON(http.StatusOK, gin.H{"results": response})
}
