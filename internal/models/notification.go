package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationTypeInfo             NotificationType = "info"
	NotificationTypeSuccess          NotificationType = "success"
	NotificationTypeWarning          NotificationType = "warning"
	NotificationTypeError            NotificationType = "error"
	NotificationTypeCourse           NotificationType = "course"
	NotificationTypeEnrollment       NotificationType = "enrollment"
	NotificationTypeSession          NotificationType = "session"
	NotificationTypeLibrary          NotificationType = "library"
	NotificationTypeSystem           NotificationType = "system"
	NotificationTypeUserRegistration NotificationType = "user_registration"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeInfo, NotificationTypeSuccess, NotificationTypeWarning,
		NotificationTypeError, NotificationTypeCourse, NotificationTypeEnrollment,
		NotificationTypeSession, NotificationTypeLibrary, NotificationTypeSystem,
		NotificationTypeUserRegistration:
		return true
	}
	return false
}

// NotificationStatus tracks live delivery only. A failed notification is
// still durable; it just never reached a live session.
type NotificationStatus string

const (
	NotificationStatusQueued NotificationStatus = "queued"
	NotificationStatusSent   NotificationStatus = "sent"
	NotificationStatusFailed NotificationStatus = "failed"
)

type NotificationChannel string

const (
	NotificationChannelInApp NotificationChannel = "in_app"
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelPush  NotificationChannel = "push"
	NotificationChannelSMS   NotificationChannel = "sms"
)

// Notification is immutable after creation except for the read flag
// (client-driven) and the delivery status (system-driven).
type Notification struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    primitive.ObjectID     `bson:"user_id" json:"user_id"`
	Channel   NotificationChannel    `bson:"channel" json:"channel"`
	Type      NotificationType       `bson:"type" json:"type"`
	Title     string                 `bson:"title" json:"title"`
	Body      string                 `bson:"body" json:"body"`
	Metadata  map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	ActionURL string                 `bson:"action_url,omitempty" json:"action_url,omitempty"`
	Status    NotificationStatus     `bson:"status" json:"status"`
	IsRead    bool                   `bson:"is_read" json:"is_read"`
	SentAt    *time.Time             `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
	ReadAt    *time.Time             `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time              `bson:"updated_at" json:"updated_at"`
}

// NotificationView is the wire shape pushed to clients and returned by list
// endpoints. TimeAgo is derived at serialization time, never stored.
type NotificationView struct {
	ID        string                 `json:"id"`
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	ActionURL string                 `json:"action_url,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	IsRead    bool                   `json:"is_read"`
	TimeAgo   string                 `json:"time_ago"`
	CreatedAt time.Time              `json:"created_at"`
}

func (n *Notification) View(now time.Time) NotificationView {
	return NotificationView{
		ID:        n.ID.Hex(),
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		ActionURL: n.ActionURL,
		Metadata:  n.Metadata,
		IsRead:    n.IsRead,
		TimeAgo:   n.TimeAgo(now),
		CreatedAt: n.CreatedAt,
	}
}

// TimeAgo returns a human-readable relative age like "5 minutes ago".
func (n *Notification) TimeAgo(now time.Time) string {
	diff := now.Sub(n.CreatedAt)
	if diff < 0 {
		diff = 0
	}

	days := int(diff.Hours()) / 24
	if days > 0 {
		switch {
		case days == 1:
			return "1 day ago"
		case days < 7:
			return fmt.Sprintf("%d days ago", days)
		case days < 30:
			weeks := days / 7
			return fmt.Sprintf("%d week%s ago", weeks, plural(weeks))
		default:
			months := days / 30
			return fmt.Sprintf("%d month%s ago", months, plural(months))
		}
	}

	if hours := int(diff.Hours()); hours > 0 {
		return fmt.Sprintf("%d hour%s ago", hours, plural(hours))
	}
	if minutes := int(diff.Minutes()); minutes > 0 {
		return fmt.Sprintf("%d minute%s ago", minutes, plural(minutes))
	}
	return "Just now"
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
