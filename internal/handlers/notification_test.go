package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"elearn-portal/internal/models"
	"elearn-portal/internal/pubsub"
	"elearn-portal/internal/services"
	"elearn-portal/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type notifTestEnv struct {
	router *gin.Engine
	store  *store.MemoryStore
	broker *pubsub.MemoryBroker
	userID primitive.ObjectID
}

func newNotifTestEnv(t *testing.T) *notifTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := testLogger()
	st := store.NewMemoryStore()
	broker := pubsub.NewMemoryBroker(logger)
	t.Cleanup(func() { broker.Close() })
	svc := services.NewNotificationService(st, broker, logger, time.Second)
	handler := NewNotificationHandler(st, svc, logger)

	userID := primitive.NewObjectID()
	router := gin.New()
	authed := router.Group("/api/v1", func(c *gin.Context) {
		c.Set("user_id", userID)
	})
	authed.GET("/notifications", handler.GetNotifications)
	authed.GET("/notifications/unread-count", handler.GetUnreadCount)
	authed.POST("/notifications/:id/read", handler.MarkAsRead)
	authed.POST("/notifications/:id/unread", handler.MarkAsUnread)
	authed.POST("/notifications/read-all", handler.MarkAllAsRead)
	authed.DELETE("/notifications/:id", handler.DeleteNotification)
	authed.DELETE("/notifications", handler.DeleteAllNotifications)
	authed.POST("/admin/notifications/send", handler.SendNotification)

	return &notifTestEnv{router: router, store: st, broker: broker, userID: userID}
}

func (env *notifTestEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *notifTestEnv) seed(t *testing.T, userID primitive.ObjectID, nType models.NotificationType, title string) *models.Notification {
	t.Helper()
	n, err := env.store.Create(context.Background(), store.CreateParams{
		UserID: userID,
		Type:   nType,
		Title:  title,
		Body:   "body",
	})
	require.NoError(t, err)
	return n
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGetNotifications(t *testing.T) {
	env := newNotifTestEnv(t)
	env.seed(t, env.userID, models.NotificationTypeInfo, "first")
	env.seed(t, env.userID, models.NotificationTypeCourse, "second")
	env.seed(t, primitive.NewObjectID(), models.NotificationTypeInfo, "other user")

	w := env.do(t, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Len(t, body["notifications"], 2)
	assert.EqualValues(t, 2, body["unread_count"])
}

func TestGetNotifications_TypeFilter(t *testing.T) {
	env := newNotifTestEnv(t)
	env.seed(t, env.userID, models.NotificationTypeInfo, "info")
	env.seed(t, env.userID, models.NotificationTypeCourse, "course")

	w := env.do(t, http.MethodGet, "/api/v1/notifications?type=course", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Len(t, body["notifications"], 1)

	w = env.do(t, http.MethodGet, "/api/v1/notifications?type=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnreadCountEndpoint(t *testing.T) {
	env := newNotifTestEnv(t)
	env.seed(t, env.userID, models.NotificationTypeInfo, "a")
	env.seed(t, env.userID, models.NotificationTypeInfo, "b")

	w := env.do(t, http.MethodGet, "/api/v1/notifications/unread-count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decodeBody(t, w)["unread_count"])
}

func TestMarkAsReadAndUnread(t *testing.T) {
	env := newNotifTestEnv(t)
	n := env.seed(t, env.userID, models.NotificationTypeInfo, "a")

	// Another session of the same user observes the change live.
	sub, err := env.broker.Subscribe(context.Background(), pubsub.GroupForUser(env.userID.Hex()))
	require.NoError(t, err)
	defer sub.Close()

	w := env.do(t, http.MethodPost, "/api/v1/notifications/"+n.ID.Hex()+"/read", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["is_read"])

	select {
	case payload := <-sub.C:
		var f struct {
			Type    string                 `json:"type"`
			Updates map[string]interface{} `json:"updates"`
		}
		require.NoError(t, json.Unmarshal(payload, &f))
		assert.Equal(t, "notification_updated", f.Type)
		assert.Equal(t, true, f.Updates["is_read"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update frame")
	}

	w = env.do(t, http.MethodPost, "/api/v1/notifications/"+n.ID.Hex()+"/unread", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["is_read"])
}

func TestMarkAsRead_Errors(t *testing.T) {
	env := newNotifTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/notifications/not-an-id/read", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/notifications/"+primitive.NewObjectID().Hex()+"/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Someone else's notification reads as absent, not forbidden.
	other := env.seed(t, primitive.NewObjectID(), models.NotificationTypeInfo, "x")
	w = env.do(t, http.MethodPost, "/api/v1/notifications/"+other.ID.Hex()+"/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkAllAsRead(t *testing.T) {
	env := newNotifTestEnv(t)
	env.seed(t, env.userID, models.NotificationTypeInfo, "a")
	env.seed(t, env.userID, models.NotificationTypeInfo, "b")

	w := env.do(t, http.MethodPost, "/api/v1/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2 notifications marked as read", decodeBody(t, w)["message"])

	count, err := env.store.UnreadCount(context.Background(), env.userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteNotification(t *testing.T) {
	env := newNotifTestEnv(t)
	n := env.seed(t, env.userID, models.NotificationTypeInfo, "a")

	w := env.do(t, http.MethodDelete, "/api/v1/notifications/"+n.ID.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/notifications/"+n.ID.Hex(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAllNotifications(t *testing.T) {
	env := newNotifTestEnv(t)
	env.seed(t, env.userID, models.NotificationTypeInfo, "a")
	env.seed(t, env.userID, models.NotificationTypeInfo, "b")
	kept := env.seed(t, primitive.NewObjectID(), models.NotificationTypeInfo, "other")

	w := env.do(t, http.MethodDelete, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2 notifications deleted", decodeBody(t, w)["message"])

	_, ok := env.store.Get(kept.ID)
	assert.True(t, ok)
}

func TestSendNotification_FanOut(t *testing.T) {
	env := newNotifTestEnv(t)
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()

	w := env.do(t, http.MethodPost, "/api/v1/admin/notifications/send", gin.H{
		"user_ids": []string{a.Hex(), b.Hex(), a.Hex()},
		"title":    "Exam schedule",
		"body":     "Published for spring term",
		"type":     "info",
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	results := body["results"].([]interface{})
	require.Len(t, results, 2)
	for _, raw := range results {
		result := raw.(map[string]interface{})
		assert.Equal(t, "sent", result["status"])
		assert.NotEmpty(t, result["notification_id"])
	}
}

func TestSendNotification_Validation(t *testing.T) {
	env := newNotifTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/admin/notifications/send", gin.H{
		"title": "no recipients",
		"body":  "b",
		"type":  "info",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/admin/notifications/send", gin.H{
		"user_ids": []string{"not-hex"},
		"title":    "t",
		"body":     "b",
		"type":     "info",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/admin/notifications/send", gin.H{
		"user_ids": []string{primitive.NewObjectID().Hex()},
		"title":    "t",
		"body":     "b",
		"type":     "carrier_pigeon",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
