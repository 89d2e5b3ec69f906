package handlers

import (
	"context"
	"net/http"
	"time"

	"elearn-portal/internal/ws"
	"elearn-portal/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering is handled by the CORS layer in front of this.
		return true
	},
}

// WebSocketHandler admits live notification sessions. A connection reaches
// the registry only after its token yields a verified recipient identity;
// rejected attempts are closed without ever being registered.
type WebSocketHandler struct {
	jwtManager *auth.JWTManager
	registry   *ws.Registry
	logger     *logrus.Logger
	opts       ws.Options
}

func NewWebSocketHandler(jwtManager *auth.JWTManager, registry *ws.Registry, logger *logrus.Logger, opts ws.Options) *WebSocketHandler {
	return &WebSocketHandler{
		jwtManager: jwtManager,
		registry:   registry,
		logger:     logger,
		opts:       opts,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Token is required",
		})
		return
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid token",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.registry, conn, claims.UserID.Hex(), h.logger, h.opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.registry.Register(ctx, client); err != nil {
		h.logger.WithField("user_id", claims.UserID.Hex()).
			WithError(err).Error("Failed to register session")
		conn.Close()
		return
	}

	client.Start()
}
