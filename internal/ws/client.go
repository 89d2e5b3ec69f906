package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Options configures session keepalive. Clients are expected to send a
// {"type":"ping"} frame every PingInterval; a session with no inbound
// traffic for TimeoutMultiplier intervals is treated as dead.
type Options struct {
	PingInterval      time.Duration
	TimeoutMultiplier int
}

func (o Options) readDeadline() time.Duration {
	interval := o.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	multiplier := o.TimeoutMultiplier
	if multiplier <= 0 {
		multiplier = 3
	}
	return interval * time.Duration(multiplier)
}

type inboundFrame struct {
	Type string `json:"type"`
}

type outboundFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Client is one live session: an authenticated websocket connection owned by
// exactly one recipient. It relays group messages to the socket and handles
// the small inbound command set.
type Client struct {
	registry *Registry
	conn     *websocket.Conn
	logger   *logrus.Entry
	opts     Options

	userID    string
	sessionID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(registry *Registry, conn *websocket.Conn, userID string, logger *logrus.Logger, opts Options) *Client {
	sessionID := uuid.NewString()
	return &Client{
		registry: registry,
		conn:     conn,
		logger: logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"session_id": sessionID,
		}),
		opts:      opts,
		userID:    userID,
		sessionID: sessionID,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
}

func (c *Client) SessionID() string {
	return c.sessionID
}

// Start acknowledges the established connection and runs the read and write
// pumps. The caller must have registered the client first.
func (c *Client) Start() {
	ack, _ := json.Marshal(outboundFrame{
		Type:    "connection_established",
		Message: "Connected to notifications",
	})
	c.Enqueue(ack)

	go c.writePump()
	go c.readPump()
}

// Enqueue queues a payload for delivery on this session without blocking the
// caller. A session whose buffer is full is torn down rather than allowed to
// stall delivery to other sessions.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn("Send buffer full, closing slow session")
		c.Close()
		return false
	}
}

// Close tears the session down: deregistration exactly once, then the
// underlying connection. Safe to call from any goroutine, any number of
// times, on every exit path.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.registry.Deregister(c)
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer c.Close()

	deadline := c.opts.readDeadline()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		// Any inbound traffic counts as liveness, not just pings.
		c.conn.SetReadDeadline(time.Now().Add(deadline))

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Malformed frame is a protocol violation: report and tear down.
			errFrame, _ := json.Marshal(outboundFrame{Type: "error", Message: "Invalid JSON"})
			c.Enqueue(errFrame)
			c.logger.Warn("Malformed frame, closing session")
			return
		}

		switch frame.Type {
		case "ping":
			pong, _ := json.Marshal(outboundFrame{Type: "pong"})
			c.Enqueue(pong)
		default:
			// Unknown command types are tolerated so the protocol can evolve.
			c.logger.WithField("frame_type", frame.Type).Debug("Ignoring unknown frame type")
		}
	}
}

func (c *Client) writePump() {
	// Transport-level pings ride alongside the JSON keepalive so proxies
	// keep the connection open even for idle, well-behaved clients.
	pingPeriod := c.opts.readDeadline() * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
