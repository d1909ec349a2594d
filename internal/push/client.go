// Package push maintains the websocket channel that tells the dashboard
// which chats changed. Frames are advisory only: they name a chat, never
// carry message content, so a lost frame costs freshness, not correctness.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mushfiqur/botadmin/internal/bus"
	"github.com/mushfiqur/botadmin/internal/status"
)

// Event kinds published on the bus for decoded push frames.
const (
	EventNewMessage       = "push.new_message"
	EventAdminMessageSent = "push.admin_message_sent"
	EventNewUserJoined    = "push.new_user_joined"
	EventConnected        = "push.connected"
	EventDisconnected     = "push.disconnected"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// Frame is one push notification as the backend encodes it.
type Frame struct {
	Event  string      `json:"event"`
	UserID json.Number `json:"user_id"`
}

// Client connects to the backend push endpoint and republishes frames on
// the bus. It reconnects forever with capped backoff until its context is
// cancelled.
type Client struct {
	socketURL string
	bus       *bus.Bus
	machine   *status.Machine
	logger    *zap.Logger
}

func NewClient(socketURL string, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Client {
	return &Client{
		socketURL: strings.TrimRight(socketURL, "/"),
		bus:       b,
		machine:   m,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, holding the push channel open and
// redialing when it drops.
func (c *Client) Run(ctx context.Context) {
	backoff := reconnectMin
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		if first {
			c.transition(status.Connecting)
		} else {
			c.transition(status.Reconnecting)
			c.transition(status.Connecting)
		}

		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("push channel dropped", zap.Error(err), zap.Duration("retry_in", backoff))
		c.publish(EventDisconnected, "")
		c.transitionDegraded(first)
		first = false

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// transitionDegraded records that only the poll backstop is running now.
func (c *Client) transitionDegraded(connectFailed bool) {
	if connectFailed {
		// Never got to LIVE; CONNECTING -> RECONNECTING keeps retry state.
		c.transition(status.Reconnecting)
		c.transition(status.Degraded)
		return
	}
	c.transition(status.Degraded)
}

func (c *Client) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.socketURL+"/ws", nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dialing push endpoint: %w", err)
	}
	defer conn.Close()

	c.transition(status.Live)
	c.publish(EventConnected, "")
	c.logger.Info("push channel connected", zap.String("url", c.socketURL+"/ws"))

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(ctx, conn, done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading push frame: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleFrame(data)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			// Force the blocked read to return.
			conn.Close()
			return
		}
	}
}

func (c *Client) handleFrame(data []byte) {
	kind, userID, err := decodeFrame(data)
	if err != nil {
		c.logger.Warn("ignoring malformed push frame", zap.Error(err))
		return
	}
	c.publish(kind, userID)
}

// decodeFrame maps a raw frame to a bus event kind plus the chat it names.
// Unknown event names are an error so new backend events surface in logs
// instead of vanishing.
func decodeFrame(data []byte) (kind, userID string, err error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return "", "", fmt.Errorf("decoding frame: %w", err)
	}
	switch f.Event {
	case "new_message":
		kind = EventNewMessage
	case "admin_message_sent":
		kind = EventAdminMessageSent
	case "new_user_joined":
		kind = EventNewUserJoined
	default:
		return "", "", fmt.Errorf("unknown push event %q", f.Event)
	}
	return kind, f.UserID.String(), nil
}

func (c *Client) publish(kind, userID string) {
	c.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: userID})
}

func (c *Client) transition(to status.State) {
	if c.machine == nil {
		return
	}
	if err := c.machine.Transition(to); err != nil {
		c.logger.Debug("status transition skipped", zap.Error(err))
	}
}
