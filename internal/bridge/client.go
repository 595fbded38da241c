// Package bridge connects the agent to a chat gateway over a
// websocket: inbound messages are filtered and routed through the
// session, replies and idle speech go back out on the same socket.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// Client manages the websocket connection to the chat gateway.
type Client struct {
	gatewayURL string
	token      string
	logger     *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	messages chan Inbound
}

// NewClient creates a gateway client. Messages() delivers inbound
// events once Connect succeeds.
func NewClient(gatewayURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		gatewayURL: gatewayURL,
		token:      token,
		logger:     logger,
		messages:   make(chan Inbound, 100),
	}
}

// Messages returns the inbound event channel. It is closed when the
// connection drops.
func (c *Client) Messages() <-chan Inbound {
	return c.messages
}

// Connect dials the gateway, authenticates, and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.gatewayURL)
	if err != nil {
		return fmt.Errorf("bridge: parse gateway URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	c.logger.Info("connecting to chat gateway", "url", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("bridge: dial gateway: %w", err)
	}

	if err := conn.WriteJSON(authMessage{Type: "auth", Token: c.token}); err != nil {
		conn.Close()
		return fmt.Errorf("bridge: send auth: %w", err)
	}
	var reply authReply
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return fmt.Errorf("bridge: read auth reply: %w", err)
	}
	if reply.Type != "auth_ok" {
		conn.Close()
		return fmt.Errorf("bridge: authentication failed: %s", reply.Type)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info("gateway authenticated")
	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.messages)
	for {
		var in Inbound
		if err := conn.ReadJSON(&in); err != nil {
			c.logger.Warn("gateway read failed", "error", err)
			return
		}
		if in.Type != "message" {
			continue
		}
		select {
		case c.messages <- in:
		default:
			c.logger.Warn("inbound channel full, dropping message", "channel", in.Channel)
		}
	}
}

// Send delivers a message to a gateway channel.
func (c *Client) Send(channel, content string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("bridge: not connected")
	}
	return c.conn.WriteJSON(Outbound{Type: "send", Channel: channel, Content: content})
}

// Close shuts down the connection.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
