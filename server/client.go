package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DialConfig holds client connection settings.
type DialConfig struct {
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for each message. Zero waits forever.
	ReadTimeout time.Duration
}

func DefaultDialConfig() DialConfig {
	return DialConfig{
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
	}
}

// Client is a websocket connection to a Hub. Read is meant for a single
// goroutine; Send may be called from any.
type Client struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	writeMu     sync.Mutex
}

// Dial connects to a hub's /ws endpoint, e.g. ws://localhost:8080/ws.
func Dial(ctx context.Context, url string, cfg DialConfig) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.ConnectTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &Client{conn: conn, readTimeout: cfg.ReadTimeout}, nil
}

// Read blocks for the next message from the hub.
func (c *Client) Read() (Message, error) {
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	var msg Message
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("parse message: %w", err)
	}
	return msg, nil
}

func (c *Client) Send(cmd Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(cmd)
}

// Close says goodbye to the hub and drops the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// IsClosed reports whether err is the hub ending the connection normally.
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
