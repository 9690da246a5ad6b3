package push

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vistaml/vista/internal/state"
)

// Message is the wire frame carrying a state snapshot to the App server.
type Message struct {
	Type      string            `json:"type"`
	Namespace string            `json:"namespace"`
	Attribute string            `json:"attribute"`
	State     state.Description `json:"state"`
}

// Client pushes state snapshots to the App server over a websocket. The
// connection is dialed lazily on the first push and redialed after a
// delivery failure. Pushes are fire-and-forget: the client never waits for
// an acknowledgment.
type Client struct {
	addr string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a push client for the App server on the given port.
func NewClient(port int) *Client {
	return &Client{addr: fmt.Sprintf("localhost:%d", port)}
}

// Push implements state.Pusher.
func (c *Client) Push(namespace, attribute string, snapshot state.Description) error {
	msg := Message{
		Type:      "update",
		Namespace: namespace,
		Attribute: attribute,
		State:     snapshot,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeLocked(msg); err == nil {
		return nil
	}

	// Redial once; the server may have restarted between pushes.
	c.closeLocked()
	if err := c.dialLocked(); err != nil {
		return err
	}
	if err := c.writeLocked(msg); err != nil {
		c.closeLocked()
		return fmt.Errorf("failed to push state: %w", err)
	}
	return nil
}

// Close tears down the connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Client) writeLocked(msg Message) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *Client) dialLocked() error {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/state"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to App server at %s: %w", c.addr, err)
	}
	c.conn = conn
	return nil
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
