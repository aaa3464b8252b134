package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	ws "github.com/coder/websocket"
)

const sendBufferSize = 64

// Dispatcher handles the events of one connection. HandleEvent calls for a
// client never overlap.
type Dispatcher interface {
	HandleEvent(ctx context.Context, c *Client, in Inbound)
	Disconnected(ctx context.Context, c *Client)
}

// Client is a single WebSocket connection.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte

	mu     sync.RWMutex
	userID string
}

func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// UserID is empty until the connection authenticates.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) SetUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

func (c *Client) Send(ev Event) {
	c.hub.Send(c, ev)
}

type pumpConfig struct {
	pingInterval time.Duration
	pingTimeout  time.Duration
}

// run registers the client, runs the write pump, and reads until the
// connection closes.
func (c *Client) run(ctx context.Context, d Dispatcher, cfg pumpConfig, first *Inbound) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		c.writePump(ctx, cfg)
		cancel()
	}()

	if first != nil {
		d.HandleEvent(ctx, c, *first)
	}
	c.readPump(ctx, d)
	d.Disconnected(context.WithoutCancel(ctx), c)
}

func (c *Client) readPump(ctx context.Context, d Dispatcher) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
			c.Send(Event{Event: "error", Data: map[string]string{
				"kind":    "validation",
				"message": "malformed event",
			}})
			continue
		}
		d.HandleEvent(ctx, c, in)
	}
}

func (c *Client) writePump(ctx context.Context, cfg pumpConfig) {
	ticker := time.NewTicker(cfg.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, cfg.pingTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.conn.Close(ws.StatusPolicyViolation, "ping timeout")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
