// Package messenger implements ports.Messenger: the out-of-band
// notification channel for asset.new/assets.delete, delivered over a
// dedicated WebSocket connection separate from the per-document
// realtime stream. Structured as a single read loop feeding one
// buffered outbound channel.
package messenger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/scenehub/projectsync/internal/ports"
)

// wireEvent is the over-the-wire shape of one messenger notification.
type wireEvent struct {
	Type       ports.MessengerEventType `json:"type"`
	NewAsset   *ports.MessengerNewAsset `json:"newAsset,omitempty"`
	DeletedIDs []string                 `json:"deletedIds,omitempty"`
}

// Client is the WebSocket-backed Messenger.
type Client struct {
	conn   *websocket.Conn
	events chan ports.MessengerEvent

	closeOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

// Dial wraps an already-established connection; the read loop starts
// when Subscribe is called.
func Dial(conn *websocket.Conn) *Client {
	return &Client{
		conn:    conn,
		events:  make(chan ports.MessengerEvent, 64),
		closing: make(chan struct{}),
	}
}

func (c *Client) Subscribe(ctx context.Context) (<-chan ports.MessengerEvent, error) {
	c.wg.Add(1)
	go c.readLoop(ctx)
	return c.events, nil
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.conn.Close(websocket.StatusNormalClosure, "shutdown")
		c.wg.Wait()
		close(c.events)
	})
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		var ev wireEvent
		if err := wsjson.Read(ctx, c.conn, &ev); err != nil {
			select {
			case <-c.closing:
			default:
				slog.Warn("messenger: read error", "error", err)
			}
			return
		}

		out := ports.MessengerEvent{Type: ev.Type, NewAsset: ev.NewAsset, DeletedIDs: ev.DeletedIDs}
		select {
		case c.events <- out:
		case <-c.closing:
			return
		default:
			slog.Warn("messenger: event buffer full, dropping", "type", ev.Type)
		}
	}
}
