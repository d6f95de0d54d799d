// Package realtime implements ports.RealtimeClient and ports.DocHandle
// over a WebSocket connection: one read loop, one write loop, a ping
// ticker, and a close-once teardown, speaking a subscribe/op protocol
// for realtime documents.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/ports"
)

const (
	pingPeriod   = 15 * time.Second
	pingTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
	writeBuffer  = 64
)

// frameType discriminates the small JSON protocol this adapter speaks
// over the socket.
type frameType string

const (
	frameSubscribe   frameType = "sub"
	frameUnsubscribe frameType = "unsub"
	frameDoc         frameType = "doc"
	frameOp          frameType = "op"
	frameRaw         frameType = "raw"
	frameDocSave     frameType = "docsave"
)

type frame struct {
	Type       frameType        `json:"type"`
	Collection string           `json:"collection,omitempty"`
	Key        string           `json:"key,omitempty"`
	Data       json.RawMessage  `json:"data,omitempty"`
	TextOps    []model.TextOp   `json:"textOps,omitempty"`
	AssetOps   []model.AssetOp  `json:"assetOps,omitempty"`
	Source     string           `json:"source,omitempty"`
	SaveState  ports.DocSaveState `json:"state,omitempty"`
	Payload    string           `json:"payload,omitempty"`
}

func docID(collection, key string) string { return collection + ":" + key }

// Client is the WebSocket-backed RealtimeClient.
type Client struct {
	conn *websocket.Conn

	writeCh chan frame
	closing chan struct{}
	closed  chan struct{}
	closeOnce sync.Once
	wg      sync.WaitGroup

	mu       sync.Mutex
	docs     map[string]*Doc
	pending  map[string]chan frame // docID -> waiter for the initial "doc" frame
	onSave   func(state ports.DocSaveState, id model.UniqueID)
}

// Dial wraps an already-open conn and starts the adapter's read/write loops.
func Dial(ctx context.Context, conn *websocket.Conn) *Client {
	c := &Client{
		conn:    conn,
		writeCh: make(chan frame, writeBuffer),
		closing: make(chan struct{}),
		closed:  make(chan struct{}),
		docs:    make(map[string]*Doc),
		pending: make(map[string]chan frame),
	}
	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.writeLoop(ctx)
	return c
}

func (c *Client) Disconnected() <-chan struct{} {
	return c.closed
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.conn.Close(websocket.StatusNormalClosure, "shutdown")
		c.wg.Wait()
		close(c.closed)
	})
}

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.wg.Done()
		c.close()
	}()
	for {
		var f frame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			select {
			case <-c.closing:
			default:
				slog.Warn("realtime: read error", "error", err)
			}
			return
		}
		c.dispatch(f)
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.wg.Done()
		c.close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closing:
			return
		case f, ok := <-c.writeCh:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, f)
			cancel()
			if err != nil {
				slog.Error("realtime: write error", "error", err)
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				slog.Error("realtime: ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) dispatch(f frame) {
	id := docID(f.Collection, f.Key)
	switch f.Type {
	case frameDoc:
		c.mu.Lock()
		if waiter, ok := c.pending[id]; ok {
			delete(c.pending, id)
			waiter <- f
		}
		c.mu.Unlock()
	case frameOp:
		c.mu.Lock()
		doc := c.docs[id]
		c.mu.Unlock()
		if doc != nil {
			doc.receiveOp(f.TextOps, f.AssetOps, f.Source)
		}
	case frameDocSave:
		c.mu.Lock()
		cb := c.onSave
		c.mu.Unlock()
		if cb != nil {
			var n int64
			fmt.Sscanf(f.Key, "%d", &n)
			cb(f.SaveState, model.UniqueID(n))
		}
	}
}

func (c *Client) send(f frame) {
	select {
	case c.writeCh <- f:
	case <-c.closing:
	}
}

func (c *Client) Subscribe(ctx context.Context, collection, key string) (ports.DocHandle, error) {
	id := docID(collection, key)
	waiter := make(chan frame, 1)
	c.mu.Lock()
	c.pending[id] = waiter
	c.mu.Unlock()

	c.send(frame{Type: frameSubscribe, Collection: collection, Key: key})

	select {
	case f := <-waiter:
		doc := &Doc{client: c, collection: collection, key: key, data: f.Data}
		c.mu.Lock()
		c.docs[id] = doc
		c.mu.Unlock()
		return doc, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.closed:
		return nil, fmt.Errorf("realtime: connection closed")
	}
}

func (c *Client) BulkSubscribe(ctx context.Context, collection string, keys []string) (map[string]ports.DocHandle, error) {
	result := make(map[string]ports.DocHandle, len(keys))
	for _, key := range keys {
		doc, err := c.Subscribe(ctx, collection, key)
		if err != nil {
			return nil, fmt.Errorf("bulk subscribe %s: %w", key, err)
		}
		result[key] = doc
	}
	return result, nil
}

func (c *Client) Unsubscribe(collection, key string) {
	id := docID(collection, key)
	c.mu.Lock()
	delete(c.docs, id)
	c.mu.Unlock()
	c.send(frame{Type: frameUnsubscribe, Collection: collection, Key: key})
}

func (c *Client) BulkUnsubscribe(collection string, keys []string) {
	for _, key := range keys {
		c.Unsubscribe(collection, key)
	}
}

func (c *Client) SendRaw(ctx context.Context, payload string) error {
	select {
	case c.writeCh <- frame{Type: frameRaw, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closing:
		return fmt.Errorf("realtime: connection closed")
	}
}

func (c *Client) OnDocSave(fn func(state ports.DocSaveState, uniqueID model.UniqueID)) {
	c.mu.Lock()
	c.onSave = fn
	c.mu.Unlock()
}

// Doc is the WebSocket-backed DocHandle.
type Doc struct {
	client     *Client
	collection string
	key        string

	mu   sync.Mutex
	data json.RawMessage
	onOp func(ops []model.TextOp, assetOps []model.AssetOp, source string)
}

func (d *Doc) Data() json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data
}

func (d *Doc) OnOp(fn func(ops []model.TextOp, assetOps []model.AssetOp, source string)) {
	d.mu.Lock()
	d.onOp = fn
	d.mu.Unlock()
}

func (d *Doc) Off() {
	d.mu.Lock()
	d.onOp = nil
	d.mu.Unlock()
}

func (d *Doc) SubmitOp(ctx context.Context, op any, source string) error {
	f := frame{Type: frameOp, Collection: d.collection, Key: d.key, Source: source}
	switch v := op.(type) {
	case model.TextOp:
		f.TextOps = []model.TextOp{v}
	case model.AssetOp:
		f.AssetOps = []model.AssetOp{v}
	default:
		return fmt.Errorf("realtime: unsupported op type %T", op)
	}
	select {
	case d.client.writeCh <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.client.closing:
		return fmt.Errorf("realtime: connection closed")
	}
}

func (d *Doc) receiveOp(ops []model.TextOp, assetOps []model.AssetOp, source string) {
	d.mu.Lock()
	fn := d.onOp
	d.mu.Unlock()
	if fn != nil {
		fn(ops, assetOps, source)
	}
}
