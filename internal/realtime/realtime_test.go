package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/ports"
)

// dialAgainstHandler starts an httptest server running handler as the
// server side of the protocol, dials it with coder/websocket, and wraps
// the client side in a Client via Dial.
func dialAgainstHandler(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)

	c := Dial(context.Background(), conn)
	t.Cleanup(c.close)
	return c
}

func TestSubscribeReturnsDocWithInitialSnapshot(t *testing.T) {
	c := dialAgainstHandler(t, func(ctx context.Context, conn *websocket.Conn) {
		var f frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		assert.Equal(t, frameSubscribe, f.Type)
		assert.Equal(t, "docs", f.Collection)
		assert.Equal(t, "readme.txt", f.Key)

		_ = wsjson.Write(ctx, conn, frame{
			Type: frameDoc, Collection: "docs", Key: "readme.txt",
			Data: []byte(`"hello world"`),
		})
		<-ctx.Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	doc, err := c.Subscribe(ctx, "docs", "readme.txt")
	require.NoError(t, err)
	assert.JSONEq(t, `"hello world"`, string(doc.Data()))
}

func TestSubscribeTimesOutOnCancelledContext(t *testing.T) {
	c := dialAgainstHandler(t, func(ctx context.Context, conn *websocket.Conn) {
		// never responds with a "doc" frame
		<-ctx.Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Subscribe(ctx, "docs", "readme.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReceivedOpIsDeliveredToOnOpCallback(t *testing.T) {
	opSent := make(chan struct{})
	ready := make(chan struct{}) // closed once the test has registered OnOp
	c := dialAgainstHandler(t, func(ctx context.Context, conn *websocket.Conn) {
		var f frame
		require.NoError(t, wsjson.Read(ctx, conn, &f)) // the "sub" frame
		require.NoError(t, wsjson.Write(ctx, conn, frame{
			Type: frameDoc, Collection: "docs", Key: "readme.txt", Data: []byte(`""`),
		}))

		select {
		case <-ready:
		case <-ctx.Done():
			return
		}
		_ = wsjson.Write(ctx, conn, frame{
			Type: frameOp, Collection: "docs", Key: "readme.txt",
			TextOps: []model.TextOp{model.InsertOp(0, "hi")},
			Source:  "remote-1",
		})
		close(opSent)
		<-ctx.Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	doc, err := c.Subscribe(ctx, "docs", "readme.txt")
	require.NoError(t, err)

	received := make(chan struct{}, 1)
	var gotSource string
	var gotOps []model.TextOp
	doc.OnOp(func(ops []model.TextOp, assetOps []model.AssetOp, source string) {
		gotOps = ops
		gotSource = source
		received <- struct{}{}
	})
	close(ready)

	<-opSent
	select {
	case <-received:
		require.Len(t, gotOps, 1)
		assert.Equal(t, "hi", gotOps[0].Arg)
		assert.Equal(t, "remote-1", gotSource)
	case <-ctx.Done():
		t.Fatal("timed out waiting for op callback")
	}
}

func TestSubmitOpSendsTextOpFrame(t *testing.T) {
	received := make(chan frame, 1)
	c := dialAgainstHandler(t, func(ctx context.Context, conn *websocket.Conn) {
		var sub frame
		require.NoError(t, wsjson.Read(ctx, conn, &sub))
		_ = wsjson.Write(ctx, conn, frame{Type: frameDoc, Collection: "docs", Key: "a", Data: []byte(`""`)})

		var f frame
		if err := wsjson.Read(ctx, conn, &f); err == nil {
			received <- f
		}
		<-ctx.Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	doc, err := c.Subscribe(ctx, "docs", "a")
	require.NoError(t, err)

	require.NoError(t, doc.SubmitOp(ctx, model.InsertOp(3, "x"), "local"))

	select {
	case f := <-received:
		assert.Equal(t, frameOp, f.Type)
		require.Len(t, f.TextOps, 1)
		assert.Equal(t, "x", f.TextOps[0].Arg)
		assert.Equal(t, "local", f.Source)
	case <-ctx.Done():
		t.Fatal("timed out waiting for submitted op")
	}
}

func TestSubmitOpRejectsUnsupportedType(t *testing.T) {
	c := dialAgainstHandler(t, func(ctx context.Context, conn *websocket.Conn) {
		var f frame
		_ = wsjson.Read(ctx, conn, &f)
		_ = wsjson.Write(ctx, conn, frame{Type: frameDoc, Collection: "docs", Key: "a", Data: []byte(`""`)})
		<-ctx.Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	doc, err := c.Subscribe(ctx, "docs", "a")
	require.NoError(t, err)

	err = doc.SubmitOp(ctx, "not-an-op", "local")
	assert.ErrorContains(t, err, "unsupported op type")
}

func TestDocSaveCallbackReceivesState(t *testing.T) {
	ready := make(chan struct{}) // closed once the test has registered OnDocSave
	c := dialAgainstHandler(t, func(ctx context.Context, conn *websocket.Conn) {
		select {
		case <-ready:
		case <-ctx.Done():
			return
		}
		_ = wsjson.Write(ctx, conn, frame{Type: frameDocSave, Key: "42", SaveState: ports.DocSaveSuccess})
		<-ctx.Done()
	})

	received := make(chan struct{}, 1)
	var gotState ports.DocSaveState
	var gotID model.UniqueID
	c.OnDocSave(func(state ports.DocSaveState, id model.UniqueID) {
		gotState = state
		gotID = id
		received <- struct{}{}
	})
	close(ready)

	select {
	case <-received:
		assert.Equal(t, ports.DocSaveSuccess, gotState)
		assert.Equal(t, model.UniqueID(42), gotID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for doc save callback")
	}
}

func TestDisconnectedClosesWhenServerCloses(t *testing.T) {
	c := dialAgainstHandler(t, func(ctx context.Context, conn *websocket.Conn) {
		// close immediately
	})

	select {
	case <-c.Disconnected():
	case <-time.After(2 * time.Second):
		t.Fatal("expected Disconnected channel to close after server closed the connection")
	}
}
