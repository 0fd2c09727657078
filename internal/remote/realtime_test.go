// ABOUTME: Tests for the realtime websocket subscription
// ABOUTME: Uses an in-process websocket server emitting insert frames

package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// realtimeTestServer accepts one websocket connection, checks the subscribe
// frame, then sends the given frames.
func realtimeTestServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var sub subscribeFrame
		require.NoError(t, json.Unmarshal(data, &sub))
		require.Equal(t, "subscribe", sub.Type)

		for _, frame := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}

		// Hold the connection open until the client goes away.
		conn.Read(ctx)
	}))
}

func TestClient_Subscribe_DeliversInserts(t *testing.T) {
	srv := realtimeTestServer(t, []string{
		`{"type":"insert","table":"general_messages","record":{"id":"m1","sender_id":"u1","text":"hello","created_at":"2026-08-30T12:00:00Z"}}`,
		`{"type":"heartbeat"}`,
		`{"type":"insert","table":"reports","record":{"id":"r1","author_id":"u2","author_name":"Agent","author_clearance":3,"type":"AUDIT","severity":"LOW","title":"t","content":"c"}}`,
		`{"type":"insert","table":"unknown_table","record":{}}`,
	})
	defer srv.Close()

	wsURL := strings.Replace(srv.URL, "http", "ws", 1)
	c := New(srv.URL, "anon-key", WithRealtimeURL(wsURL))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := c.Subscribe(ctx, "tok", TableGeneralMessages, TableReports)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := <-sub.Events
	require.NotNil(t, first.Message)
	assert.Equal(t, "m1", first.Message.ID)
	assert.True(t, first.Message.Broadcast())

	second := <-sub.Events
	require.NotNil(t, second.Report)
	assert.Equal(t, "r1", second.Report.ID)
}

func TestClient_Subscribe_UnsubscribeClosesChannel(t *testing.T) {
	srv := realtimeTestServer(t, nil)
	defer srv.Close()

	wsURL := strings.Replace(srv.URL, "http", "ws", 1)
	c := New(srv.URL, "anon-key", WithRealtimeURL(wsURL))

	sub, err := c.Subscribe(context.Background(), "tok", TableReports)
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe() // safe to repeat

	select {
	case _, open := <-sub.Events:
		assert.False(t, open, "events channel should close after unsubscribe")
	case <-time.After(5 * time.Second):
		t.Fatal("events channel did not close")
	}
}

func TestClient_Subscribe_DialFailure(t *testing.T) {
	c := New("http://127.0.0.1:1", "anon-key", WithRealtimeURL("ws://127.0.0.1:1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Subscribe(ctx, "tok", TableReports)
	assert.ErrorIs(t, err, ErrUnavailable)
}
