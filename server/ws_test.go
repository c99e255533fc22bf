package server

import (
	"chatd/protocol"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsTestClient speaks the protocol over a websocket, one record per message
type wsTestClient struct {
	conn *websocket.Conn
}

func dialWS(t *testing.T, srv *Server) (*wsTestClient, func()) {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("Failed to dial websocket: %v", err)
	}

	cleanup := func() {
		conn.Close()
		ts.Close()
	}
	return &wsTestClient{conn: conn}, cleanup
}

func (c *wsTestClient) send(t *testing.T, raw string) {
	t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("Failed to send %q: %v", raw, err)
	}
}

func (c *wsTestClient) expect(t *testing.T, kind protocol.Kind) *protocol.Envelope {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	env, err := protocol.Decode([]byte(strings.TrimSpace(string(data))))
	if err != nil {
		t.Fatalf("Failed to decode %q: %v", data, err)
	}
	if env.Kind != kind {
		t.Fatalf("Expected kind %d, got %d", kind, env.Kind)
	}
	return env
}

func TestWebsocketSession(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	c, closeWS := dialWS(t, srv)
	defer closeWS()

	// Records arrive without a line terminator; the adapter supplies it
	c.send(t, registerRequest("ws-user@example.com"))
	c.expect(t, protocol.KindRegistered)

	c.send(t, loginRequest("ws-user@example.com"))
	c.expect(t, protocol.KindLoginOK)

	c.send(t, `{"type":11,"username":"wanda"}`)
	env := c.expect(t, protocol.KindNameAccepted)
	if env.Username != "wanda" {
		t.Errorf("Expected username wanda, got %q", env.Username)
	}

	if got := len(srv.registry.snapshot()); got != 1 {
		t.Errorf("Expected 1 active session, got %d", got)
	}
}

func TestWebsocketAndTCPShareTheRoom(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	tcp := connectClient(srv)
	defer tcp.close()
	activate(t, srv, tcp, "alice@example.com", "alice")

	ws, closeWS := dialWS(t, srv)
	defer closeWS()

	ws.send(t, registerRequest("ws-user@example.com"))
	ws.expect(t, protocol.KindRegistered)
	ws.send(t, loginRequest("ws-user@example.com"))
	ws.expect(t, protocol.KindLoginOK)
	ws.send(t, `{"type":11,"username":"wanda"}`)
	ws.expect(t, protocol.KindNameAccepted)

	// The TCP peer sees the websocket peer join, and chat flows across
	// transports in both directions
	join := tcp.expect(t, protocol.KindJoin)
	if name, err := join.Text(); err != nil || name != "wanda" {
		t.Errorf("Expected join broadcast for wanda, got %q (%v)", name, err)
	}

	ws.send(t, `{"type":30,"username":"wanda","message":"hello from ws"}`)
	env := tcp.expect(t, protocol.KindBroadcast)
	ev, err := env.Chat()
	if err != nil {
		t.Fatalf("Failed to decode broadcast: %v", err)
	}
	if ev.Username != "wanda" || ev.Text != "hello from ws" {
		t.Errorf("Expected wanda/hello from ws, got %q/%q", ev.Username, ev.Text)
	}

	tcp.send(t, `{"type":30,"username":"alice","message":"hello from tcp"}`)
	env = ws.expect(t, protocol.KindBroadcast)
	ev, err = env.Chat()
	if err != nil {
		t.Fatalf("Failed to decode broadcast: %v", err)
	}
	if ev.Username != "alice" || ev.Text != "hello from tcp" {
		t.Errorf("Expected alice/hello from tcp, got %q/%q", ev.Username, ev.Text)
	}
}
