package server

import (
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StartWS serves the same session protocol over websockets. Each upgraded
// connection is adapted to a byte stream and handed to the regular
// per-connection worker, so framing, dispatch and cleanup are shared with the
// TCP path.
func (s *Server) StartWS(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	log.Printf("chatd websocket listener on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	s.handleConnection(&wsStream{conn: conn})
}

// wsStream presents a websocket as a net.Conn. One websocket message carries
// one protocol record; a terminator is appended on read so the stream framer
// sees the usual line discipline.
type wsStream struct {
	conn *websocket.Conn
	buf  []byte
}

func (w *wsStream) Read(p []byte) (int, error) {
	if len(w.buf) == 0 {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		w.buf = append(data, '\n')
	}

	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *wsStream) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsStream) Close() error {
	return w.conn.Close()
}

func (w *wsStream) LocalAddr() net.Addr {
	return w.conn.LocalAddr()
}

func (w *wsStream) RemoteAddr() net.Addr {
	return w.conn.RemoteAddr()
}

func (w *wsStream) SetDeadline(t time.Time) error {
	return w.conn.SetWriteDeadline(t)
}

// SetReadDeadline is a no-op: gorilla marks the whole connection failed after
// a read timeout, while the session loop uses timeouts only to keep idle
// connections alive. An idle websocket simply blocks in ReadMessage.
func (w *wsStream) SetReadDeadline(t time.Time) error {
	return nil
}

func (w *wsStream) SetWriteDeadline(t time.Time) error {
	return w.conn.SetWriteDeadline(t)
}
