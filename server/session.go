package server

import (
	"chatd/protocol"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateAuthenticated                // account bound, no display name yet
	stateActive                       // display name bound, eligible for chat
	stateClosed
)

func (st sessionState) String() string {
	switch st {
	case stateUnauthenticated:
		return "unauthenticated"
	case stateAuthenticated:
		return "authenticated"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session owns one client connection. State transitions happen on the
// session's own worker goroutine; the closing flag and writes may be touched
// from other workers during a broadcast, so both go through the mutex.
type session struct {
	id           string
	conn         net.Conn
	writeTimeout time.Duration

	// Set once by the worker on successful login / name claim.
	account string
	name    string

	mu      sync.Mutex
	state   sessionState
	closing bool
}

func newSession(conn net.Conn, writeTimeout time.Duration) *session {
	return &session{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (s *session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(st sessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateClosed {
		s.state = st
	}
}

// send stamps and writes one frame. Writes are serialized per session so
// frames from concurrent broadcasts never interleave. History frames keep
// their recorded timestamp.
func (s *session) send(env *protocol.Envelope) error {
	if env.Kind != protocol.KindHistory {
		env.Stamp()
	}

	data, err := env.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return net.ErrClosed
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	_, err = s.conn.Write(data)
	return err
}

// close is one-shot. Closing the connection unblocks the worker's pending
// read; the worker's deferred teardown does the registry cleanup.
func (s *session) close() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.state = stateClosed
	s.mu.Unlock()

	s.conn.Close()
}
