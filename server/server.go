package server

import (
	"chatd/db"
	"chatd/protocol"
	"errors"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"
)

type Server struct {
	db       *db.DB
	config   *ServerConfig
	registry *registry
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SignonReplay int // history events replayed after a name claim; 0 disables
}

func New(database *db.DB, config *ServerConfig) *Server {
	// Keep a private copy; the caller's struct is never written to.
	cfg := *config
	if cfg.SignonReplay < 0 {
		cfg.SignonReplay = 0
	}

	return &Server{
		db:       database,
		config:   &cfg,
		registry: newRegistry(),
	}
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return err
	}
	defer listener.Close()

	log.Printf("chatd listening on port %d", s.config.Port)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("Error accepting connection: %v", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection is the per-connection worker: it owns the read loop and is
// the only goroutine that advances this session's state. Registry cleanup and
// the departure broadcast are deferred so they run exactly once on any exit
// path.
func (s *Server) handleConnection(conn net.Conn) {
	sess := newSession(conn, s.config.WriteTimeout)
	remoteAddr := conn.RemoteAddr().String()
	log.Printf("session %s: client connected from %s", sess.id, remoteAddr)

	s.registry.track(sess)
	defer s.teardown(sess, remoteAddr)

	reader := protocol.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		env, err := reader.Next()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedRecord) {
				// One bad record never takes the connection down.
				log.Printf("session %s: dropping malformed record: %v", sess.id, err)
				continue
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Idle connections are kept; any buffered partial record
				// survives in the reader.
				continue
			}
			if err != io.EOF && !errors.Is(err, net.ErrClosed) &&
				!strings.Contains(err.Error(), "use of closed network connection") {
				log.Printf("session %s: read error from %s: %v", sess.id, remoteAddr, err)
			}
			return
		}

		s.dispatch(sess, env)
	}
}

func (s *Server) teardown(sess *session, remoteAddr string) {
	sess.close()
	hadName := s.registry.remove(sess)

	if hadName {
		s.broadcast(protocol.NewText(protocol.KindDeparture, sess.name), nil)
		log.Printf("session %s: %s left the chat (%s)", sess.id, sess.name, remoteAddr)
	} else {
		log.Printf("session %s: client disconnected from %s", sess.id, remoteAddr)
	}
}

// GetStats returns server statistics as a formatted string.
func (s *Server) GetStats() string {
	connections := len(s.registry.connections())
	names := s.registry.names()

	return "connections=" + strconv.Itoa(connections) + ",users=" + strings.Join(names, ";")
}

// Shutdown closes every tracked connection; each worker runs its own
// teardown as the read unblocks.
func (s *Server) Shutdown() {
	for _, sess := range s.registry.connections() {
		sess.close()
	}
}
