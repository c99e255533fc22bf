package server

import (
	"chatd/db"
	"chatd/protocol"
	"errors"
	"log"
)

// dispatch routes one inbound frame by its declared kind. Handlers check the
// session state themselves and answer out-of-state requests with a kind 40
// reply; protocol errors are recoverable and never close the connection.
func (s *Server) dispatch(sess *session, env *protocol.Envelope) {
	switch env.Kind {
	case protocol.KindLogin:
		s.handleLogin(sess, env)
	case protocol.KindNameClaim:
		s.handleNameClaim(sess, env)
	case protocol.KindRegister:
		s.handleRegister(sess, env)
	case protocol.KindChat:
		s.handleChat(sess, env)
	default:
		log.Printf("session %s: ignoring unknown message kind %d", sess.id, env.Kind)
	}
}

func (s *Server) reply(sess *session, env *protocol.Envelope) {
	if err := sess.send(env); err != nil {
		log.Printf("session %s: write failed: %v", sess.id, err)
		sess.close()
	}
}

func (s *Server) handleLogin(sess *session, env *protocol.Envelope) {
	if sess.currentState() != stateUnauthenticated {
		s.reply(sess, protocol.NewText(protocol.KindBadState, "already logged in on this connection"))
		return
	}

	creds, err := env.Credentials()
	if err != nil {
		log.Printf("session %s: dropping login with bad payload: %v", sess.id, err)
		return
	}

	valid, err := s.db.Authenticate(creds.Account, creds.Password)
	if err != nil {
		log.Printf("session %s: auth error: %v", sess.id, err)
		s.reply(sess, protocol.NewText(protocol.KindServerError, "login failed, try again"))
		return
	}
	if !valid {
		s.reply(sess, protocol.NewText(protocol.KindBadCredentials, "wrong account or password"))
		return
	}

	if err := s.registry.bind(creds.Account, sess); err != nil {
		s.reply(sess, protocol.NewText(protocol.KindAlreadyActive, "account already logged in"))
		return
	}

	sess.setState(stateAuthenticated)
	log.Printf("session %s: account %s logged in", sess.id, creds.Account)
	s.reply(sess, protocol.New(protocol.KindLoginOK))
}

func (s *Server) handleRegister(sess *session, env *protocol.Envelope) {
	// Registration is legal in any state and does not transition the session.
	creds, err := env.Credentials()
	if err != nil {
		log.Printf("session %s: dropping registration with bad payload: %v", sess.id, err)
		return
	}

	if err := s.db.CreateAccount(creds.Account, creds.Password); err != nil {
		if errors.Is(err, db.ErrAccountExists) {
			s.reply(sess, protocol.NewText(protocol.KindAccountExists, "account already exists"))
		} else {
			// A store failure is retryable, not a rejection.
			log.Printf("session %s: register error: %v", sess.id, err)
			s.reply(sess, protocol.NewText(protocol.KindServerError, "registration failed, try again"))
		}
		return
	}

	log.Printf("session %s: account %s registered", sess.id, creds.Account)
	s.reply(sess, protocol.New(protocol.KindRegistered))
}

func (s *Server) handleNameClaim(sess *session, env *protocol.Envelope) {
	switch sess.currentState() {
	case stateAuthenticated:
	case stateActive:
		s.reply(sess, protocol.NewText(protocol.KindBadState, "display name already set"))
		return
	default:
		s.reply(sess, protocol.NewText(protocol.KindBadState, "log in before claiming a display name"))
		return
	}

	name := env.Username
	if name == "" {
		s.reply(sess, protocol.NewText(protocol.KindNameTaken, "display name must not be empty"))
		return
	}

	if err := s.registry.claimName(name, sess); err != nil {
		switch {
		case errors.Is(err, errNameReserved):
			s.reply(sess, protocol.NewText(protocol.KindNameReserved, "display name \""+ReservedName+"\" is reserved"))
		case errors.Is(err, errNameTaken):
			s.reply(sess, protocol.NewText(protocol.KindNameTaken, "display name already taken"))
		}
		return
	}

	sess.setState(stateActive)
	log.Printf("session %s: %s joined the chat", sess.id, name)

	s.reply(sess, &protocol.Envelope{Kind: protocol.KindNameAccepted, Username: name})
	s.broadcast(protocol.NewText(protocol.KindJoin, name), sess)
	// Zero disables the sign-on replay; it never means the full log.
	if s.config.SignonReplay > 0 {
		s.replay(sess, s.config.SignonReplay)
	}
}

func (s *Server) handleChat(sess *session, env *protocol.Envelope) {
	if sess.currentState() != stateActive {
		s.reply(sess, protocol.NewText(protocol.KindBadState, "log in and claim a display name first"))
		return
	}

	text, err := env.Text()
	if err != nil {
		log.Printf("session %s: dropping chat with bad payload: %v", sess.id, err)
		return
	}

	if text == "history" {
		// Full-log replay, to the requester only.
		s.replay(sess, 0)
		return
	}

	// The display name comes from the registry, not from the frame.
	event := protocol.NewChatEvent(protocol.KindBroadcast, sess.name, text)
	event.Stamp()

	s.broadcast(event, sess)
	s.appendHistory(sess.name, text, event.Timestamp)
}
