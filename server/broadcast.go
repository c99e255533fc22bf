package server

import (
	"chatd/models"
	"chatd/protocol"
	"log"
)

// broadcast delivers one event to a point-in-time snapshot of the active
// sessions, minus the excluded originator. The event is stamped once so every
// recipient sees the same timestamp. A failed write quarantines only that
// session: its connection is closed and its own worker runs the departure
// sequence, while delivery to the rest continues.
func (s *Server) broadcast(env *protocol.Envelope, exclude *session) {
	env.Stamp()

	for _, peer := range s.registry.snapshot() {
		if peer == exclude {
			continue
		}
		if err := peer.send(env); err != nil {
			log.Printf("session %s: broadcast write failed, dropping peer: %v", peer.id, err)
			peer.close()
		}
	}
}

// appendHistory records a delivered chat event. Live delivery and durability
// are independent best-effort operations; a lost append is logged and does
// not fail the sender's broadcast.
func (s *Server) appendHistory(username, text, timestamp string) {
	ev := models.HistoryEvent{
		Username:  username,
		Text:      text,
		Timestamp: timestamp,
	}
	if err := s.db.AppendHistory(ev); err != nil {
		log.Printf("history append lost for %s: %v", username, err)
	}
}

// replay sends recorded events to the requesting session only, oldest first,
// tagged as history so the receiver can render them distinctly. lastN == 0
// replays the full log. Replay never broadcasts.
func (s *Server) replay(sess *session, lastN int) {
	var (
		events []models.HistoryEvent
		err    error
	)
	if lastN > 0 {
		events, err = s.db.HistoryLast(lastN)
	} else {
		events, err = s.db.HistoryAll()
	}
	if err != nil {
		log.Printf("session %s: history read failed: %v", sess.id, err)
		return
	}

	for _, ev := range events {
		env := protocol.NewChatEvent(protocol.KindHistory, ev.Username, ev.Text)
		env.Timestamp = ev.Timestamp
		if err := sess.send(env); err != nil {
			log.Printf("session %s: replay write failed: %v", sess.id, err)
			sess.close()
			return
		}
	}
}
