package models

type Account struct {
	ID     int64
	Login  string
	Secret string // bcrypt hash
}

// HistoryEvent is one delivered chat message as recorded in the history log.
// Timestamp keeps the wire format so replayed events carry the original stamp.
type HistoryEvent struct {
	ID        int64
	Username  string
	Text      string
	Timestamp string
}
