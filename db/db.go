package db

import (
	"chatd/models"
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var ErrAccountExists = errors.New("account already exists")

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			login TEXT UNIQUE NOT NULL,
			secret TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// Account methods

// CreateAccount persists a new account with a hashed secret. Concurrent
// registration of the same login resolves through the UNIQUE constraint:
// exactly one insert wins, the rest get ErrAccountExists.
func (db *DB) CreateAccount(login, secret string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(
		"INSERT INTO accounts (login, secret) VALUES (?, ?)",
		login, string(hashed),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

func (db *DB) Authenticate(login, secret string) (bool, error) {
	var hashed string
	err := db.conn.QueryRow("SELECT secret FROM accounts WHERE login = ?", login).Scan(&hashed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret))
	return err == nil, nil
}

func (db *DB) AccountExists(login string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM accounts WHERE login = ?", login).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// History methods

// AppendHistory adds one delivered chat event to the log. The database
// serializes concurrent appends; records never interleave.
func (db *DB) AppendHistory(ev models.HistoryEvent) error {
	_, err := db.conn.Exec(
		"INSERT INTO history (username, text, timestamp) VALUES (?, ?, ?)",
		ev.Username, ev.Text, ev.Timestamp,
	)
	return err
}

// HistoryAll returns the full log in append order.
func (db *DB) HistoryAll() ([]models.HistoryEvent, error) {
	rows, err := db.conn.Query("SELECT id, username, text, timestamp FROM history ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanHistory(rows)
}

// HistoryLast returns the final n appended events, oldest first. Fewer are
// returned if the log is shorter.
func (db *DB) HistoryLast(n int) ([]models.HistoryEvent, error) {
	rows, err := db.conn.Query(
		"SELECT id, username, text, timestamp FROM history ORDER BY id DESC LIMIT ?", n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events, err := scanHistory(rows)
	if err != nil {
		return nil, err
	}

	// The query walks backwards; restore append order.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func scanHistory(rows *sql.Rows) ([]models.HistoryEvent, error) {
	var events []models.HistoryEvent
	for rows.Next() {
		var ev models.HistoryEvent
		if err := rows.Scan(&ev.ID, &ev.Username, &ev.Text, &ev.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
