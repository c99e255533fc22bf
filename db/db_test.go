package db

import (
	"chatd/models"
	"errors"
	"fmt"
	"os"
	"testing"
)

// setupTestDB creates a store backed by a temporary database file
func setupTestDB(t *testing.T) (*DB, func()) {
	tmpfile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()
	os.Remove(tmpfile.Name()) // SQLite recreates it

	database, err := New(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		database.Close()
		os.Remove(tmpfile.Name())
	}

	return database, cleanup
}

func TestCreateAccountDuplicate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := database.CreateAccount("alice@example.com", "password123"); err != nil {
		t.Fatalf("First registration failed: %v", err)
	}

	err := database.CreateAccount("alice@example.com", "otherpassword")
	if !errors.Is(err, ErrAccountExists) {
		t.Errorf("Expected ErrAccountExists, got %v", err)
	}

	exists, err := database.AccountExists("alice@example.com")
	if err != nil {
		t.Fatalf("AccountExists failed: %v", err)
	}
	if !exists {
		t.Error("Account should exist after registration")
	}
}

func TestAuthenticate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := database.CreateAccount("alice@example.com", "password123"); err != nil {
		t.Fatalf("Registration failed: %v", err)
	}

	valid, err := database.Authenticate("alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !valid {
		t.Error("Expected valid credentials to authenticate")
	}

	valid, err = database.Authenticate("alice@example.com", "wrongpassword")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if valid {
		t.Error("Expected wrong password to be rejected")
	}

	valid, err = database.Authenticate("nobody@example.com", "password123")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if valid {
		t.Error("Expected unknown account to be rejected")
	}
}

func TestSecretsAreHashed(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := database.CreateAccount("alice@example.com", "password123"); err != nil {
		t.Fatalf("Registration failed: %v", err)
	}

	var stored string
	err := database.conn.QueryRow("SELECT secret FROM accounts WHERE login = ?", "alice@example.com").Scan(&stored)
	if err != nil {
		t.Fatalf("Failed to read stored secret: %v", err)
	}
	if stored == "password123" {
		t.Error("Secret stored in plaintext")
	}
}

func TestHistoryOrderAndTruncation(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 1; i <= 15; i++ {
		ev := models.HistoryEvent{
			Username:  "alice",
			Text:      fmt.Sprintf("message %d", i),
			Timestamp: fmt.Sprintf("2024-12-09 10:00:%02d", i),
		}
		if err := database.AppendHistory(ev); err != nil {
			t.Fatalf("AppendHistory failed: %v", err)
		}
	}

	all, err := database.HistoryAll()
	if err != nil {
		t.Fatalf("HistoryAll failed: %v", err)
	}
	if len(all) != 15 {
		t.Fatalf("Expected 15 events, got %d", len(all))
	}
	for i, ev := range all {
		expected := fmt.Sprintf("message %d", i+1)
		if ev.Text != expected {
			t.Errorf("Event %d: expected %q, got %q", i, expected, ev.Text)
		}
	}

	last, err := database.HistoryLast(10)
	if err != nil {
		t.Fatalf("HistoryLast failed: %v", err)
	}
	if len(last) != 10 {
		t.Fatalf("Expected 10 events, got %d", len(last))
	}
	// The last 10 of 15, oldest first
	for i, ev := range last {
		expected := fmt.Sprintf("message %d", i+6)
		if ev.Text != expected {
			t.Errorf("Event %d: expected %q, got %q", i, expected, ev.Text)
		}
	}

	// Asking for more than recorded returns the whole log
	last, err = database.HistoryLast(99)
	if err != nil {
		t.Fatalf("HistoryLast failed: %v", err)
	}
	if len(last) != 15 {
		t.Errorf("Expected 15 events, got %d", len(last))
	}
}
