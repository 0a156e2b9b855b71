package userstore

import (
	"database/sql"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no user exists for the given ID.
var ErrNotFound = errors.New("user not found")

// Store is a read-mostly adapter over the account database. The account
// system owns writes; the collaboration server only looks up display
// names to label participants.
type Store struct {
	db *sql.DB
}

type User struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("User store opened at %s", dbPath)
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DisplayName returns the display name for a user ID, preferring the
// recorded name and falling back to the email. Satisfies
// auth.UserDirectory.
func (s *Store) DisplayName(userID string) (string, error) {
	user, err := s.GetUser(userID)
	if err != nil {
		return "", err
	}
	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	return user.Email, nil
}

func (s *Store) GetUser(id string) (*User, error) {
	row := s.db.QueryRow(
		"SELECT id, display_name, email, created_at FROM users WHERE id = ?",
		id,
	)

	var user User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a user record. Used by provisioning and tests; the
// production write path lives in the account service.
func (s *Store) CreateUser(id, displayName, email string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO users (id, display_name, email) VALUES (?, ?, ?)",
		id, displayName, email,
	)
	return err
}
