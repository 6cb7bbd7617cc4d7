package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/awayrelay/internal/store"
)

// Schema creates the tables used by the relay. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'busy',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	sender     TEXT NOT NULL,
	receiver   TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender, receiver, id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies Schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema on an in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; ":memory:" requires it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts a new account.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, status)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, username, email, passwordHash, store.StatusBusy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByUsername(ctx, username)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, email, password_hash, status, created_at
		FROM users
		WHERE username = ?
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ListUsers returns all users ordered by username.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `
		SELECT id, username, email, password_hash, status, created_at
		FROM users
		ORDER BY username
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// ==== PresenceStore implementation ====

// SetStatus overwrites the presence status of a user.
func (s *SQLiteStore) SetStatus(ctx context.Context, username string, status store.PresenceStatus) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET status = ? WHERE username = ?`, status, username)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Status returns the presence status of a user.
func (s *SQLiteStore) Status(ctx context.Context, username string) (store.PresenceStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM users WHERE username = ?`, username).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("query status: %w", err)
	}
	return store.PresenceStatus(status), nil
}

// Statuses returns presence for the given users. Unknown users are reported busy.
func (s *SQLiteStore) Statuses(ctx context.Context, usernames []string) (map[string]store.PresenceStatus, error) {
	result := make(map[string]store.PresenceStatus, len(usernames))
	if len(usernames) == 0 {
		return result, nil
	}

	args := make([]any, len(usernames))
	for i, name := range usernames {
		args[i] = name
		result[name] = store.StatusBusy
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(usernames)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT username, status FROM users WHERE username IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, status string
		if err := rows.Scan(&name, &status); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		result[name] = store.PresenceStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return result, nil
}

// ResetStatuses marks every user busy.
func (s *SQLiteStore) ResetStatuses(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET status = ?`, store.StatusBusy); err != nil {
		return fmt.Errorf("reset statuses: %w", err)
	}
	return nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message and fills ID and CreatedAt.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO messages (sender, receiver, body, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.Sender, msg.Receiver, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

// ListConversation returns the latest messages between two users, oldest first.
func (s *SQLiteStore) ListConversation(ctx context.Context, userA, userB string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, sender, receiver, body, created_at
		FROM messages
		WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Receiver, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var (
		user   store.User
		status string
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&status,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	user.Status = store.PresenceStatus(status)
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
