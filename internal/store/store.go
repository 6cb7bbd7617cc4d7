package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested user or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique username or email is already taken.
	ErrConflict = errors.New("conflict")
)

// PresenceStatus is the durable availability flag of a user.
type PresenceStatus string

const (
	StatusAvailable PresenceStatus = "available"
	StatusBusy      PresenceStatus = "busy"
)

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Status       PresenceStatus
	CreatedAt    time.Time
}

// Message represents a persisted direct message.
type Message struct {
	ID        int64
	Sender    string
	Receiver  string
	Body      string
	CreatedAt time.Time
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser inserts a new account. Returns ErrConflict if the username or email is taken.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers returns every registered user ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)
}

// PresenceStore is the authoritative username -> presence mapping.
type PresenceStore interface {
	// SetStatus overwrites the presence of a user. Returns ErrNotFound for unknown users
	// when the backend knows the user set.
	SetStatus(ctx context.Context, username string, status PresenceStatus) error

	// Status reads the presence of a user. Returns ErrNotFound for unknown users.
	Status(ctx context.Context, username string) (PresenceStatus, error)

	// Statuses reads presence for many users at once. Missing users are reported busy.
	Statuses(ctx context.Context, usernames []string) (map[string]PresenceStatus, error)

	// ResetStatuses marks every known user busy.
	ResetStatuses(ctx context.Context) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills its ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListConversation returns up to limit messages exchanged between two users, oldest first.
	ListConversation(ctx context.Context, userA, userB string, limit int) ([]*Message, error)
}

// Store aggregates the SQL-backed storage interfaces.
type Store interface {
	UserStore
	PresenceStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
