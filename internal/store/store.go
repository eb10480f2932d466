// ABOUTME: Store interface and data types for calgate credential persistence
// ABOUTME: Defines the Credential record and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no credential exists for the requested chat
var ErrNotFound = errors.New("credential not found")

// Credential is the durable authorization artifact for one chat.
// Blob holds the serialized provider token; its contents are opaque to
// this package.
type Credential struct {
	ChatID    int64
	Blob      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the interface for credential persistence.
// Records are keyed by chat ID, one credential per chat.
type Store interface {
	// Exists reports whether a credential is stored for the chat.
	Exists(ctx context.Context, chatID int64) (bool, error)

	// Create stores a new credential. If one already exists for the
	// chat it is left untouched and no error is returned.
	Create(ctx context.Context, chatID int64, blob []byte) error

	// Get returns the credential blob for the chat.
	// Returns ErrNotFound if none is stored.
	Get(ctx context.Context, chatID int64) ([]byte, error)

	// Update replaces the credential blob for the chat.
	// Returns ErrNotFound if none is stored.
	Update(ctx context.Context, chatID int64, blob []byte) error

	// Delete removes the credential for the chat. Deleting a chat with
	// no stored credential is a no-op.
	Delete(ctx context.Context, chatID int64) error

	// Close releases any resources held by the store
	Close() error
}
