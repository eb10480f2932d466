// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	credentials map[int64]*Credential

	// FailWith, when set, is returned by every operation. Lets tests
	// exercise store-failure paths.
	FailWith error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		credentials: make(map[int64]*Credential),
	}
}

// Exists reports whether a credential is stored for the chat.
func (m *MockStore) Exists(ctx context.Context, chatID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return false, m.FailWith
	}
	_, ok := m.credentials[chatID]
	return ok, nil
}

// Create stores a new credential, leaving any existing one untouched.
func (m *MockStore) Create(ctx context.Context, chatID int64, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	if _, ok := m.credentials[chatID]; ok {
		return nil
	}

	now := time.Now()
	m.credentials[chatID] = &Credential{
		ChatID:    chatID,
		Blob:      append([]byte(nil), blob...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// Get returns the credential blob for the chat.
func (m *MockStore) Get(ctx context.Context, chatID int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}
	cred, ok := m.credentials[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), cred.Blob...), nil
}

// Update replaces the credential blob for the chat.
func (m *MockStore) Update(ctx context.Context, chatID int64, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	cred, ok := m.credentials[chatID]
	if !ok {
		return ErrNotFound
	}
	cred.Blob = append([]byte(nil), blob...)
	cred.UpdatedAt = time.Now()
	return nil
}

// Delete removes the credential for the chat.
func (m *MockStore) Delete(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	delete(m.credentials, chatID)
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
