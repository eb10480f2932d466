// ABOUTME: In-memory correlation store mapping authorization tokens to chat IDs
// ABOUTME: Register/Consume pair gives the at-most-once handoff guarantee

package correlate

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrDuplicateToken indicates a token was registered twice. Tokens carry
// UUID entropy, so a collision is a caller bug, not a retry path.
var ErrDuplicateToken = errors.New("token already registered")

// ErrNotFound indicates the token was never registered or already consumed.
var ErrNotFound = errors.New("token not registered")

// NewToken returns a fresh opaque correlation token.
func NewToken() string {
	return uuid.New().String()
}

// Store maps pending authorization tokens to the chat that requested them.
// It is owned by the dialogue process: the conversation engine registers,
// the handoff dispatcher consumes. A single mutex covers both so a token
// is consumed at most once.
//
// Entries have no expiry; a token lives until consumed or process exit.
type Store struct {
	mu      sync.Mutex
	pending map[string]int64
	logger  *slog.Logger
}

// New creates an empty correlation store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pending: make(map[string]int64),
		logger:  logger.With("component", "correlate"),
	}
}

// Register records that token identifies a pending authorization for chatID.
// Returns ErrDuplicateToken if the token is already pending.
func (s *Store) Register(token string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[token]; exists {
		return ErrDuplicateToken
	}

	s.pending[token] = chatID
	s.logger.Debug("authorization pending", "chat_id", chatID, "pending", len(s.pending))
	return nil
}

// Consume atomically removes the token and returns the chat it identified.
// Returns ErrNotFound if the token was never registered or was already
// consumed: replaying the same outcome twice yields exactly one success.
func (s *Store) Consume(token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID, exists := s.pending[token]
	if !exists {
		return 0, ErrNotFound
	}

	delete(s.pending, token)
	s.logger.Debug("authorization resolved", "chat_id", chatID, "pending", len(s.pending))
	return chatID, nil
}

// Len returns the number of pending authorizations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
