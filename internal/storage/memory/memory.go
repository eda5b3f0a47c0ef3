package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/bark-labs/qr-alarm/internal/storage"
)

var _ storage.Store = (*Store)(nil)

var errWriteFailed = errors.New("memory store: write failed")

// Store keeps values in process memory. Nothing survives a restart; it backs
// ephemeral deployments and tests.
type Store struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool

	// FailWrites makes every Set fail, for exercising degraded paths.
	FailWrites bool
}

// New returns an empty store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", storage.ErrClosed
	}
	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if s.FailWrites {
		return errWriteFailed
	}
	s.data[key] = value
	return nil
}

// Close marks the store unusable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
