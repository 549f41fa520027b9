package oauthstate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Store records outstanding state nonces between the redirect to the
// provider and the callback.
type Store interface {
	Save(ctx context.Context, nonce string, expiresAt time.Time) error
	// Consume removes the nonce and reports whether it was present and
	// unexpired. A nonce can be consumed at most once.
	Consume(ctx context.Context, nonce string) (bool, error)
}

// MemoryStore is a thread-safe in-memory Store. States only live for the
// length of a browser round trip, so losing them on restart just means the
// user retries the login.
type MemoryStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nonces: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, nonce string, expiresAt time.Time) error {
	if nonce == "" {
		return errors.New("nonce cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	s.nonces[nonce] = expiresAt
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.nonces[nonce]
	if !ok {
		return false, nil
	}
	delete(s.nonces, nonce)

	return s.now().Before(expiresAt), nil
}

// Len returns the number of outstanding nonces.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nonces)
}

// pruneLocked drops expired nonces from abandoned logins.
func (s *MemoryStore) pruneLocked() {
	now := s.now()
	for nonce, expiresAt := range s.nonces {
		if !now.Before(expiresAt) {
			delete(s.nonces, nonce)
		}
	}
}
