package user

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials in process memory.
// Passwords are stored and compared as plain text.
type MemoryStore struct {
	// mu serialises every read and write of users.
	mu sync.Mutex

	// users maps username to its record.
	users map[string]User
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]User),
	}
}

func (s *MemoryStore) Register(_ context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return ErrAlreadyExists
	}

	s.users[username] = User{Username: username, Password: password}
	return nil
}

func (s *MemoryStore) Authenticate(_ context.Context, username, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return false, nil
	}

	return u.Password == password, nil
}

// Count returns the number of registered users.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.users)
}
