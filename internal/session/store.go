package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Store is a small persisted key/value area. SetMany and Delete apply all
// keys in one step.
type Store interface {
	Get(key string) (string, error)
	SetMany(entries map[string]string) error
	Delete(keys ...string) error
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (s *MemoryStore) SetMany(entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.values[k] = v
	}
	return nil
}

func (s *MemoryStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// Sessions gives typed access to the token and user keys of a Store.
type Sessions struct {
	store Store
}

func NewSessions(store Store) *Sessions {
	return &Sessions{store: store}
}

func (s *Sessions) Token() (string, error) {
	token, err := s.store.Get(KeyToken)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("read session token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrNoSession
	}
	return token, nil
}

// Load returns ErrNoSession unless both keys are present.
func (s *Sessions) Load() (Session, error) {
	token, err := s.Token()
	if err != nil {
		return Session{}, err
	}
	raw, err := s.store.Get(KeyUser)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("read session user: %w", err)
	}

	var sess Session
	sess.Token = token
	if err := json.Unmarshal([]byte(raw), &sess.User); err != nil {
		return Session{}, fmt.Errorf("decode session user: %w", err)
	}
	return sess, nil
}

func (s *Sessions) Save(sess Session) error {
	if strings.TrimSpace(sess.Token) == "" {
		return fmt.Errorf("session token is required")
	}
	b, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	if err := s.store.SetMany(map[string]string{
		KeyToken: sess.Token,
		KeyUser:  string(b),
	}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Sessions) Clear() error {
	if err := s.store.Delete(KeyToken, KeyUser); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
