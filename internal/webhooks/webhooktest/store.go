// Package webhooktest holds in-memory stand-ins used by webhook tests.
package webhooktest

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store satisfies redis.IdempotencyStore without a server. TTLs are ignored.
type Store struct {
	mu     sync.Mutex
	data   map[string]string
	delErr error
}

func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *Store) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (s *Store) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *Store) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("cs:idempotency:%s:%s", scope, id)
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delErr != nil {
		return s.delErr
	}
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

// Len reports how many keys are held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// FailDeletes makes every later Del return err and keep its keys.
func (s *Store) FailDeletes(err error) {
	s.mu.Lock()
	s.delErr = err
	s.mu.Unlock()
}
