package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"intake-backend/internal/shared/storage/object"
)

// Store keeps objects in process memory. Used by dev mode and tests.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object

	// FailPut, when set, is consulted before every Put.
	FailPut func(storageKey string) error
}

// Object is one stored blob.
type Object struct {
	ContentType string
	Data        []byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{objects: make(map[string]Object)}
}

// Put stores the reader contents under storageKey.
func (s *Store) Put(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key, err := object.CleanKey(storageKey)
	if err != nil {
		return 0, err
	}
	if s.FailPut != nil {
		if err := s.FailPut(key); err != nil {
			return 0, err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}

	s.mu.Lock()
	s.objects[key] = Object{ContentType: contentType, Data: data}
	s.mu.Unlock()
	return int64(len(data)), nil
}

// Open returns a reader over a stored object.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := object.CleanKey(storageKey)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, object.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

// Get returns a stored object for assertions.
func (s *Store) Get(storageKey string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[storageKey]
	return obj, ok
}

// Len reports the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ object.ObjectStore = (*Store)(nil)
