package memory

import (
	"context"
	"sync"

	"drawsync/core"
)

type object struct {
	data     []byte
	mimeType string
}

type assetStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewStore creates an in-memory asset store, used for development and tests.
func NewStore() *assetStore {
	return &assetStore{objects: make(map[string]object)}
}

func (s *assetStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *assetStore) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	s.objects[key] = object{data: stored, mimeType: mimeType}
	s.mu.Unlock()
	return nil
}

func (s *assetStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, "", core.ErrAssetNotFound
	}
	return obj.data, obj.mimeType, nil
}

func (s *assetStore) URL(key string) string {
	return "memory://" + key
}

// Len reports how many objects are stored; tests use it to assert dedup.
func (s *assetStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
