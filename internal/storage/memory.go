package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	items map[string]string
	mutex sync.RWMutex
}

// NewMemory builds an in-memory store. Nothing survives process exit.
func NewMemory() KV {
	return &memoryStore{items: make(map[string]string)}
}

func (s *memoryStore) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap(DriverMemory, "get", keys, err)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s.items[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

func (s *memoryStore) Set(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return wrap(DriverMemory, "set", keysOf(values), err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for k, v := range values {
		s.items[k] = v
	}
	return nil
}

func (s *memoryStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrap(DriverMemory, "setnx", []string{key}, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if existing, ok := s.items[key]; ok {
		return existing, nil
	}
	s.items[key] = value
	return value, nil
}

func (s *memoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return wrap(DriverMemory, "delete", keys, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
