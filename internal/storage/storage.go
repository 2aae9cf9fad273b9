// Package storage defines the keyed value store the catalog persists
// through, plus the default in-memory implementation. Redis and S3
// backends live in subpackages.
package storage

import (
	"context"
	"sync"
)

// Store is a minimal keyed byte store. Implementations may block or
// perform I/O; the engine never calls them while holding its own
// locks. A failed call must return the error, never swallow it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
}

// Mem is a process-memory Store, safe for concurrent use. It is the
// default backing when no external persistence is configured, and the
// test double everywhere else.
type Mem struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMem() *Mem {
	return &Mem{m: make(map[string][]byte)}
}

func (s *Mem) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Mem) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.m[key] = v
	return nil
}

func (s *Mem) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *Mem) Has(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[key]
	return ok, nil
}
