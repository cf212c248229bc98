// Package kv persists small string values under string keys. The engine
// stores the whole rule document as one value.
package kv

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Store is a string key/value store.
type Store interface {
	// Get returns the value under key, or def when the key was never written.
	Get(ctx context.Context, key, def string) (string, error)
	Put(ctx context.Context, key, value string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config selects and locates a backend.
type Config struct {
	Backend string
	Path    string
	Logger  *slog.Logger
}

// Open returns the backend named by cfg.Backend. An empty backend means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case BackendBadger:
		return OpenBadger(BadgerConfig{Path: cfg.Path, SyncWrites: true, Logger: cfg.Logger})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Memory keeps values in a map. Values are lost on exit.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(ctx context.Context, key, def string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.m[key]; ok {
		return v, nil
	}
	return def, nil
}

func (s *Memory) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close() error { return nil }
