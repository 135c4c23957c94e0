// Package memorystore is the in-memory sessionstore.Store used by
// single-process deployments and tests.
package memorystore

import (
	"context"
	"sync"

	"github.com/nevermined-io/weather-mcp-demo/gateway/sessionstore"
)

// Store is an in-memory implementation of sessionstore.Store. Safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]sessionstore.Record
}

var _ sessionstore.Store = (*Store)(nil)

// New builds an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]sessionstore.Record)}
}

func (s *Store) Put(ctx context.Context, rec sessionstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (sessionstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return sessionstore.Record{}, sessionstore.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	if ok {
		delete(s.records, id)
	}
	return ok, nil
}
