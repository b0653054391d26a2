// Package memory is a store backend that keeps records in process memory.
// It backs tests and single-process setups.
package memory

import (
	"context"
	"sync"

	"NetSankey/internal/config"
	"NetSankey/internal/model"
	"NetSankey/internal/store"

	cmap "github.com/orcaman/concurrent-map/v2"
)

func init() {
	store.Register("memory", func(config.StoreConfig) (store.Store, error) {
		return New(), nil
	})
}

// Store is an append-only in-memory record store.
type Store struct {
	mu      sync.RWMutex
	records []model.FlowRecord
	err     error
	// hosts indexes the endpoints of valid records.
	hosts cmap.ConcurrentMap[string, struct{}]
}

// New creates an empty store.
func New() *Store {
	return &Store{hosts: cmap.New[struct{}]()}
}

// Insert appends records.
func (s *Store) Insert(ctx context.Context, records []model.FlowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	for _, rec := range records {
		if (model.Filter{}).Match(rec) {
			s.hosts.Set(rec.SrcIP, struct{}{})
			s.hosts.Set(rec.DstIP, struct{}{})
		}
	}
	return nil
}

// Scan calls fn for every record matching filter.
func (s *Store) Scan(ctx context.Context, filter model.Filter, fn func(model.FlowRecord) error) error {
	s.mu.RLock()
	if s.err != nil {
		s.mu.RUnlock()
		return s.err
	}
	snapshot := s.records[:len(s.records):len(s.records)]
	s.mu.RUnlock()

	for i, rec := range snapshot {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if !filter.Match(rec) {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Hosts returns the distinct endpoints of all valid records.
func (s *Store) Hosts(ctx context.Context) ([]string, error) {
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	return s.hosts.Keys(), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ping reports the injected error, if any.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// SetErr makes every following operation fail with err.
func (s *Store) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
