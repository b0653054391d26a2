// Package store defines the flow record store contract and the registry of
// store backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"NetSankey/internal/config"
	"NetSankey/internal/model"

	log "github.com/sirupsen/logrus"
)

// ErrUnknownType is returned by Open for an unregistered store type.
var ErrUnknownType = errors.New("unknown store type")

// Store persists flow records and answers the queries the graph engine needs.
// Implementations must be safe for concurrent use.
type Store interface {
	model.RecordWriter
	// Scan calls fn for every record matching filter, in no particular order.
	// Scanning stops at the first error returned by fn.
	Scan(ctx context.Context, filter model.Filter, fn func(model.FlowRecord) error) error
	// Hosts returns the distinct source and destination addresses of all
	// records whose endpoints are both valid, in no particular order.
	Hosts(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// EdgeAggregator is implemented by stores that can group and sum records
// themselves. The returned edges must equal what the in-process aggregator
// would produce for the same records.
type EdgeAggregator interface {
	AggregateEdges(ctx context.Context, filter model.Filter, key model.GroupKey) ([]model.DirectedEdge, error)
}

// Factory opens a store from its configuration.
type Factory func(cfg config.StoreConfig) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a store backend available under name.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("store type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types returns the registered store types.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the store selected by cfg.Type.
func Open(cfg config.StoreConfig) (Store, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: '%s' (registered: %v)", ErrUnknownType, cfg.Type, Types())
	}

	log.Printf("Opening '%s' flow store", cfg.Type)
	s, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("error opening store type '%s': %w", cfg.Type, err)
	}
	return s, nil
}
