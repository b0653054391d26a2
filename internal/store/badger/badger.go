// Package badger is an embedded store backend on top of badger.
//
// Records live under "rec/" keyed by big-endian timestamp and a sequence
// number, so iteration yields them in time order. Every valid endpoint is
// also indexed under "host/" which makes host discovery a key-only scan.
package badger

import (
	"context"
	"encoding/binary"
	"fmt"

	"NetSankey/internal/codec"
	"NetSankey/internal/config"
	"NetSankey/internal/model"
	"NetSankey/internal/store"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
)

var (
	recordPrefix = []byte("rec/")
	hostPrefix   = []byte("host/")
	sequenceKey  = []byte("seq/rec")
)

const sequenceBandwidth = 1000

func init() {
	store.Register("badger", func(cfg config.StoreConfig) (store.Store, error) {
		return Open(cfg.Badger)
	})
}

// Store is a badger backed record store.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Open opens or creates the database at cfg.Path, or an in-memory one.
func Open(cfg config.BadgerConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(log.StandardLogger())
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at '%s': %w", cfg.Path, err)
	}
	seq, err := db.GetSequence(sequenceKey, sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to acquire record sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

func recordKey(nanos int64, seq uint64) []byte {
	k := make([]byte, len(recordPrefix)+16)
	n := copy(k, recordPrefix)
	binary.BigEndian.PutUint64(k[n:], uint64(nanos))
	binary.BigEndian.PutUint64(k[n+8:], seq)
	return k
}

func hostKey(addr string) []byte {
	return append(append([]byte{}, hostPrefix...), addr...)
}

// Insert writes records in one write batch.
func (s *Store) Insert(ctx context.Context, records []model.FlowRecord) error {
	if len(records) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	hosts := make(map[string]struct{})
	for _, rec := range records {
		n, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("failed to allocate record key: %w", err)
		}
		if err := wb.Set(recordKey(rec.Timestamp.UnixNano(), n), codec.Marshal(nil, rec)); err != nil {
			return fmt.Errorf("failed to stage record: %w", err)
		}
		if (model.Filter{}).Match(rec) {
			hosts[rec.SrcIP] = struct{}{}
			hosts[rec.DstIP] = struct{}{}
		}
	}
	for h := range hosts {
		if err := wb.Set(hostKey(h), nil); err != nil {
			return fmt.Errorf("failed to stage host index: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush write batch: %w", err)
	}
	return nil
}

// Scan calls fn for every matching record in timestamp order.
func (s *Store) Scan(ctx context.Context, filter model.Filter, fn func(model.FlowRecord) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: recordPrefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec model.FlowRecord
			err := it.Item().Value(func(val []byte) error {
				var err error
				rec, err = codec.Unmarshal(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to decode record %x: %w", it.Item().Key(), err)
			}
			if !filter.Match(rec) {
				continue
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Hosts returns every indexed endpoint.
func (s *Store) Hosts(ctx context.Context) ([]string, error) {
	var hosts []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: hostPrefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			hosts = append(hosts, string(it.Item().Key()[len(hostPrefix):]))
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	return hosts, nil
}

// Ping fails once the database has been closed.
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return badger.ErrDBClosed
	}
	return nil
}

// Close releases the sequence and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		log.WithError(err).Warn("Failed to release record sequence")
	}
	return s.db.Close()
}
