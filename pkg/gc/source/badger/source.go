// Package badger provides a BadgerDB-backed path index implementing
// gc.Indexer.
//
// Key layout:
//   - prop:{property}\x00{path} -> value  (scan index, prefix-iterated per property)
//   - node:{path}\x00{property} -> value  (per-node lookup and removal)
//
// Both keys are written and deleted in the same transaction.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittobin/internal/logger"
	"github.com/marmos91/dittobin/pkg/gc"
)

const (
	propPrefix = "prop:"
	nodePrefix = "node:"
	sep        = "\x00"
)

// Config configures the badger index.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database in memory only.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// Source is a persistent path index.
type Source struct {
	db   *badgerdb.DB
	name string
}

// Open opens (or creates) the index described by cfg.
func Open(cfg Config) (*Source, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("badger index path is required")
	}

	opts := badgerdb.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger index: %w", err)
	}
	logger.Debug("Badger index opened", "path", cfg.Path, "in_memory", cfg.InMemory)
	return &Source{db: db, name: "badger"}, nil
}

func propKey(name, path string) []byte { return []byte(propPrefix + name + sep + path) }
func nodeKey(path, name string) []byte { return []byte(nodePrefix + path + sep + name) }

func (s *Source) Name() string { return s.name }

func (s *Source) SetProperty(ctx context.Context, path, name, value string) error {
	if strings.Contains(path, sep) || strings.Contains(name, sep) {
		return fmt.Errorf("path or property contains a NUL byte")
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(propKey(name, path), []byte(value)); err != nil {
			return err
		}
		return txn.Set(nodeKey(path, name), []byte(value))
	})
}

func (s *Source) Lookup(ctx context.Context, path string, names []string) (value, property string, ok bool, err error) {
	err = s.db.View(func(txn *badgerdb.Txn) error {
		for _, n := range names {
			item, err := txn.Get(nodeKey(path, n))
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			value, property, ok = string(v), n, true
			return nil
		}
		return nil
	})
	return value, property, ok, err
}

func (s *Source) RemoveNode(ctx context.Context, path string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(nodePrefix + path + sep)

		var names []string
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			names = append(names, string(bytes.TrimPrefix(key, opts.Prefix)))
		}
		it.Close()

		for _, n := range names {
			if err := txn.Delete(nodeKey(path, n)); err != nil {
				return err
			}
			if err := txn.Delete(propKey(n, path)); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindNodesWithAnyProperty streams the scan index inside one read
// transaction, one property after the other.
func (s *Source) FindNodesWithAnyProperty(ctx context.Context, names []string) (gc.NodeIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &nodeIterator{
		txn:   s.db.NewTransaction(false),
		names: append([]string(nil), names...),
	}, nil
}

// CacheStats is a snapshot of one badger cache.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Ratio  float64
}

// CacheStats returns the block and index cache counters, keyed "block" and
// "index". A disabled cache reports zeros.
func (s *Source) CacheStats() map[string]CacheStats {
	block, index := s.db.BlockCacheMetrics(), s.db.IndexCacheMetrics()
	return map[string]CacheStats{
		"block": {Hits: block.Hits(), Misses: block.Misses(), Ratio: block.Ratio()},
		"index": {Hits: index.Hits(), Misses: index.Misses(), Ratio: index.Ratio()},
	}
}

// Close closes the database.
func (s *Source) Close() error {
	return s.db.Close()
}

type nodeIterator struct {
	txn    *badgerdb.Txn
	it     *badgerdb.Iterator
	prefix []byte
	names  []string
	cur    int
	closed bool
}

func (n *nodeIterator) Next(ctx context.Context) (gc.Node, error) {
	if n.closed {
		return gc.Node{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return gc.Node{}, err
	}

	for {
		if n.it == nil {
			if n.cur >= len(n.names) {
				return gc.Node{}, io.EOF
			}
			opts := badgerdb.DefaultIteratorOptions
			n.prefix = []byte(propPrefix + n.names[n.cur] + sep)
			opts.Prefix = n.prefix
			n.it = n.txn.NewIterator(opts)
			n.it.Rewind()
		}
		if !n.it.Valid() {
			n.it.Close()
			n.it = nil
			n.cur++
			continue
		}

		item := n.it.Item()
		path := string(bytes.TrimPrefix(item.KeyCopy(nil), n.prefix))
		value, err := item.ValueCopy(nil)
		n.it.Next()
		if err != nil {
			return gc.Node{}, &gc.NodeError{Path: path, Err: err}
		}
		return gc.Node{Path: path, Property: n.names[n.cur], Value: string(value)}, nil
	}
}

func (n *nodeIterator) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	if n.it != nil {
		n.it.Close()
		n.it = nil
	}
	n.txn.Discard()
	return nil
}

var _ gc.Indexer = (*Source)(nil)
