// Package store holds the badger-backed key/value pipeline.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Config configures the database.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	// InMemory keeps everything in RAM; used by tests.
	InMemory bool

	// SyncWrites fsyncs on every commit.
	SyncWrites bool

	// Logger receives badger's internal messages. Nil silences them.
	Logger *zap.Logger
}

// InMemoryConfig returns a Config for an ephemeral database.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Infof(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }

// DB wraps a badger database with context-aware transaction helpers.
type DB struct {
	db *badger.DB
}

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{s: cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Update runs fn in a read-write transaction and commits it if fn succeeds.
func (d *DB) Update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// View runs fn in a read-only transaction.
func (d *DB) View(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.db.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// getValue reads key inside txn. found is false when the key is absent.
func getValue(txn *badger.Txn, key []byte) (val []byte, found bool, err error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err = item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}
