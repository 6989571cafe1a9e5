package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/ib-77/txpipe/pkg/capability"
)

var ErrEmptyKey = errors.New("empty key")

const (
	dataPrefix = "kv/"
	undoPrefix = "undo/"

	// journalDepth bounds the undo entries kept per key. Entries of
	// committed pipelines are never consumed, so the oldest are dropped.
	journalDepth = 32
)

// Item is one write in a key/value pipeline.
type Item struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// undoEntry records what one successful Handle overwrote.
type undoEntry struct {
	Written string `cbor:"1,keyasint"`
	Prior   string `cbor:"2,keyasint"`
	Existed bool   `cbor:"3,keyasint"`
}

// KV writes items into the database. Every write pushes an undo entry for
// its key in the same transaction, and Rollback pops them again.
type KV struct {
	db *DB
}

var _ capability.Capability[Item, string] = (*KV)(nil)

func NewKV(db *DB) *KV {
	return &KV{db: db}
}

// Handle stores item.Value under item.Key and returns the written value.
func (kv *KV) Handle(ctx context.Context, item Item) (string, error) {
	if item.Key == "" {
		return "", ErrEmptyKey
	}

	err := kv.db.Update(ctx, func(txn *badger.Txn) error {
		prior, existed, err := getValue(txn, dataKey(item.Key))
		if err != nil {
			return err
		}
		journal, err := readJournal(txn, item.Key)
		if err != nil {
			return err
		}
		journal = append(journal, undoEntry{Written: item.Value, Prior: string(prior), Existed: existed})
		if len(journal) > journalDepth {
			journal = journal[len(journal)-journalDepth:]
		}

		if err := txn.Set(dataKey(item.Key), []byte(item.Value)); err != nil {
			return err
		}
		return writeJournal(txn, item.Key, journal)
	})
	if err != nil {
		return "", fmt.Errorf("put %q: %w", item.Key, err)
	}
	return item.Value, nil
}

// Rollback undoes items newest first. An item is reverted only while the
// newest undo entry for its key records this very write and the key still
// holds it; anything else is left alone. Per-item errors are joined.
func (kv *KV) Rollback(ctx context.Context, items []Item) error {
	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if item.Key == "" {
			continue
		}
		if err := kv.db.Update(ctx, func(txn *badger.Txn) error {
			return revert(txn, item)
		}); err != nil {
			errs = append(errs, fmt.Errorf("revert %q: %w", item.Key, err))
		}
	}
	return errors.Join(errs...)
}

func revert(txn *badger.Txn, item Item) error {
	journal, err := readJournal(txn, item.Key)
	if err != nil || len(journal) == 0 {
		return err
	}
	top := journal[len(journal)-1]
	if top.Written != item.Value {
		return nil
	}
	current, found, err := getValue(txn, dataKey(item.Key))
	if err != nil {
		return err
	}
	if !found || string(current) != item.Value {
		return nil
	}

	if top.Existed {
		err = txn.Set(dataKey(item.Key), []byte(top.Prior))
	} else {
		err = txn.Delete(dataKey(item.Key))
	}
	if err != nil {
		return err
	}
	return writeJournal(txn, item.Key, journal[:len(journal)-1])
}

// Get returns the value stored under key.
func (kv *KV) Get(ctx context.Context, key string) (value string, found bool, err error) {
	err = kv.db.View(ctx, func(txn *badger.Txn) error {
		v, ok, err := getValue(txn, dataKey(key))
		value, found = string(v), ok
		return err
	})
	return value, found, err
}

func dataKey(key string) []byte { return []byte(dataPrefix + key) }
func undoKey(key string) []byte { return []byte(undoPrefix + key) }

func readJournal(txn *badger.Txn, key string) ([]undoEntry, error) {
	raw, found, err := getValue(txn, undoKey(key))
	if err != nil || !found {
		return nil, err
	}
	var journal []undoEntry
	if err := cbor.Unmarshal(raw, &journal); err != nil {
		return nil, fmt.Errorf("decode undo journal: %w", err)
	}
	return journal, nil
}

func writeJournal(txn *badger.Txn, key string, journal []undoEntry) error {
	if len(journal) == 0 {
		return txn.Delete(undoKey(key))
	}
	raw, err := cbor.Marshal(journal)
	if err != nil {
		return fmt.Errorf("encode undo journal: %w", err)
	}
	return txn.Set(undoKey(key), raw)
}
