package db

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	committedTxnTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xerc_db_committed_transactions_total",
			Help: "Total number of read-write transactions committed to the database",
		})
	abortedTxnTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xerc_db_aborted_transactions_total",
			Help: "Total number of read-write transactions rolled back",
		})
)

var ErrNotFound = errors.New("requested key not found in store")

// Database is the state of one contract instance (or of the loopback gateway). Every contract call runs in exactly
// one read-write transaction, which is what makes a call all-or-nothing.
type Database struct {
	db *badger.DB
}

// Open opens (or creates) a database in the given directory.
func Open(path string) (*Database, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", path, err)
	}
	return &Database{db: db}, nil
}

// OpenInMemory opens a database that lives only as long as the process. Used by tests and ephemeral devnets.
func OpenInMemory() (*Database, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger database: %w", err)
	}
	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Update runs fn in a single read-write transaction. If fn returns an error nothing it wrote is committed.
func (d *Database) Update(fn func(txn *Txn) error) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	})
	if err != nil {
		abortedTxnTotal.Inc()
		return err
	}
	committedTxnTotal.Inc()
	return nil
}

// View runs fn in a read-only transaction.
func (d *Database) View(fn func(txn *Txn) error) error {
	return d.db.View(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	})
}

// Txn is a transaction handle. Reads observe writes made earlier in the same transaction.
type Txn struct {
	txn *badger.Txn
}

func (t *Txn) get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *Txn) set(key []byte, val []byte) error {
	if err := t.txn.Set(key, val); err != nil {
		return fmt.Errorf("failed to set %s: %w", string(key), err)
	}
	return nil
}

func (t *Txn) delete(key []byte) error {
	if err := t.txn.Delete(key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", string(key), err)
	}
	return nil
}

func (t *Txn) has(key []byte) (bool, error) {
	_, err := t.txn.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

// iterate calls fn for every key with the given prefix, in key order.
func (t *Txn) iterate(prefix []byte, fn func(key []byte, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 10
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}
