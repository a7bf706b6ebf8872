// Package db is the key-value layer underneath the document-store engines. It
// exposes logical column families (via key-prefixing), atomic batch writes,
// ordered iteration, compaction, checkpoints and graceful shutdown.
//
// The primary interface is [Store], satisfied by [PebbleDB] (production) and
// [MockStore] (testing). Column families double as tables: the sequenced log
// engine keeps its metadata, bodies and sequence index in separate families,
// and the cursor engine's LSM layout creates one family per open database.
package db

import (
	"errors"
	"io"
)

// Sentinel errors returned by Store implementations.
var (
	ErrClosed               = errors.New("db: database is closed")
	ErrColumnFamilyNotFound = errors.New("db: column family not found")
	ErrColumnFamilyInvalid  = errors.New("db: invalid column family name")
	ErrKeyNotFound          = errors.New("db: key not found")
	ErrNilKey               = errors.New("db: key must not be nil")
	ErrBatchClosed          = errors.New("db: batch is closed")
	ErrNotSupported         = errors.New("db: operation not supported")
	ErrReadOnly             = errors.New("db: database is read-only")
)

// DefaultColumnFamily is the column family used when no explicit family is
// specified. It is always registered automatically.
const DefaultColumnFamily = "default"

// Store defines the contract for all database operations.
// All methods are safe for concurrent use by multiple goroutines.
type Store interface {
	// Get retrieves the value for a key in the given column family.
	// Returns ErrKeyNotFound if the key does not exist.
	// Returns ErrColumnFamilyNotFound if the column family is unknown.
	Get(cf string, key []byte) ([]byte, error)

	// Put stores a key-value pair in the given column family.
	Put(cf string, key []byte, value []byte) error

	// Delete removes a key from the given column family.
	// Deleting a non-existent key is not an error.
	Delete(cf string, key []byte) error

	// Has reports whether a key exists in the given column family.
	Has(cf string, key []byte) (bool, error)

	// CreateColumnFamily registers a column family after open. Registering
	// an existing family is not an error.
	CreateColumnFamily(cf string) error

	// NewBatch creates an atomic write batch. Operations are buffered in
	// memory and applied atomically when Commit is called. The caller must
	// call Close when the batch is no longer needed.
	NewBatch() Batch

	// NewIterator creates a forward/backward iterator scoped to the given
	// column family. The caller must call Close on the returned Iterator.
	NewIterator(cf string) (Iterator, error)

	// Flush forces all buffered writes (memtable) to persistent storage.
	Flush() error

	// SyncWAL makes every write acknowledged so far durable, regardless of
	// the configured per-write sync mode.
	SyncWAL() error

	// Compact rewrites the whole keyspace, dropping obsolete versions.
	Compact() error

	// Checkpoint writes a consistent, openable copy of the database to dir.
	// Returns ErrNotSupported when the engine cannot produce one.
	Checkpoint(dir string) error

	// DiskUsage reports the bytes currently occupied by the database.
	DiskUsage() (uint64, error)

	// Close performs a graceful shutdown: flushes pending writes, closes
	// the underlying engine, and releases all resources.
	// After Close returns, every other method returns ErrClosed.
	io.Closer
}

// Batch is an atomic write batch. Operations are buffered in memory and
// applied atomically on Commit.
type Batch interface {
	// Put stages a key-value write in the given column family.
	Put(cf string, key []byte, value []byte) error

	// Delete stages a key deletion in the given column family.
	Delete(cf string, key []byte) error

	// Count returns the number of staged operations.
	Count() int

	// Commit atomically applies all staged operations.
	Commit() error

	// Close releases batch resources. Must be called even after Commit.
	Close()
}

// Iterator provides ordered traversal over keys in a single column family.
// Key and Value return copies that remain valid after the iterator advances.
type Iterator interface {
	// Seek positions the iterator at the first key >= target.
	Seek(target []byte)

	// SeekToFirst positions the iterator at the first key.
	SeekToFirst()

	// SeekToLast positions the iterator at the last key.
	SeekToLast()

	// Next advances the iterator by one key.
	Next()

	// Prev moves the iterator back by one key.
	Prev()

	// Valid reports whether the iterator is positioned at a valid entry.
	Valid() bool

	// Key returns a copy of the current key (prefix-stripped).
	// Only valid when Valid() is true.
	Key() []byte

	// Value returns a copy of the current value.
	// Only valid when Valid() is true.
	Value() []byte

	// Err returns any accumulated error from the underlying engine.
	Err() error

	// Close releases iterator resources.
	Close()
}

// validColumnFamily rejects names that would break prefix isolation.
func validColumnFamily(cf string) bool {
	if cf == "" {
		return false
	}
	for i := 0; i < len(cf); i++ {
		if cf[i] == 0x00 || cf[i] == 0x01 {
			return false
		}
	}
	return true
}
