package cursorstore

import "errors"

// errNotFound is returned by cursor.search on a miss.
var errNotFound = errors.New("cursorstore: key not found")

// errNoTable is returned when a table has not been created.
var errNoTable = errors.New("cursorstore: table does not exist")

// engine is a table store offering cursor access inside transactions. One
// engine serves every table of a given layout on a connection.
type engine interface {
	// createTable creates name if it does not exist.
	createTable(name string) error

	// hasTable reports whether name has been created.
	hasTable(name string) (bool, error)

	// begin starts a transaction. Read transactions must be rolled back.
	begin(writable bool) (txn, error)

	// stat returns the size of a table in one engine call.
	stat(name string) (tableStat, error)

	close() error
}

type txn interface {
	cursor(table string) (cursor, error)

	// commit applies the transaction, syncing to stable storage when sync
	// is set.
	commit(sync bool) error

	rollback() error
}

type cursor interface {
	// search positions on key and returns its value, valid until the
	// transaction ends. Returns errNotFound on a miss.
	search(key []byte) ([]byte, error)

	// insert writes key, overwriting any existing value. key and value
	// must not be modified until the transaction ends.
	insert(key, value []byte) error
}

// tableStat is a table's footprint. keys is 0 when the engine cannot count
// keys without a scan.
type tableStat struct {
	size uint64
	keys uint64
}
