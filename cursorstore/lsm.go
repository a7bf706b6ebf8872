package cursorstore

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/beyondbrewing/brewery-docstore/db"
	"github.com/beyondbrewing/brewery-docstore/docstore"
)

// lsmDir is the Pebble directory holding every LSM table of a connection.
const lsmDir = "lsm"

// catalogCF records which tables exist; column families themselves are not
// persisted.
const catalogCF = "catalog"

// lsmEngine stores each table as a column family of one Pebble database.
type lsmEngine struct {
	store *db.PebbleDB
}

func openLSM(dir string, cfg *docstore.Config) (*lsmEngine, error) {
	store, err := db.Open(filepath.Join(dir, lsmDir),
		db.WithFS(cfg.FS),
		db.WithColumnFamilies(catalogCF),
		db.WithCacheSize(cfg.CacheSize),
		db.WithMemTableSize(cfg.WriteBufferThreshold),
		db.WithAutomaticCompactions(cfg.CompactionMode == docstore.CompactionAuto),
		db.WithSyncWrites(false),
		db.WithLogger(cfg.Logger),
	)
	if err != nil {
		return nil, err
	}
	return &lsmEngine{store: store}, nil
}

func tableCF(name string) string { return "t:" + name }

func (e *lsmEngine) createTable(name string) error {
	if err := e.store.CreateColumnFamily(tableCF(name)); err != nil {
		return err
	}
	return e.store.Put(catalogCF, []byte(name), nil)
}

func (e *lsmEngine) hasTable(name string) (bool, error) {
	ok, err := e.store.Has(catalogCF, []byte(name))
	if err != nil || !ok {
		return ok, err
	}
	// Registered again after a restart.
	return true, e.store.CreateColumnFamily(tableCF(name))
}

func (e *lsmEngine) begin(writable bool) (txn, error) {
	t := &lsmTxn{store: e.store}
	if writable {
		t.batch = e.store.NewBatch()
	}
	return t, nil
}

// stat reports the whole Pebble database's disk usage: tables share files,
// and counting one table's keys would need a scan.
func (e *lsmEngine) stat(name string) (tableStat, error) {
	ok, err := e.store.Has(catalogCF, []byte(name))
	if err != nil {
		return tableStat{}, err
	}
	if !ok {
		return tableStat{}, errNoTable
	}
	size, err := e.store.DiskUsage()
	return tableStat{size: size}, err
}

func (e *lsmEngine) close() error {
	return e.store.Close()
}

type lsmTxn struct {
	store *db.PebbleDB
	batch db.Batch
}

func (t *lsmTxn) cursor(table string) (cursor, error) {
	return &lsmCursor{txn: t, cf: tableCF(table)}, nil
}

func (t *lsmTxn) commit(sync bool) error {
	if t.batch == nil {
		return nil
	}
	defer t.batch.Close()
	if err := t.batch.Commit(); err != nil {
		return err
	}
	if sync {
		return t.store.SyncWAL()
	}
	return nil
}

func (t *lsmTxn) rollback() error {
	if t.batch != nil {
		t.batch.Close()
	}
	return nil
}

type lsmCursor struct {
	txn *lsmTxn
	cf  string
}

func (c *lsmCursor) search(key []byte) ([]byte, error) {
	v, err := c.txn.store.Get(c.cf, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, errNotFound
	}
	return v, err
}

func (c *lsmCursor) insert(key, value []byte) error {
	if c.txn.batch == nil {
		return fmt.Errorf("cursorstore: insert in read-only transaction")
	}
	return c.txn.batch.Put(c.cf, key, value)
}
