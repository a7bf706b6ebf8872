package cursorstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beyondbrewing/brewery-docstore/docstore"
	bolt "go.etcd.io/bbolt"
)

// boltFile is the single file holding every B-tree table of a connection.
const boltFile = "tables.db"

// boltFillPercent packs pages completely on split.
const boltFillPercent = 1.0

// boltEngine stores each table as a bucket in one bbolt file.
type boltEngine struct {
	db *bolt.DB
}

func openBolt(dir string, cfg *docstore.Config) (*boltEngine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cursorstore: create %s: %w", dir, err)
	}
	opts := &bolt.Options{
		Timeout:         time.Second,
		InitialMmapSize: int(cfg.CacheSize),
		FreelistType:    bolt.FreelistMapType,
	}
	db, err := bolt.Open(filepath.Join(dir, boltFile), 0o600, opts)
	if err != nil {
		return nil, fmt.Errorf("cursorstore: open %s: %w", boltFile, err)
	}
	return &boltEngine{db: db}, nil
}

func (e *boltEngine) createTable(name string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
}

func (e *boltEngine) hasTable(name string) (bool, error) {
	var ok bool
	err := e.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket([]byte(name)) != nil
		return nil
	})
	return ok, err
}

func (e *boltEngine) begin(writable bool) (txn, error) {
	tx, err := e.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltTxn{db: e.db, tx: tx}, nil
}

func (e *boltEngine) stat(name string) (tableStat, error) {
	var st tableStat
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return errNoTable
		}
		s := b.Stats()
		st.size = uint64(s.BranchAlloc + s.LeafAlloc + s.InlineBucketInuse)
		st.keys = uint64(s.KeyN)
		return nil
	})
	return st, err
}

func (e *boltEngine) close() error {
	return e.db.Close()
}

type boltTxn struct {
	db *bolt.DB
	tx *bolt.Tx
}

func (t *boltTxn) cursor(table string) (cursor, error) {
	b := t.tx.Bucket([]byte(table))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", errNoTable, table)
	}
	b.FillPercent = boltFillPercent
	return &boltCursor{b: b}, nil
}

// commit applies the handle's sync setting to this commit only. bbolt runs
// one write transaction at a time, so the flag is not shared with another
// writer while set.
func (t *boltTxn) commit(sync bool) error {
	t.db.NoSync = !sync
	return t.tx.Commit()
}

func (t *boltTxn) rollback() error {
	return t.tx.Rollback()
}

type boltCursor struct {
	b *bolt.Bucket
}

func (c *boltCursor) search(key []byte) ([]byte, error) {
	k, v := c.b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, errNotFound
	}
	return v, nil
}

func (c *boltCursor) insert(key, value []byte) error {
	return c.b.Put(key, value)
}
