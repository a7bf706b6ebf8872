package cursorstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/beyondbrewing/brewery-docstore/docstore"
	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
)

// ErrConnBusy is returned by Conn.Close while databases are still open.
var ErrConnBusy = errors.New("cursorstore: connection has open databases")

// ErrConnClosed is returned by Conn.Open after Close.
var ErrConnClosed = errors.New("cursorstore: connection is closed")

// Conn is a connection to one engine directory. Every database opened
// through it is a table inside that directory. A Conn is safe for concurrent
// use; the databases it opens are not.
type Conn struct {
	dir    string
	opts   []docstore.Option
	cfg    *docstore.Config
	logger logger.Logger

	mu     sync.Mutex
	bolt   *boltEngine
	lsm    *lsmEngine
	open   map[*DB]struct{}
	closed bool
}

// OpenConn opens a connection rooted at dir. opts are the defaults for every
// database opened through the connection; engine-wide settings (cache size,
// write buffer, I/O layer) are taken from them when an engine first starts.
func OpenConn(dir string, opts ...docstore.Option) (*Conn, error) {
	cfg, err := docstore.NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", docstore.ErrOpenFile, dir, err)
	}
	c := &Conn{
		dir:    dir,
		opts:   opts,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "cursorstore", "dir", dir),
		open:   make(map[*DB]struct{}),
	}
	c.logger.Info("connection opened", "cache_size", cfg.CacheSize)
	return c, nil
}

// Dir returns the connection's directory.
func (c *Conn) Dir() string { return c.dir }

// Open opens the database named by filename as a table of the connection.
// The table is named after the last path element of filename. opts override
// the connection defaults for this database only; IndexLayout picks the
// table's engine.
func (c *Conn) Open(filename string, flags docstore.OpenFlags, opts ...docstore.Option) (*DB, error) {
	table := tableName(filename)
	if table == "" {
		return nil, fmt.Errorf("%w: %q: %w", docstore.ErrOpenFile, filename, docstore.ErrInvalidArgument)
	}

	cfg, err := docstore.NewConfig(append(append([]docstore.Option(nil), c.opts...), opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", docstore.ErrOpenFile, filename, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("%w: %s: %w", docstore.ErrOpenFile, filename, ErrConnClosed)
	}

	eng, err := c.engine(cfg.IndexLayout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", docstore.ErrOpenFile, filename, err)
	}

	if flags.Has(docstore.FlagCreate) && !flags.Has(docstore.FlagReadOnly) {
		err = eng.createTable(table)
	} else {
		var ok bool
		if ok, err = eng.hasTable(table); err == nil && !ok {
			err = fmt.Errorf("%w: %s", errNoTable, table)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", docstore.ErrOpenFile, filename, err)
	}

	d := &DB{
		conn:     c,
		filename: filename,
		table:    table,
		flags:    flags,
		cfg:      cfg,
		eng:      eng,
		sync:     cfg.SyncWrites(flags),
		logger:   cfg.Logger.With("component", "cursorstore", "table", table),
		metrics:  cfg.Metrics,
		scratch:  docstore.NewScratch(cfg.MetaBufferSize),
	}
	c.open[d] = struct{}{}

	d.logger.Info("database opened",
		"file", filename,
		"layout", cfg.IndexLayout.String(),
		"sync", d.sync,
	)
	return d, nil
}

// engine returns the engine for layout, starting it on first use. Must be
// called with mu held.
func (c *Conn) engine(layout docstore.IndexLayout) (engine, error) {
	switch layout {
	case docstore.LayoutBTree:
		if c.bolt == nil {
			e, err := openBolt(c.dir, c.cfg)
			if err != nil {
				return nil, err
			}
			c.bolt = e
			c.logger.Debug("btree engine started")
		}
		return c.bolt, nil
	case docstore.LayoutLSM:
		if c.lsm == nil {
			e, err := openLSM(c.dir, c.cfg)
			if err != nil {
				return nil, err
			}
			c.lsm = e
			c.logger.Debug("lsm engine started")
		}
		return c.lsm, nil
	default:
		return nil, fmt.Errorf("%w: index layout %d", docstore.ErrInvalidConfig, layout)
	}
}

func (c *Conn) release(d *DB) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.open, d)
}

// OpenDatabases returns how many databases are open on the connection.
func (c *Conn) OpenDatabases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}

// Close shuts the engines down. Every database opened through the
// connection must be closed first.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	if n := len(c.open); n > 0 {
		return fmt.Errorf("%w: %d still open", ErrConnBusy, n)
	}
	c.closed = true

	var errs []error
	if c.bolt != nil {
		errs = append(errs, c.bolt.close())
	}
	if c.lsm != nil {
		errs = append(errs, c.lsm.close())
	}
	if err := errors.Join(errs...); err != nil {
		return docstore.Translate(err)
	}
	c.logger.Info("connection closed")
	return nil
}

// tableName strips any directory from filename.
func tableName(filename string) string {
	name := filepath.Base(filepath.ToSlash(filename))
	if name == "." || name == "/" || strings.ContainsAny(name, "\x00\x01") {
		return ""
	}
	return name
}
