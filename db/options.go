package db

import (
	"runtime"

	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
	"github.com/cockroachdb/pebble/vfs"
)

// Config holds all tunable parameters for a [PebbleDB] instance.
// Use functional [Option] values with [Open] rather than constructing
// a Config directly.
type Config struct {
	// ColumnFamilies lists logical column families to register at open.
	// More can be added later with CreateColumnFamily. The
	// [DefaultColumnFamily] ("default") is always included automatically.
	ColumnFamilies []string

	// --- Performance Tuning ---

	// CacheSize is the shared block-cache capacity in bytes.
	CacheSize int64

	// MemTableSize is the size of a single memtable in bytes. It is the
	// write-buffer threshold: once exceeded the memtable is flushed.
	MemTableSize uint64

	// MaxConcurrentCompactions controls parallelism for background
	// compactions.
	MaxConcurrentCompactions int

	// MaxOpenFiles limits the number of open file descriptors Pebble
	// keeps open. Use 0 for unlimited.
	MaxOpenFiles int

	// L0CompactionThreshold is the number of L0 sub-levels that trigger
	// a compaction into L1.
	L0CompactionThreshold int

	// L0StopWritesThreshold is the hard limit on L0 sub-levels.
	L0StopWritesThreshold int

	// LBaseMaxBytes is the maximum total size of the base level (L1).
	LBaseMaxBytes int64

	// DisableAutomaticCompactions leaves compaction entirely to explicit
	// Compact calls.
	DisableAutomaticCompactions bool

	// WALDir overrides the WAL directory. Leave empty to co-locate WAL
	// files with the database.
	WALDir string

	// SyncWrites controls whether each write is synced to stable storage.
	// The WAL is still flushed on SyncWAL, Flush and Close regardless.
	SyncWrites bool

	// ReadOnly opens the database without write access.
	ReadOnly bool

	// ErrorIfNotExists makes Open fail instead of creating a new database.
	ErrorIfNotExists bool

	// FS is the filesystem Pebble reads and writes through. nil means the
	// OS filesystem; vfs.NewMem() gives a fully in-memory database.
	FS vfs.FS

	// Logger receives structured operational log messages, including
	// Pebble's own diagnostics. If not set, logger.Default() is used.
	Logger logger.Logger
}

// DefaultConfig returns a Config with defaults suited to document workloads:
// point lookups and small, frequent batches.
func DefaultConfig() *Config {
	return &Config{
		CacheSize:                64 << 20, // 64 MB
		MemTableSize:             4 << 20,  // 4 MB
		MaxConcurrentCompactions: runtime.NumCPU(),
		MaxOpenFiles:             0, // unlimited
		L0CompactionThreshold:    4,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20, // 64 MB
	}
}

// Option is a functional option applied to [Config] during [Open].
type Option func(*Config)

// WithColumnFamilies registers logical column families.
// The [DefaultColumnFamily] ("default") is always present regardless.
func WithColumnFamilies(cfs ...string) Option {
	return func(c *Config) { c.ColumnFamilies = cfs }
}

// WithCacheSize sets the shared block-cache capacity in bytes.
func WithCacheSize(size int64) Option {
	return func(c *Config) { c.CacheSize = size }
}

// WithMemTableSize sets the memtable size in bytes.
func WithMemTableSize(size uint64) Option {
	return func(c *Config) { c.MemTableSize = size }
}

// WithMaxConcurrentCompactions sets background compaction parallelism.
func WithMaxConcurrentCompactions(n int) Option {
	return func(c *Config) { c.MaxConcurrentCompactions = n }
}

// WithMaxOpenFiles limits the number of open file descriptors.
// Use 0 for unlimited.
func WithMaxOpenFiles(n int) Option {
	return func(c *Config) { c.MaxOpenFiles = n }
}

// WithL0CompactionThreshold sets the L0 sub-level compaction trigger.
func WithL0CompactionThreshold(n int) Option {
	return func(c *Config) { c.L0CompactionThreshold = n }
}

// WithL0StopWritesThreshold sets the L0 write-stall limit.
func WithL0StopWritesThreshold(n int) Option {
	return func(c *Config) { c.L0StopWritesThreshold = n }
}

// WithLBaseMaxBytes sets the max size of the base compaction level.
func WithLBaseMaxBytes(size int64) Option {
	return func(c *Config) { c.LBaseMaxBytes = size }
}

// WithAutomaticCompactions enables or disables Pebble's background
// compactions.
func WithAutomaticCompactions(enabled bool) Option {
	return func(c *Config) { c.DisableAutomaticCompactions = !enabled }
}

// WithWALDir sets a separate directory for write-ahead log files.
func WithWALDir(dir string) Option {
	return func(c *Config) { c.WALDir = dir }
}

// WithSyncWrites enables per-write durability (fsync).
func WithSyncWrites(sync bool) Option {
	return func(c *Config) { c.SyncWrites = sync }
}

// WithReadOnly opens the database read-only.
func WithReadOnly(ro bool) Option {
	return func(c *Config) { c.ReadOnly = ro }
}

// WithErrorIfNotExists refuses to create a missing database.
func WithErrorIfNotExists(v bool) Option {
	return func(c *Config) { c.ErrorIfNotExists = v }
}

// WithFS sets the filesystem implementation.
func WithFS(fs vfs.FS) Option {
	return func(c *Config) { c.FS = fs }
}

// WithLogger sets a custom logger for the database.
// If not set, the global logger.Default() is used.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
