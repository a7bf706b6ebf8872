package docstore

import (
	"fmt"

	"github.com/beyondbrewing/brewery-docstore/codec"
	"github.com/beyondbrewing/brewery-docstore/metrics"
	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
	"github.com/cockroachdb/pebble/vfs"
)

// CompactionMode selects who triggers compaction.
type CompactionMode int

const (
	// CompactionAuto lets the engine compact in the background and after
	// saves once stale data crosses CompactionThreshold.
	CompactionAuto CompactionMode = iota
	// CompactionManual compacts only when Compact is called.
	CompactionManual
)

func (m CompactionMode) String() string {
	switch m {
	case CompactionAuto:
		return "auto"
	case CompactionManual:
		return "manual"
	default:
		return "unknown"
	}
}

// ParseCompactionMode parses "auto" or "manual".
func ParseCompactionMode(s string) (CompactionMode, error) {
	switch s {
	case "auto":
		return CompactionAuto, nil
	case "manual":
		return CompactionManual, nil
	default:
		return 0, fmt.Errorf("%w: compaction mode %q", ErrInvalidConfig, s)
	}
}

// Durability selects whether writes are synced before they are acknowledged.
type Durability int

const (
	// DurabilitySafe syncs every write (or transaction commit).
	DurabilitySafe Durability = iota
	// DurabilityRelaxed acknowledges writes before they reach stable
	// storage; Commit makes them durable.
	DurabilityRelaxed
)

func (d Durability) String() string {
	switch d {
	case DurabilitySafe:
		return "safe"
	case DurabilityRelaxed:
		return "relaxed"
	default:
		return "unknown"
	}
}

// ParseDurability parses "safe" or "relaxed".
func ParseDurability(s string) (Durability, error) {
	switch s {
	case "safe":
		return DurabilitySafe, nil
	case "relaxed":
		return DurabilityRelaxed, nil
	default:
		return 0, fmt.Errorf("%w: durability %q", ErrInvalidConfig, s)
	}
}

// IndexLayout selects the table structure for bindings that offer a choice.
type IndexLayout int

const (
	// LayoutBTree stores each table as a B+tree.
	LayoutBTree IndexLayout = iota
	// LayoutLSM stores each table in a log-structured merge tree.
	LayoutLSM
)

func (l IndexLayout) String() string {
	switch l {
	case LayoutBTree:
		return "btree"
	case LayoutLSM:
		return "lsm"
	default:
		return "unknown"
	}
}

// ParseIndexLayout parses "btree" or "lsm".
func ParseIndexLayout(s string) (IndexLayout, error) {
	switch s {
	case "btree":
		return LayoutBTree, nil
	case "lsm":
		return LayoutLSM, nil
	default:
		return 0, fmt.Errorf("%w: index layout %q", ErrInvalidConfig, s)
	}
}

// Config holds the per-open settings of a database. Settings are read once
// at open; changing them afterwards has no effect on open handles.
type Config struct {
	// CacheSize is the engine's cache budget in bytes.
	CacheSize int64

	// CompactionMode and CompactionThreshold control compaction. The
	// threshold is the percentage of stale data that triggers an
	// automatic compaction.
	CompactionMode      CompactionMode
	CompactionThreshold int

	// WriteBufferThreshold is the in-memory write buffer size in bytes
	// after which buffered writes are flushed to the engine's files.
	WriteBufferThreshold uint64

	// Durability selects per-write sync behaviour.
	Durability Durability

	// IndexLayout chooses the table structure where the binding offers one.
	IndexLayout IndexLayout

	// FS is a pluggable I/O layer. Bindings whose engine cannot use it
	// ignore it.
	FS vfs.FS

	// MetaBufferSize is the initial capacity of metadata buffers; they
	// grow on demand.
	MetaBufferSize int

	// CompressBodies stores document bodies compressed.
	CompressBodies bool

	Logger  logger.Logger
	Metrics metrics.Collector
}

// DefaultConfig returns automatic compaction at 30% stale data, a 4 MiB
// write buffer and a 256-byte metadata buffer.
func DefaultConfig() *Config {
	return &Config{
		CacheSize:            64 << 20,
		CompactionMode:       CompactionAuto,
		CompactionThreshold:  30,
		WriteBufferThreshold: 4 << 20,
		Durability:           DurabilitySafe,
		IndexLayout:          LayoutBTree,
		MetaBufferSize:       codec.DefaultCapacity,
	}
}

// Option is a functional option applied to [Config] at open.
type Option func(*Config)

// WithCacheSize sets the cache budget in bytes.
func WithCacheSize(size int64) Option {
	return func(c *Config) { c.CacheSize = size }
}

// WithCompaction sets the compaction mode and stale-data threshold.
func WithCompaction(mode CompactionMode, thresholdPercent int) Option {
	return func(c *Config) {
		c.CompactionMode = mode
		c.CompactionThreshold = thresholdPercent
	}
}

// WithWriteBufferThreshold sets the write buffer size in bytes.
func WithWriteBufferThreshold(size uint64) Option {
	return func(c *Config) { c.WriteBufferThreshold = size }
}

// WithDurability sets the sync mode.
func WithDurability(d Durability) Option {
	return func(c *Config) { c.Durability = d }
}

// WithIndexLayout sets the table layout.
func WithIndexLayout(l IndexLayout) Option {
	return func(c *Config) { c.IndexLayout = l }
}

// WithFS sets the I/O layer.
func WithFS(fs vfs.FS) Option {
	return func(c *Config) { c.FS = fs }
}

// WithMetaBufferSize sets the initial metadata buffer capacity.
func WithMetaBufferSize(n int) Option {
	return func(c *Config) { c.MetaBufferSize = n }
}

// WithCompressBodies enables body compression.
func WithCompressBodies(v bool) Option {
	return func(c *Config) { c.CompressBodies = v }
}

// WithLogger sets the logger. If not set, logger.Default() is used.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics sets the metrics collector. If not set, metrics.Noop is used.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Config) { c.Metrics = m }
}

// NewConfig applies opts over DefaultConfig, validates the result and fills
// in the logger and metrics defaults.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}
	return cfg, nil
}

// SyncWrites reports whether writes must be synced, given the open flags.
func (c *Config) SyncWrites(flags OpenFlags) bool {
	return c.Durability == DurabilitySafe && !flags.Has(FlagNoSync)
}

func (c *Config) validate() error {
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: cache size must not be negative, got %d", ErrInvalidConfig, c.CacheSize)
	}
	if c.CompactionThreshold < 0 || c.CompactionThreshold > 100 {
		return fmt.Errorf("%w: compaction threshold must be a percentage, got %d", ErrInvalidConfig, c.CompactionThreshold)
	}
	if c.MetaBufferSize < codec.HeaderSize {
		return fmt.Errorf("%w: metadata buffer must hold at least %d bytes, got %d",
			ErrInvalidConfig, codec.HeaderSize, c.MetaBufferSize)
	}
	switch c.CompactionMode {
	case CompactionAuto, CompactionManual:
	default:
		return fmt.Errorf("%w: unknown compaction mode %d", ErrInvalidConfig, c.CompactionMode)
	}
	switch c.Durability {
	case DurabilitySafe, DurabilityRelaxed:
	default:
		return fmt.Errorf("%w: unknown durability %d", ErrInvalidConfig, c.Durability)
	}
	switch c.IndexLayout {
	case LayoutBTree, LayoutLSM:
	default:
		return fmt.Errorf("%w: unknown index layout %d", ErrInvalidConfig, c.IndexLayout)
	}
	return nil
}
