package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/beyondbrewing/brewery-docstore/config"
	"github.com/beyondbrewing/brewery-docstore/cursorstore"
	"github.com/beyondbrewing/brewery-docstore/docstore"
	"github.com/beyondbrewing/brewery-docstore/logstore"
	"github.com/beyondbrewing/brewery-docstore/metrics"
	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
	"github.com/beyondbrewing/brewery-docstore/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	log     logger.Logger
	stats   metrics.Basic
	metrics metrics.Collector
}

func newRootCmd() *cobra.Command {
	a := &app{log: logger.Default()}
	a.metrics = &a.stats

	root := &cobra.Command{
		Use:           "docstore",
		Short:         "Store and inspect documents in a docstore database",
		Version:       config.APP_VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			utils.ImportEnv()
			if err := utils.BindCommandFlags(cmd); err != nil {
				return err
			}
			return a.setup(cmd.Context())
		},
	}

	f := root.PersistentFlags()
	f.String("engine", config.DOCSTORE_ENGINE, utils.WrapString("Storage binding: log (sequenced, log-structured) or cursor (transactional tables)"))
	f.String("dir", config.DOCSTORE_DIR, utils.WrapString("Directory holding the databases"))
	f.String("db", config.DOCSTORE_DB, utils.WrapString("Database name inside --dir"))
	f.String("layout", config.DOCSTORE_LAYOUT, utils.WrapString("Index layout of the cursor engine: btree or lsm"))
	f.Int64("cache-size", config.DOCSTORE_CACHE_SIZE, utils.WrapString("Engine cache size in bytes"))
	f.String("durability", config.DOCSTORE_DURABILITY, utils.WrapString("safe syncs every write, relaxed leaves durability to commit"))
	f.String("compaction", config.DOCSTORE_COMPACTION, utils.WrapString("Compaction mode: auto or manual"))
	f.Int("compaction-threshold", config.DOCSTORE_COMPACTION_THRESHOLD, utils.WrapString("Stale data percentage that triggers automatic compaction"))
	f.Bool("compress", config.DOCSTORE_COMPRESS, utils.WrapString("Compress document bodies (log engine only)"))
	f.String("log-level", config.DOCSTORE_LOG_LEVEL, utils.WrapString("Log level: debug, info, warn or error"))
	f.String("metrics-addr", config.DOCSTORE_METRICS_ADDR, utils.WrapString("Serve Prometheus metrics on this address while the command runs"))

	root.AddCommand(
		newPutCmd(a),
		newGetCmd(a),
		newInfoCmd(a),
		newChangesCmd(a),
		newCompactCmd(a),
		newBenchCmd(a),
	)
	return root
}

// setup applies the bound flags: log level and the optional metrics endpoint.
func (a *app) setup(ctx context.Context) error {
	log, err := logger.NewProduction(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	logger.SetDefault(log)
	a.log = log.With("app", config.APP_NAME)

	if addr := viper.GetString("metrics-addr"); addr != "" {
		p, err := a.serveMetrics(ctx, addr)
		if err != nil {
			return err
		}
		a.metrics = metrics.Fanout{&a.stats, p}
	}
	return nil
}

func (a *app) serveMetrics(ctx context.Context, addr string) (*metrics.Prometheus, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	p, err := metrics.NewPrometheus("docstore", reg)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	a.log.Info("serving metrics", "addr", ln.Addr().String())
	return p, nil
}

// options builds the store configuration from the bound flags.
func (a *app) options() ([]docstore.Option, error) {
	layout, err := docstore.ParseIndexLayout(viper.GetString("layout"))
	if err != nil {
		return nil, err
	}
	durability, err := docstore.ParseDurability(viper.GetString("durability"))
	if err != nil {
		return nil, err
	}
	mode, err := docstore.ParseCompactionMode(viper.GetString("compaction"))
	if err != nil {
		return nil, err
	}
	return []docstore.Option{
		docstore.WithCacheSize(viper.GetInt64("cache-size")),
		docstore.WithIndexLayout(layout),
		docstore.WithDurability(durability),
		docstore.WithCompaction(mode, viper.GetInt("compaction-threshold")),
		docstore.WithCompressBodies(viper.GetBool("compress")),
		docstore.WithLogger(a.log),
		docstore.WithMetrics(a.metrics),
	}, nil
}

// backend opens databases of the selected engine under one directory.
type backend struct {
	engine string
	dir    string
	opts   []docstore.Option
	conn   *cursorstore.Conn
}

func (a *app) backend() (*backend, error) {
	opts, err := a.options()
	if err != nil {
		return nil, err
	}
	b := &backend{
		engine: viper.GetString("engine"),
		dir:    viper.GetString("dir"),
		opts:   opts,
	}
	switch b.engine {
	case logstore.Engine:
	case cursorstore.Engine:
		if b.conn, err = cursorstore.OpenConn(b.dir, opts...); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown engine %q, want %s or %s", b.engine, logstore.Engine, cursorstore.Engine)
	}
	return b, nil
}

func (b *backend) open(name string, flags docstore.OpenFlags) (docstore.Store, error) {
	if b.conn != nil {
		return b.conn.Open(name, flags)
	}
	return logstore.Open(filepath.Join(b.dir, name), flags, b.opts...)
}

func (b *backend) Close() error {
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// withStore opens the --db database, runs fn and closes everything again.
func (a *app) withStore(flags docstore.OpenFlags, fn func(s docstore.Store) error) (err error) {
	b, err := a.backend()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, b.Close()) }()

	s, err := b.open(viper.GetString("db"), flags)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	return fn(s)
}
