package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beyondbrewing/brewery-docstore/codec"
	"github.com/beyondbrewing/brewery-docstore/docstore"
	"github.com/beyondbrewing/brewery-docstore/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// benchConfig sizes one bench run.
type benchConfig struct {
	docs     int
	batch    int
	dbs      int
	bodySize int
}

func newBenchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Write documents into several databases in parallel and report throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := benchConfig{
				docs:     viper.GetInt("docs"),
				batch:    viper.GetInt("batch"),
				dbs:      viper.GetInt("dbs"),
				bodySize: viper.GetInt("body-size"),
			}
			if cfg.docs <= 0 || cfg.batch <= 0 || cfg.dbs <= 0 || cfg.bodySize < 0 {
				return errors.New("bench: --docs, --batch and --dbs must be positive")
			}

			start := time.Now()
			if err := a.bench(cmd.Context(), cfg); err != nil {
				return err
			}
			elapsed := time.Since(start)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "databases:    %d\n", cfg.dbs)
			fmt.Fprintf(out, "saved:        %d\n", a.stats.SavedDocs.Load())
			fmt.Fprintf(out, "failed:       %d\n", a.stats.FailedDocs.Load())
			fmt.Fprintf(out, "batches:      %d\n", a.stats.SaveBatches.Load())
			fmt.Fprintf(out, "elapsed:      %s\n", elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "docs/sec:     %.0f\n", float64(a.stats.SavedDocs.Load())/elapsed.Seconds())
			return nil
		},
	}
	cmd.Flags().Int("docs", 10000, utils.WrapString("Documents written to each database"))
	cmd.Flags().Int("batch", 100, utils.WrapString("Documents per SaveDocuments call"))
	cmd.Flags().Int("dbs", 4, utils.WrapString("Databases written in parallel"))
	cmd.Flags().Int("body-size", 256, utils.WrapString("Body size in bytes"))
	return cmd
}

// bench fills cfg.dbs databases concurrently, one goroutine per database.
func (a *app) bench(ctx context.Context, cfg benchConfig) (err error) {
	b, err := a.backend()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, b.Close()) }()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.dbs)
	for i := range cfg.dbs {
		name := fmt.Sprintf("bench-%03d.couch", i)
		g.Go(func() (err error) {
			s, err := b.open(name, docstore.FlagCreate)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.Close()) }()
			return fill(ctx, s, cfg)
		})
	}
	return g.Wait()
}

// fill writes cfg.docs documents in batches of cfg.batch and commits.
func fill(ctx context.Context, s docstore.Store, cfg benchConfig) error {
	body := bytes.Repeat([]byte{'x'}, cfg.bodySize)
	docs := make([]*docstore.Document, 0, cfg.batch)
	infos := make([]*docstore.DocInfo, 0, cfg.batch)

	for start := 0; start < cfg.docs; start += cfg.batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		docs, infos = docs[:0], infos[:0]
		for j := start; j < min(start+cfg.batch, cfg.docs); j++ {
			id := fmt.Appendf(nil, "doc-%08d", j)
			docs = append(docs, &docstore.Document{ID: id, Body: body})
			infos = append(infos, &docstore.DocInfo{ID: id, Meta: codec.Meta{RevSeq: 1}})
		}
		if err := s.SaveDocuments(docs, infos, docstore.SaveDefault); err != nil {
			return err
		}
	}
	return s.Commit()
}
