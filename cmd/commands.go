package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/beyondbrewing/brewery-docstore/codec"
	"github.com/beyondbrewing/brewery-docstore/docstore"
	"github.com/beyondbrewing/brewery-docstore/logstore"
	"github.com/beyondbrewing/brewery-docstore/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put ID BODY",
		Short: "Save one document and commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			revMeta, err := hex.DecodeString(viper.GetString("rev-meta"))
			if err != nil {
				return fmt.Errorf("--rev-meta: %w", err)
			}
			doc := &docstore.Document{ID: []byte(args[0]), Body: []byte(args[1])}
			info := &docstore.DocInfo{
				ID: doc.ID,
				Meta: codec.Meta{
					RevSeq:      viper.GetUint64("rev-seq"),
					Deleted:     viper.GetBool("deleted"),
					ContentMeta: viper.GetUint32("content-meta"),
					RevMeta:     revMeta,
				},
			}
			return a.withStore(docstore.FlagCreate, func(s docstore.Store) error {
				if err := s.SaveDocument(doc, info, docstore.SaveDefault); err != nil {
					return err
				}
				if err := s.Commit(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s seq=%d size=%d\n", doc.ID, info.DBSeq, info.Size)
				return nil
			})
		},
	}
	cmd.Flags().Uint64("rev-seq", 1, utils.WrapString("Revision sequence of the document"))
	cmd.Flags().Bool("deleted", false, utils.WrapString("Mark the document as deleted"))
	cmd.Flags().String("rev-meta", "", utils.WrapString("Revision metadata as hex"))
	cmd.Flags().Uint32("content-meta", 0, utils.WrapString("Content metadata flags"))
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Print a document's metadata and body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := docstore.ReadWithBody
			if viper.GetBool("meta-only") {
				mode = docstore.ReadMetaOnly
			}
			return a.withStore(docstore.FlagReadOnly, func(s docstore.Store) error {
				info, body, err := s.GetByID([]byte(args[0]), mode)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				printDocInfo(out, info)
				if mode == docstore.ReadWithBody {
					fmt.Fprintf(out, "body:         %s\n", body)
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("meta-only", false, utils.WrapString("Skip reading the body"))
	return cmd
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(docstore.FlagReadOnly, func(s docstore.Store) error {
				info, err := s.Info()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "file:         %s\n", info.Filename)
				fmt.Fprintf(out, "features:     %s\n", s.Features())
				fmt.Fprintf(out, "space used:   %s\n", utils.FormatBytes(info.SpaceUsed))
				fmt.Fprintf(out, "documents:    %d\n", info.DocCount)
				fmt.Fprintf(out, "deleted:      %d\n", info.DeletedCount)
				fmt.Fprintf(out, "last seq:     %d\n", info.LastSequence)
				fmt.Fprintf(out, "header pos:   %d\n", info.HeaderPosition)
				return nil
			})
		},
	}
}

func newChangesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "changes [SINCE]",
		Short: "List documents changed after a sequence",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var since uint64
			if len(args) == 1 {
				var err error
				if since, err = strconv.ParseUint(args[0], 10, 64); err != nil {
					return fmt.Errorf("SINCE: %w", err)
				}
			}
			return a.withStore(docstore.FlagReadOnly, func(s docstore.Store) error {
				out := cmd.OutOrStdout()
				return s.ChangesSince(since, func(info *docstore.DocInfo) error {
					_, err := fmt.Fprintf(out, "%d\t%s\trev=%d deleted=%t\n", info.DBSeq, info.ID, info.RevSeq, info.Deleted)
					return err
				})
			})
		},
	}
}

func newCompactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compact [TARGET]",
		Short: "Reclaim stale space, optionally writing the database to TARGET",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target string
			if len(args) == 1 && viper.GetString("engine") == logstore.Engine {
				target = filepath.Join(viper.GetString("dir"), args[0])
			}
			return a.withStore(0, func(s docstore.Store) error {
				if err := s.Compact(target); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "compacted %s\n", s.Filename())
				return nil
			})
		},
	}
}

func printDocInfo(w io.Writer, info *docstore.DocInfo) {
	fmt.Fprintf(w, "id:           %s\n", info.ID)
	fmt.Fprintf(w, "rev seq:      %d\n", info.RevSeq)
	fmt.Fprintf(w, "deleted:      %t\n", info.Deleted)
	fmt.Fprintf(w, "content meta: %#x\n", info.ContentMeta)
	fmt.Fprintf(w, "rev meta:     %x\n", info.RevMeta)
	fmt.Fprintf(w, "size:         %d\n", info.Size)
	fmt.Fprintf(w, "db seq:       %d\n", info.DBSeq)
	fmt.Fprintf(w, "position:     %d\n", info.BytePosition)
}
