package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bookbridge/core/internal/database"
	"github.com/bookbridge/core/internal/modules/library/book"
	"github.com/bookbridge/core/internal/modules/reading/audiopath"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/modules/reading/precompute"
	"github.com/bookbridge/core/internal/pkg/taskqueue"
)

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newIngestCmd(e *env) *cobra.Command {
	var title, author, format string
	cmd := &cobra.Command{
		Use:   "ingest <book-id> <file>",
		Short: "Chunk a text or Markdown file into the catalog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if format == "" && strings.EqualFold(filepath.Ext(args[1]), ".md") {
				format = book.FormatMarkdown
			}
			if title == "" {
				title = args[0]
			}
			p, err := e.pipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			b, err := p.Books.Ingest(cmd.Context(), book.IngestDTO{
				ID:     args[0],
				Title:  title,
				Author: author,
				Text:   string(text),
				Format: format,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, b)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Book title (defaults to the id)")
	cmd.Flags().StringVar(&author, "author", "", "Book author")
	cmd.Flags().StringVar(&format, "format", "", "plain or markdown (inferred from a .md extension)")
	return cmd
}

func newPrecomputeCmd(e *env) *cobra.Command {
	var levels, voice string
	var withAudio bool
	cmd := &cobra.Command{
		Use:   "precompute <book-id>",
		Short: "Generate simplifications (and optionally audio) for every chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lv, err := cefr.ParseList(levels)
			if err != nil {
				return err
			}
			p, err := e.pipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.ErrOrStderr()
			report, err := p.Precompute.Run(cmd.Context(), precompute.Job{
				BookID:  args[0],
				Levels:  lv,
				VoiceID: voice,
				Audio:   withAudio,
			}, func(pr taskqueue.Progress) {
				fmt.Fprintf(out, "\r%d/%d done, %d failed", pr.Done+pr.Failed, pr.Total, pr.Failed)
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d units failed", report.Failed, report.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&levels, "levels", "", "Comma separated CEFR levels (default all)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice id (default from config)")
	cmd.Flags().BoolVar(&withAudio, "audio", false, "Also synthesize audio")
	return cmd
}

func newAuditCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "audit-paths",
		Short: "Recompute every stored audio path and check they are unique",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.Connect(e.cfg, false)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			report, err := audiopath.NewRegistry(db, e.log).Audit(cmd.Context())
			if report != nil {
				if perr := printJSON(cmd, report); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}
			if n := len(report.Mismatches); n > 0 {
				return fmt.Errorf("%d stored paths differ from the computed layout", n)
			}
			return nil
		},
	}
}

func newInvalidateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached simplifications",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "book <book-id>",
			Short: "Drop every level of every chunk of a book",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := e.pipeline()
				if err != nil {
					return err
				}
				defer p.Close()
				n, err := p.Cache.InvalidateBook(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d simplifications\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "chunk <book-id> <index> <level>",
			Short: "Drop one cached simplification",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				index, err := strconv.Atoi(args[1])
				if err != nil || index < 0 {
					return errors.New("index must be a non-negative integer")
				}
				level, err := cefr.Parse(args[2])
				if err != nil {
					return err
				}
				p, err := e.pipeline()
				if err != nil {
					return err
				}
				defer p.Close()
				deleted, err := p.Delivery.InvalidateSimplification(cmd.Context(), args[0], index, level)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted: %t\n", deleted)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stale",
			Short: "Drop simplifications written by another model or prompt version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				p, err := e.pipeline()
				if err != nil {
					return err
				}
				defer p.Close()
				n, err := p.Cache.InvalidateStale(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale simplifications (current %s)\n", n, p.Cache.Version())
				return nil
			},
		},
	)
	return cmd
}
