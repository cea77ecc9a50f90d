package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/ingest"
)

func newUploadCmd(r *runner) *cobra.Command {
	var (
		title string
		text  string
	)

	cmd := &cobra.Command{
		Use:   "upload [file]",
		Short: "Ingest one document",
		Long: `Ingest a document from a file or from --text. The title defaults to the
file name.

Examples:
  docsearch upload notes/refunds.md
  docsearch upload --title "Refund policy" --text "Refunds are issued within 14 days."`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 1 && text != "":
				return errors.New("pass either a file or --text, not both")
			case len(args) == 1:
				content, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read file: %w", err)
				}
				text = string(content)
				if title == "" {
					title = filepath.Base(args[0])
				}
			case text == "":
				return errors.New("a file or --text is required")
			case title == "":
				return errors.New("--title is required with --text")
			}

			app, err := r.App()
			if err != nil {
				return err
			}

			res, err := app.Ingest.Ingest(cmd.Context(), title, text)
			var partial *ingest.PartialIngestError
			if err != nil && !errors.As(err, &partial) {
				return err
			}

			cmd.Printf("Ingested %q as document %d (%d passages", res.Title, res.DocumentID, res.Passages)
			if res.Failed > 0 {
				cmd.Printf(", %d failed", res.Failed)
			}
			cmd.Printf(") in %v\n", res.Duration.Round(time.Millisecond))
			if partial != nil {
				for _, item := range partial.Items {
					cmd.Printf("  %v\n", item)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "document title")
	cmd.Flags().StringVar(&text, "text", "", "document text")
	return cmd
}

func newIngestDirCmd(r *runner) *cobra.Command {
	var (
		opts       ingest.DirectoryOptions
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ingest-dir <directory>",
		Short: "Ingest every text file of a directory",
		Long: `Ingest every matching file of a directory, one document per file titled
with the file name. Hidden files and directories are skipped.

Examples:
  docsearch ingest-dir ./docs --recursive
  docsearch ingest-dir ./docs -r --ext .txt,.md,.rst --include "guides/**"
  docsearch ingest-dir ./docs --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.App()
			if err != nil {
				return err
			}
			if len(opts.Extensions) == 0 {
				opts.Extensions = app.Config.Ingest.Extensions
			}
			if opts.Workers == 0 {
				opts.Workers = app.Config.Ingest.Workers
			}

			report, err := app.Ingest.IngestDirectory(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd, report)
			}

			verb := "Ingested"
			if report.DryRun {
				verb = "Would ingest"
			}
			for _, f := range report.Files {
				switch {
				case report.DryRun:
					cmd.Printf("  %s\n", f.Path)
				case f.Error != "":
					cmd.Printf("  FAIL %s: %s\n", f.Path, f.Error)
				default:
					cmd.Printf("  ok   %s -> document %d (%d passages)\n", f.Path, f.DocumentID, f.Passages)
				}
			}
			if report.DryRun {
				cmd.Printf("%s %d files\n", verb, len(report.Files))
				return nil
			}
			cmd.Printf("%s %d files (%d partial, %d failed) in %v\n",
				verb, report.Ingested, report.Partial, report.Failed, report.Duration.Round(time.Millisecond))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&opts.Extensions, "ext", nil, "file extensions to ingest (default from config: .txt,.md)")
	flags.StringVar(&opts.Include, "include", "", "glob pattern for relative paths, e.g. 'guides/**'")
	flags.BoolVarP(&opts.Recursive, "recursive", "r", false, "descend into subdirectories")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "list matching files without ingesting")
	flags.IntVar(&opts.Workers, "workers", 0, "documents ingested concurrently (default from config)")
	flags.BoolVar(&jsonOutput, "json", false, "output the report as JSON")
	return cmd
}

func newWatchCmd(r *runner) *cobra.Command {
	var (
		recursive bool
		debounce  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Ingest files as they are created or changed",
		Long: `Watch a directory and ingest text files when they are created or modified.
A modified file replaces the document ingested from its previous version.
Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.App()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := app.Ingest.NewWatcher(args[0], ingest.WatchOptions{
				Extensions: app.Config.Ingest.Extensions,
				Recursive:  recursive,
				Debounce:   debounce,
			}, ingest.WithIngestHook(func(path string, res *ingest.Result, err error) {
				if res == nil {
					cmd.Printf("FAIL %s: %v\n", path, err)
					return
				}
				cmd.Printf("ok   %s -> document %d (%d passages)\n", path, res.DocumentID, res.Passages)
			}))

			cmd.Printf("Watching %s (Ctrl-C to stop)\n", args[0])
			return w.Run(ctx)
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "watch subdirectories too")
	cmd.Flags().DurationVar(&debounce, "debounce", ingest.DefaultDebounce, "quiet period before a changed file is ingested")
	return cmd
}

func newListCmd(r *runner) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.App()
			if err != nil {
				return err
			}

			docs, err := app.Storage.ListDocuments(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}

			if jsonOutput {
				return printJSON(cmd, docs)
			}
			if len(docs) == 0 {
				cmd.Println("No documents ingested.")
				return nil
			}

			for _, d := range docs {
				cmd.Printf("  [%d] %s\n", d.ID, d.Title)
				cmd.Printf("      %d passages, ingested %s\n", d.PassageCount, d.CreatedAt.Format(time.RFC3339))
			}
			cmd.Printf("\nTotal: %d documents\n", len(docs))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newDeleteCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its passages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid document id %q", args[0])
			}

			app, err := r.App()
			if err != nil {
				return err
			}

			if err := app.Ingest.Delete(cmd.Context(), id); err != nil {
				return err
			}
			cmd.Printf("Deleted document %d\n", id)
			return nil
		},
	}
}

func newStatusCmd(r *runner) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store statistics and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			status, err := app.Storage.GetStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			cacheErr := app.Searcher.PingCache(ctx)
			stats := app.Pipeline.Stats()

			if jsonOutput {
				return printJSON(cmd, map[string]any{
					"documents":      status.DocumentsCount,
					"passages":       status.PassagesCount,
					"queries":        status.QueriesCount,
					"size_mb":        status.SizeMB,
					"schema_version": status.SchemaVersion,
					"database_ok":    status.Health.DatabaseAccessible,
					"cache_ok":       cacheErr == nil,
					"embedder":       stats,
				})
			}

			cmd.Printf("Documents:   %d\n", status.DocumentsCount)
			cmd.Printf("Passages:    %d\n", status.PassagesCount)
			cmd.Printf("Queries:     %d\n", status.QueriesCount)
			cmd.Printf("Size:        %.2f MB\n", status.SizeMB)
			cmd.Printf("Schema:      %s\n", status.SchemaVersion)
			if !status.LastIngestedAt.IsZero() {
				cmd.Printf("Last ingest: %s\n", status.LastIngestedAt.Format(time.RFC3339))
			}
			cmd.Printf("Embedder:    %s/%s\n", stats.Provider, stats.Model)
			cmd.Printf("Database:    %s\n", health(status.Health.DatabaseAccessible, nil))
			cmd.Printf("Cache:       %s (%s)\n", health(cacheErr == nil, cacheErr), app.Config.Cache.Backend)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func health(ok bool, err error) string {
	if ok {
		return "ok"
	}
	if err != nil {
		return "unavailable: " + err.Error()
	}
	return "unavailable"
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
