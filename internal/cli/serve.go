package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docsearch/internal/ingest"
	"github.com/dshills/docsearch/internal/mcp"
	"github.com/dshills/docsearch/internal/storage"
)

func newServeCmd(r *runner) *cobra.Command {
	var (
		watchDir  string
		recursive bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol server. Requests arrive on stdin and
responses are written to stdout; logs go to stderr.

With --watch, files created or changed in the directory are ingested while
the server runs.

MCP client configuration:
  {
    "mcpServers": {
      "docsearch": {
        "command": "/path/to/docsearch",
        "args": ["serve"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.App()
			if err != nil {
				return err
			}

			app.Logger.Info("docsearch starting",
				"version", r.build.Version,
				"build_mode", storage.BuildMode,
				"driver", storage.DriverName,
				"vector_extension", storage.VectorExtensionAvailable)

			server, err := mcp.NewServer(mcp.Deps{
				Storage:  app.Storage,
				Ingest:   app.Ingest,
				Searcher: app.Searcher,
				Pipeline: app.Pipeline,
				Limits: mcp.Limits{
					SearchPerMinute: app.Config.MCP.SearchPerMinute,
					UploadsPerHour:  app.Config.MCP.UploadPerHour,
				},
				Logger: app.Logger.With("component", "mcp"),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				// stdin closing ends the session; stop the watcher with it
				defer stop()
				return server.Serve(gctx)
			})
			if watchDir != "" {
				w := app.Ingest.NewWatcher(watchDir, ingest.WatchOptions{
					Extensions: app.Config.Ingest.Extensions,
					Recursive:  recursive,
				})
				g.Go(func() error { return w.Run(gctx) })
			}

			err = g.Wait()
			app.Logger.Info("server stopped")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&watchDir, "watch", "w", "", "directory to auto-ingest while serving")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "watch subdirectories too")
	return cmd
}
