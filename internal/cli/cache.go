package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/ratelimit"
)

func newCacheCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the search response cache",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cache key counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.App()
			if err != nil {
				return err
			}

			s, err := app.Searcher.CacheStats(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Backend:         %s\n", app.Config.Cache.Backend)
			cmd.Printf("Total keys:      %d\n", s.TotalKeys)
			cmd.Printf("Search results:  %d\n", s.SearchKeys)
			cmd.Printf("Tag sets:        %d\n", s.TaggedKeys)
			return nil
		},
	}

	var rateLimits bool
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached search responses",
		Long: `Remove every cached search response. With --rate-limits the provider
admission counters are reset too, so a throttled process can resume at once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			removed, err := app.Searcher.ClearCache(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Removed %d cached responses\n", removed)

			if rateLimits {
				n, err := app.Cache.InvalidateByPattern(ctx, ratelimit.KeyPrefix+"*")
				if err != nil {
					return err
				}
				cmd.Printf("Reset %d rate limit counters\n", n)
			}
			return nil
		},
	}
	clear.Flags().BoolVar(&rateLimits, "rate-limits", false, "also reset provider rate limit counters")

	cmd.AddCommand(stats, clear)
	return cmd
}
