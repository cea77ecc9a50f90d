package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/searcher"
)

func newQueryCmd(r *runner) *cobra.Command {
	var (
		limit      int
		noCache    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search ingested documents",
		Long: `Embed the query, rank stored passages by cosine similarity and print one
merged excerpt per document, best match first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.App()
			if err != nil {
				return err
			}

			resp, err := app.Searcher.Search(cmd.Context(), searcher.Request{
				Query:    strings.Join(args, " "),
				Limit:    limit,
				UseCache: !noCache,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd, resp)
			}
			if len(resp.Results) == 0 {
				cmd.Println("No results found.")
				return nil
			}

			for i, res := range resp.Results {
				cmd.Printf("  [%d] %s (%.3f) document %d, passages %v\n",
					i+1, res.DocumentTitle, res.Score, res.DocumentID, res.ChunkIndices)
				for _, line := range strings.Split(res.Content, "\n") {
					cmd.Printf("      %s\n", line)
				}
				cmd.Println()
			}

			source := "searched"
			if resp.Cached {
				source = "cached"
			}
			cmd.Printf("%d results from %d passages (%s, %v)\n",
				resp.TotalResults, resp.RawHits, source, resp.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", searcher.DefaultLimit, "maximum number of documents")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the response cache")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output results as JSON")
	return cmd
}

func newEmbedCmd(r *runner) *cobra.Command {
	var dims int

	cmd := &cobra.Command{
		Use:   "embed <text>",
		Short: "Print the embedding of a text",
		Long:  `Embed a text with the configured provider and print the leading dimensions. Useful to check provider credentials.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.App()
			if err != nil {
				return err
			}

			vec, err := app.Pipeline.EmbedOne(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			stats := app.Pipeline.Stats()
			cmd.Printf("Provider:  %s/%s\n", stats.Provider, stats.Model)
			cmd.Printf("Dimension: %d\n", len(vec))

			n := dims
			if n <= 0 || n > len(vec) {
				n = len(vec)
			}
			parts := make([]string, n)
			for i := 0; i < n; i++ {
				parts[i] = strconv.FormatFloat(float64(vec[i]), 'f', 6, 32)
			}
			cmd.Printf("Vector:    [%s", strings.Join(parts, ", "))
			if n < len(vec) {
				cmd.Printf(", ... %d more", len(vec)-n)
			}
			cmd.Println("]")
			return nil
		},
	}

	cmd.Flags().IntVarP(&dims, "dims", "d", 8, "number of dimensions to print (0 prints all)")
	return cmd
}

func newHistoryCmd(r *runner) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.App()
			if err != nil {
				return err
			}

			queries, err := app.Storage.ListRecentQueries(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				cmd.Println("No queries yet.")
				return nil
			}

			for _, q := range queries {
				cmd.Printf("  %s  %s\n", q.SearchedAt.Local().Format(time.DateTime), q.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of queries to show")
	return cmd
}
