package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/storage"
)

func newVersionCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("docsearch %s\n", r.build.Version)
			cmd.Printf("Build Time: %s\n", r.build.BuildTime)
			cmd.Printf("Build Mode: %s\n", storage.BuildMode)
			cmd.Printf("SQLite Driver: %s\n", storage.DriverName)
			cmd.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		},
	}
}
