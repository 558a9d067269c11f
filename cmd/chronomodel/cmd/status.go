package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that the configured database can back temporal tables",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		_, database := buildEngine(ctx)
		defer database.Close()

		var version string
		if err := database.GetPrimitive(ctx, &version, `SELECT version()`); err == nil {
			fmt.Println("server:", version)
		}
		stats := database.Stats()
		fmt.Printf("pool: %d open / %d max\n", stats.OpenConnections, stats.MaxOpenConnections)
		fmt.Println("temporal backend: ok")
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(statusCmd)
}
