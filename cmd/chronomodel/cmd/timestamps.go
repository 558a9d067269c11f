package cmd

import (
	"fmt"
	"os"

	"github.com/Arkanys/chronomodel/pkg/temporal"
	"github.com/Arkanys/chronomodel/pkg/temporal/timeline"
	"github.com/Arkanys/chronomodel/pkg/timefmt"
	"github.com/spf13/cobra"
)

var timestampsID int64

var timestampsCmd = &cobra.Command{
	Use:   "timestamps <table>",
	Short: "List the change instants of a temporal table or one of its records",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		engine, database := buildEngine(ctx)
		defer database.Close()

		entity := temporal.NewEntity(args[0])
		var recordID *int64
		if cmd.Flags().Changed("id") {
			recordID = &timestampsID
		}
		instants, err := timeline.Timestamps(ctx, engine, entity, recordID)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		for _, t := range instants {
			fmt.Println(timefmt.Format(t))
		}
	},
}

//nolint:gochecknoinits
func init() {
	timestampsCmd.Flags().Int64Var(&timestampsID, "id", 0, "limit to one record id")
	rootCmd.AddCommand(timestampsCmd)
}
