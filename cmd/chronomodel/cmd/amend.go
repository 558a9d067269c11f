package cmd

import (
	"fmt"
	"os"

	"github.com/Arkanys/chronomodel/pkg/temporal"
	"github.com/Arkanys/chronomodel/pkg/temporal/history"
	"github.com/Arkanys/chronomodel/pkg/timefmt"
	"github.com/spf13/cobra"
)

var amendFlags struct {
	hid  int64
	from string
	to   string
}

var amendCmd = &cobra.Command{
	Use:   "amend <table>",
	Short: "Rewrite the validity period of one history row",
	Long: `Rewrite the validity period of a history row, identified by its hid.
Both endpoints are UTC timestamps of the form "YYYY-MM-DD HH:MM:SS[.ffffff]".
Meant for data migration.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		from, err := timefmt.Parse(amendFlags.from)
		if err != nil {
			fmt.Println("invalid --from:", err)
			os.Exit(1)
		}
		to, err := timefmt.Parse(amendFlags.to)
		if err != nil {
			fmt.Println("invalid --to:", err)
			os.Exit(1)
		}

		engine, database := buildEngine(ctx)
		defer database.Close()

		entity := temporal.NewEntity(args[0])
		if err := engine.RegisterEntities(ctx, entity); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		err = history.New(engine, entity).AmendPeriod(ctx, amendFlags.hid, from, to)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fmt.Printf("amended hid %d to [%s, %s)\n",
			amendFlags.hid, timefmt.Format(from), timefmt.Format(to))
	},
}

//nolint:gochecknoinits
func init() {
	amendCmd.Flags().Int64Var(&amendFlags.hid, "hid", 0, "history row id")
	amendCmd.Flags().StringVar(&amendFlags.from, "from", "", "new valid_from (UTC)")
	amendCmd.Flags().StringVar(&amendFlags.to, "to", "", "new valid_to (UTC)")
	_ = amendCmd.MarkFlagRequired("hid")
	_ = amendCmd.MarkFlagRequired("from")
	_ = amendCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(amendCmd)
}
