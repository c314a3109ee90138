package cmd

import (
	"github.com/spf13/cobra"

	"olistpipe/internal/seed"
	"olistpipe/internal/ui"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate dbt seed files",
}

var seedDatesCmd = &cobra.Command{
	Use:         "dates <start_date> <end_date> <output_path>",
	Short:       "Generate the calendar dimension between two dates, inclusive",
	Example:     "  olistpipe seed dates 2016-01-01 2018-12-31 olist_elt_pipeline/seeds/dim_dates.csv",
	Args:        cobra.ExactArgs(3),
	Annotations: map[string]string{skipInit: "true"},
	RunE:        runSeedDates,
}

func runSeedDates(cmd *cobra.Command, args []string) error {
	start, err := seed.ParseDate(args[0])
	if err != nil {
		return err
	}
	end, err := seed.ParseDate(args[1])
	if err != nil {
		return err
	}

	rows := seed.Generate(start, end)
	if len(rows) == 0 {
		ui.Warning(cmd.ErrOrStderr(), "end date %s is before start date %s; writing header only", args[1], args[0])
	}
	if err := seed.WriteFile(args[2], rows); err != nil {
		return err
	}
	ui.Success(cmd.OutOrStdout(), "Date dimension generated: %s (%d days)", args[2], len(rows))
	return nil
}

func init() {
	seedCmd.AddCommand(seedDatesCmd)
	rootCmd.AddCommand(seedCmd)
}
