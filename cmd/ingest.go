package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"olistpipe/internal/config"
	"olistpipe/internal/ingest"
	"olistpipe/internal/ui"
)

// rawSchemaKey names the schema raw tables land in; it overrides SNOWFLAKE_SCHEMA
const rawSchemaKey = "SNOWFLAKE_SCHEMA_RAW"

var ingestCmd = &cobra.Command{
	Use:   "ingest <table> <csv_path>",
	Short: "Load one CSV file into a raw warehouse table",
	Long: `Reads a CSV file with a header row, infers column types and replaces the
upper-cased table in the raw schema with its contents. Use "olistpipe tables" to
list the registered Olist tables, or "olistpipe ingest all" to load every one.`,
	Example: "  olistpipe ingest orders data/olist_orders_dataset.csv",
	Args:    cobra.ExactArgs(2),
	RunE:    runIngest,
}

var ingestAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Load every registered Olist table, stopping at the first failure",
	Args:  cobra.NoArgs,
	RunE:  runIngestAll,
}

func ingestTask() (*ingest.Task, error) {
	creds := current.credentials(config.PrimaryPrefix).
		WithSchema(current.env().Get(rawSchemaKey, ""))
	if err := current.requireCredentials(creds, ingest.RequiredFields...); err != nil {
		return nil, err
	}
	return ingest.NewTask(current.opener(creds), current.logger), nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	task, err := ingestTask()
	if err != nil {
		return err
	}

	report, err := task.Run(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	ui.Success(cmd.OutOrStdout(), "Loaded %d rows into %s", report.Rows, report.Target)
	return nil
}

func runIngestAll(cmd *cobra.Command, args []string) error {
	task, err := ingestTask()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	registry := current.registry()
	bar := ui.NewProgressBar(out, len(registry.Names()))
	done := 0
	task.Progress = func(table string, err error) {
		done++
		bar.Update(done, table, err == nil)
	}

	reports, err := task.RunAll(cmd.Context(), registry)
	bar.Finish("Ingestion")
	if err != nil {
		return err
	}

	rows := make([][]string, len(reports))
	for i, r := range reports {
		rows[i] = []string{r.Target, strconv.Itoa(len(r.Columns)), strconv.Itoa(r.Rows), ui.FormatDuration(r.Duration)}
	}
	fmt.Fprintln(out)
	ui.RenderTable(out, []string{"Table", "Columns", "Rows", "Duration"}, rows)
	return nil
}

func init() {
	ingestCmd.AddCommand(ingestAllCmd)
	rootCmd.AddCommand(ingestCmd)
}
