package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"olistpipe/internal/ui"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the raw Olist tables and their source files",
	Args:  cobra.NoArgs,
	RunE:  runTables,
}

func runTables(cmd *cobra.Command, args []string) error {
	registry := current.registry()

	var rows [][]string
	for _, name := range registry.Names() {
		path, err := registry.Path(name)
		if err != nil {
			return err
		}
		status := "present"
		if _, err := os.Stat(path); err != nil {
			status = "missing"
		}
		rows = append(rows, []string{name, path, ui.Status(status)})
	}

	ui.RenderTable(cmd.OutOrStdout(), []string{"Table", "Source", "File"}, rows)
	return nil
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}
