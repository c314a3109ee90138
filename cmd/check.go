package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"olistpipe/internal/config"
	"olistpipe/internal/snowflake"
	"olistpipe/internal/ui"
	"olistpipe/internal/warehouse"
)

var checkQuality bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the warehouse connection and report the session context",
	Long: `Connects with the SNOWFLAKE_* credentials (or ELEMENTARY_* with --quality) and
prints the role, warehouse, database and schema of the session. With the sqlite
driver it opens the local warehouse file instead.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	settings := current.settings.Warehouse

	if settings.Driver == "sqlite" {
		session, err := warehouse.OpenSQLite(cmd.Context(), settings.SQLitePath, settings.BatchSize)
		if err != nil {
			return err
		}
		defer session.Close()

		result, err := session.Query(cmd.Context(), "SELECT sqlite_version()")
		if err != nil {
			return err
		}
		ui.KeyValues(out, [][2]string{
			{"driver", "sqlite"},
			{"path", settings.SQLitePath},
			{"version", fmt.Sprint(result.Rows[0][0])},
		})
		ui.Success(out, "Local warehouse is reachable")
		return nil
	}

	prefix := config.PrimaryPrefix
	if checkQuality {
		prefix = config.QualityPrefix
	}
	creds := current.credentials(prefix)
	if err := current.requireCredentials(creds, config.WarehouseFields...); err != nil {
		return err
	}

	service := snowflake.NewService(snowflake.ConfigFromCredentials(creds, settings))
	defer service.Close()

	if err := service.TestConnection(cmd.Context()); err != nil {
		return err
	}
	info, err := service.SessionContext(cmd.Context())
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := [][2]string{{"account", creds.Account}, {"user", creds.User}}
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, info[k]})
	}
	ui.KeyValues(out, pairs)
	ui.Success(out, "Connected to Snowflake as %s", creds.User)
	return nil
}

func init() {
	checkCmd.Flags().BoolVar(&checkQuality, "quality", false, "check the ELEMENTARY_* credentials instead")
	rootCmd.AddCommand(checkCmd)
}
