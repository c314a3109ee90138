package cmd

import (
	"github.com/spf13/cobra"

	"olistpipe/internal/profile"
	"olistpipe/internal/ui"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage the dbt connection profiles",
}

var profilesGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write profiles.yml for the dbt project and Elementary",
	Long: `Writes <project root>/<DBT_FOLDER_NAME>/profiles.yml with two profiles: the dbt
project profile built from the SNOWFLAKE_* variables and the "elementary" profile
built from the ELEMENTARY_* variables. Nothing is written unless every required
variable of both namespaces is set.`,
	Args: cobra.NoArgs,
	RunE: runProfilesGenerate,
}

func runProfilesGenerate(cmd *cobra.Command, args []string) error {
	path, err := profile.Generate(current.env(), current.resolved.Layout)
	if err != nil {
		return err
	}
	ui.Success(cmd.OutOrStdout(), "profiles.yml generated at %s", path)
	return nil
}

func init() {
	profilesCmd.AddCommand(profilesGenerateCmd)
	rootCmd.AddCommand(profilesCmd)
}
