package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"

	"olistpipe/internal/common"
	"olistpipe/internal/config"
	"olistpipe/internal/ui"
	"olistpipe/pkg/errors"
)

// keyringFlagKey enables the keyring fallback for passwords
const keyringFlagKey = "OLISTPIPE_USE_KEYRING"

// setupFields is the order credentials are asked for and written in
var setupFields = []config.Field{
	config.FieldAccount, config.FieldUser, config.FieldPassword, config.FieldRole,
	config.FieldWarehouse, config.FieldDatabase, config.FieldSchema, config.FieldEnv,
}

var (
	setupFromEnv bool
	setupKeyring bool
	setupForce   bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write the project .env with Snowflake and Elementary credentials",
	Long: `Asks for the SNOWFLAKE_* and ELEMENTARY_* credentials and writes them to
<project root>/.env with owner-only permissions. Other variables already in the
file are kept. With --keyring the passwords go to the OS keyring instead of the
file. With --from-env nothing is asked and the current environment is used.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := filepath.Join(current.resolved.Root, config.DotEnvFile)

	existing := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		if !setupForce && !setupFromEnv {
			overwrite := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("%s already exists. Update its credentials?", path),
				Default: false,
			}
			if err := survey.AskOne(prompt, &overwrite); err != nil {
				return err
			}
			if !overwrite {
				ui.Info(out, "Setup cancelled")
				return nil
			}
		}
		env, err := gotenv.Read(path)
		if err != nil {
			return errors.FileError(errors.ErrCodeFileMalformed, "Failed to parse .env file", path, err)
		}
		existing = env
	}

	var values map[string]string
	var err error
	if setupFromEnv {
		values, err = credentialsFromEnv(current.env())
	} else {
		ui.Header(out, "olistpipe setup")
		values, err = askCredentials(current.env())
	}
	if err != nil {
		return err
	}

	if setupKeyring {
		for _, prefix := range []string{config.PrimaryPrefix, config.QualityPrefix} {
			key := config.Key(prefix, config.FieldPassword)
			if err := config.StoreSecret(key, values[key]); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "Failed to store password in the OS keyring").
					WithContext("key", key)
			}
			delete(values, key)
			delete(existing, key)
		}
		values[keyringFlagKey] = "true"
	}

	for k, v := range values {
		existing[k] = v
	}
	if err := common.WriteFile(path, renderDotEnv(existing), common.FilePermissionSecure); err != nil {
		return errors.FileError(errors.ErrCodeFileWrite, "Failed to write .env file", path, err)
	}

	ui.Success(out, "Credentials saved to %s", path)
	if setupKeyring {
		ui.Info(out, "Passwords are stored in the OS keyring under service %q", config.KeyringService)
	}
	ui.Info(out, "Next: olistpipe check, then olistpipe profiles generate")
	return nil
}

// credentialsFromEnv copies both namespaces from env, failing on any missing key
func credentialsFromEnv(env config.Environment) (map[string]string, error) {
	values := map[string]string{}
	var missing []string
	for _, prefix := range []string{config.PrimaryPrefix, config.QualityPrefix} {
		creds, miss := config.LoadCredentials(env, prefix)
		missing = append(missing, miss...)
		for _, f := range setupFields {
			if v := creds.Value(f); v != "" {
				values[config.Key(prefix, f)] = v
			}
		}
	}
	if len(missing) > 0 {
		return nil, errors.MissingConfigError("Snowflake and Elementary", missing)
	}
	return values, nil
}

func askCredentials(env config.Environment) (map[string]string, error) {
	values := map[string]string{}
	for _, prefix := range []string{config.PrimaryPrefix, config.QualityPrefix} {
		title := "Snowflake"
		if prefix == config.QualityPrefix {
			title = "Elementary (data quality)"
		}
		fmt.Printf("\n%s\n%s\n", ui.ColorBold(title+" connection"), strings.Repeat("-", len(title)+11))

		for _, f := range setupFields {
			key := config.Key(prefix, f)
			var prompt survey.Prompt
			if f == config.FieldPassword {
				prompt = &survey.Password{Message: key + ":"}
			} else {
				prompt = &survey.Input{Message: key + ":", Default: env.Get(key, "")}
			}

			var opts []survey.AskOpt
			if f != config.FieldRole {
				opts = append(opts, survey.WithValidator(survey.Required))
			}
			var answer string
			if err := survey.AskOne(prompt, &answer, opts...); err != nil {
				return nil, err
			}
			if answer = strings.TrimSpace(answer); answer != "" {
				values[key] = answer
			}
		}
	}

	if !setupKeyring {
		prompt := &survey.Confirm{
			Message: "Store the passwords in the OS keyring instead of .env?",
			Default: false,
		}
		if err := survey.AskOne(prompt, &setupKeyring); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// renderDotEnv writes credential keys first, in prompt order, then every other key sorted
func renderDotEnv(values map[string]string) []byte {
	var ordered []string
	seen := map[string]bool{}
	for _, prefix := range []string{config.PrimaryPrefix, config.QualityPrefix} {
		for _, f := range setupFields {
			key := config.Key(prefix, f)
			if _, ok := values[key]; ok {
				ordered = append(ordered, key)
				seen[key] = true
			}
		}
	}
	var rest []string
	for k := range values {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	var b strings.Builder
	for _, k := range ordered {
		fmt.Fprintf(&b, "%s=%s\n", k, quoteEnvValue(values[k]))
	}
	return []byte(b.String())
}

func quoteEnvValue(v string) string {
	if v == "" || strings.ContainsAny(v, " \t#\"'\\$\n") {
		return strconv.Quote(v)
	}
	return v
}

func init() {
	setupCmd.Flags().BoolVar(&setupFromEnv, "from-env", false, "take credentials from the environment without prompting")
	setupCmd.Flags().BoolVar(&setupKeyring, "keyring", false, "store passwords in the OS keyring")
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "update an existing .env without asking")
	rootCmd.AddCommand(setupCmd)
}
