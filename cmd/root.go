package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"olistpipe/internal/ui"
	"olistpipe/pkg/errors"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool

	rootCmd = &cobra.Command{
		Use:   "olistpipe",
		Short: "Olist e-commerce ELT, data quality and churn pipeline",
		Long: `olistpipe loads the Olist e-commerce CSV exports into Snowflake, runs the dbt
transformation and Elementary data quality chain, and trains the customer churn
model. Workflows run once with "olistpipe run" or on their schedules with
"olistpipe serve".`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initApp,
	}
)

// Execute runs the command line and exits non-zero on any error
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		ui.Error(rootCmd.ErrOrStderr(), err)
		os.Exit(errors.ExitCode(err))
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "settings file (default <project root>/olistpipe.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "", "log format: console or json")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
}
