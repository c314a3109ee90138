package cmd

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"olistpipe/internal/observability"
	"olistpipe/internal/ui"
	"olistpipe/internal/workflow"
	"olistpipe/pkg/errors"
)

var (
	serveWorkflows []string
	serveListen    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workflows on their schedules until interrupted",
	Long: `Starts the scheduler. Each workflow runs at its cron schedule (settings key
schedules.<workflow>); a run still in progress when the next tick fires makes
that tick be skipped. On interrupt the scheduler waits for running steps, which
receive the cancellation.

With --listen, /metrics (Prometheus text format) and /healthz are served on
that address while the scheduler runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	workflows := current.definitions().All()
	if len(serveWorkflows) > 0 {
		selected := make([]workflow.Workflow, 0, len(serveWorkflows))
		for _, name := range serveWorkflows {
			wf, err := workflow.Find(workflows, workflowID(name))
			if err != nil {
				return err
			}
			selected = append(selected, wf)
		}
		workflows = selected
	}

	if len(workflows) == 0 {
		return errors.New(errors.ErrCodeWorkflowNotFound, "No workflows to schedule")
	}

	scheduler := workflow.NewScheduler(workflow.NewExecRunner(current.logger), current.logger, time.Local)
	for _, wf := range workflows {
		if err := scheduler.Add(wf); err != nil {
			return err
		}
	}

	if serveListen != "" {
		health := observability.NewHealthManager(5*time.Second, current.logger)
		health.RegisterCheck(scheduler.HealthCheck())

		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.GetDefaultRegistry().MetricsHandler())
		mux.Handle("/healthz", health.HealthHandler())
		server := &http.Server{Addr: serveListen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		listener, err := net.Listen("tcp", serveListen)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to listen on "+serveListen)
		}
		go func() {
			if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
				current.logger.ErrorWithFields("Metrics server stopped", map[string]interface{}{"error": err})
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		}()
		ui.Info(cmd.OutOrStdout(), "Serving /metrics and /healthz on %s", listener.Addr())
	}

	ui.Info(cmd.OutOrStdout(), "Scheduler started with %d workflows; press Ctrl+C to stop", len(workflows))
	return scheduler.Run(cmd.Context())
}

func init() {
	serveCmd.Flags().StringSliceVar(&serveWorkflows, "workflow", nil, "only schedule these workflows (repeatable)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "address for the /metrics and /healthz endpoints, e.g. :9464")
	rootCmd.AddCommand(serveCmd)
}
