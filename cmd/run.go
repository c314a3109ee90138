package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"olistpipe/internal/ui"
	"olistpipe/internal/workflow"
)

// workflowAliases are short names accepted wherever a workflow id is
var workflowAliases = map[string]string{
	"ingest-raw": workflow.IngestRawID,
	"dbt-full":   workflow.DBTFullID,
	"ml-churn":   workflow.MLChurnID,
}

func workflowID(name string) string {
	if id, ok := workflowAliases[strings.ToLower(name)]; ok {
		return id
	}
	return name
}

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Run a workflow once, in order, with per-step retries",
	Long: `Runs every step of a workflow in order. A failing step is retried with the
configured retry policy; when it still fails, the remaining steps are skipped and
the command exits non-zero.

Workflows: ingest_raw_data (ingest-raw), dbt_full_pipeline (dbt-full),
ml_churn_training (ml-churn).`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List the workflows with their schedules and steps",
	Args:  cobra.NoArgs,
	RunE:  runWorkflows,
}

var workflowsShowSteps bool

func runWorkflow(cmd *cobra.Command, args []string) error {
	wf, err := workflow.Find(current.definitions().All(), workflowID(args[0]))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runDryRun {
		printSteps(out, wf)
		return nil
	}

	ui.Info(out, "Running %s (%d steps)", wf.ID, len(wf.Steps))
	report := wf.Execute(cmd.Context(), workflow.NewExecRunner(current.logger), current.logger)
	printRunReport(out, report)
	if !report.Succeeded() {
		return report.Err
	}
	ui.Success(out, "%s finished in %s", wf.ID, ui.FormatDuration(report.Duration()))
	return nil
}

func printRunReport(out io.Writer, report *workflow.RunReport) {
	rows := make([][]string, len(report.Steps))
	for i, step := range report.Steps {
		errText := ""
		if step.Err != nil && step.Status == workflow.StatusFailed {
			errText = firstLine(step.Err.Error())
		}
		rows[i] = []string{
			step.Name,
			ui.Status(string(step.Status)),
			strconv.Itoa(step.Attempts),
			ui.FormatDuration(step.Duration),
			errText,
		}
	}
	ui.RenderTable(out, []string{"Step", "Status", "Attempts", "Duration", "Error"}, rows)
}

func printSteps(out io.Writer, wf workflow.Workflow) {
	rows := make([][]string, len(wf.Steps))
	for i, step := range wf.Steps {
		rows[i] = []string{strconv.Itoa(i + 1), step.Name, strings.Join(step.Command, " "), step.Dir}
	}
	fmt.Fprintf(out, "%s: %s\n", ui.ColorBold(wf.ID), wf.Description)
	ui.RenderTable(out, []string{"#", "Step", "Command", "Directory"}, rows)
}

func runWorkflows(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	workflows := current.definitions().All()
	sort.SliceStable(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	rows := make([][]string, len(workflows))
	for i, wf := range workflows {
		rows[i] = []string{
			wf.ID,
			wf.Schedule,
			nextRun(wf.Schedule, time.Now()),
			strconv.Itoa(len(wf.Steps)),
			strings.Join(wf.Tags, ","),
			wf.Description,
		}
	}
	ui.RenderTable(out, []string{"Workflow", "Schedule", "Next Run", "Steps", "Tags", "Description"}, rows)

	if workflowsShowSteps {
		for _, wf := range workflows {
			fmt.Fprintln(out)
			printSteps(out, wf)
		}
	}
	return nil
}

func nextRun(schedule string, from time.Time) string {
	if schedule == "" {
		return "-"
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return "invalid"
	}
	return sched.Next(from).Format("2006-01-02 15:04 MST")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the steps without running them")
	workflowsCmd.Flags().BoolVar(&workflowsShowSteps, "steps", false, "also list the steps of every workflow")
	rootCmd.AddCommand(runCmd, workflowsCmd)
}
