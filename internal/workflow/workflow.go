// Package workflow runs the pipeline's linear task chains and schedules them.
package workflow

import (
	"context"
	"time"

	"olistpipe/internal/observability"
	"olistpipe/pkg/errors"
)

// RetryPolicy is the per-step retry budget of a workflow
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

// Workflow is a named, scheduled, strictly ordered list of steps
type Workflow struct {
	ID          string
	Description string
	Schedule    string
	Tags        []string
	Retry       RetryPolicy
	Steps       []Step
}

// StepStatus is the outcome of one step in a run
type StepStatus string

const (
	StatusSucceeded StepStatus = "succeeded"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
)

// StepResult records how one step went
type StepResult struct {
	Name     string
	Status   StepStatus
	Attempts int
	Duration time.Duration
	Err      error
}

// RunReport is the result of executing a workflow once
type RunReport struct {
	Workflow string
	Started  time.Time
	Finished time.Time
	Steps    []StepResult
	Err      error
}

// Succeeded reports whether every step succeeded
func (r *RunReport) Succeeded() bool {
	return r.Err == nil
}

// Duration is the wall time of the run
func (r *RunReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Execute runs the steps in order. Each step is attempted up to 1+Retries
// times; the first step that still fails stops the chain and every later step
// is reported as skipped.
func (w *Workflow) Execute(ctx context.Context, runner StepRunner, logger *observability.Logger) *RunReport {
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}
	logger = logger.WithField("workflow", w.ID)

	report := &RunReport{Workflow: w.ID, Started: time.Now()}
	logger.InfoWithFields("Workflow started", map[string]interface{}{"steps": len(w.Steps)})
	running := observability.RunningWorkflows()
	running.Inc()
	defer running.Dec()

	for i, step := range w.Steps {
		if report.Err != nil {
			report.Steps = append(report.Steps, StepResult{Name: step.Name, Status: StatusSkipped})
			observability.RecordStep(w.ID, step.Name, string(StatusSkipped), 0, 0)
			continue
		}

		result := w.runStep(ctx, runner, logger, step)
		report.Steps = append(report.Steps, result)
		observability.RecordStep(w.ID, step.Name, string(result.Status), result.Attempts, result.Duration.Seconds())
		if result.Err != nil {
			report.Err = errors.StepError(w.ID, step.Name, result.Attempts, result.Err).
				WithContext("skipped", len(w.Steps)-i-1)
		}
	}

	report.Finished = time.Now()
	observability.RecordRun(w.ID, report.Succeeded(), report.Duration().Seconds())
	if report.Err != nil {
		logger.ErrorWithFields("Workflow failed", map[string]interface{}{
			"error":    report.Err,
			"duration": report.Duration().String(),
		})
	} else {
		logger.InfoWithFields("Workflow succeeded", map[string]interface{}{
			"duration": report.Duration().String(),
		})
	}
	return report
}

func (w *Workflow) runStep(ctx context.Context, runner StepRunner, logger *observability.Logger, step Step) StepResult {
	logger = logger.WithField("step", step.Name)
	start := time.Now()
	attempts := 0

	retry := errors.FixedRetryConfig(w.Retry.Retries, w.Retry.Delay)
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.WarnWithFields("Step failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err,
		})
	}

	logger.Info("Step started")
	err := errors.Retry(ctx, retry, func(ctx context.Context) error {
		attempts++
		return runner.RunStep(ctx, step)
	})

	result := StepResult{Name: step.Name, Attempts: attempts, Duration: time.Since(start)}
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		logger.ErrorWithFields("Step failed", map[string]interface{}{"attempts": attempts, "error": err})
		return result
	}

	result.Status = StatusSucceeded
	logger.InfoWithFields("Step succeeded", map[string]interface{}{
		"attempts": attempts,
		"duration": result.Duration.String(),
	})
	return result
}

// Find returns the workflow with id
func Find(workflows []Workflow, id string) (Workflow, error) {
	for _, w := range workflows {
		if w.ID == id {
			return w, nil
		}
	}
	ids := make([]string, len(workflows))
	for i, w := range workflows {
		ids[i] = w.ID
	}
	return Workflow{}, errors.New(errors.ErrCodeWorkflowNotFound, "Unknown workflow '"+id+"'").
		WithContext("available", ids)
}
