package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"olistpipe/internal/observability"
	"olistpipe/pkg/errors"
)

// cronLogger adapts the pipeline logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.DebugWithFields(msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["error"] = err
	l.logger.ErrorWithFields(msg, fields)
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

// Scheduler triggers workflows on their cron schedules. A run that is still
// in progress when its next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  StepRunner
	logger  *observability.Logger
	entries map[string]cron.EntryID

	mu      sync.Mutex
	ctx     context.Context
	reports map[string]*RunReport
}

// NewScheduler creates a scheduler that runs steps with runner
func NewScheduler(runner StepRunner, logger *observability.Logger, location *time.Location) *Scheduler {
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}
	if location == nil {
		location = time.Local
	}
	cl := cronLogger{logger: logger.WithField("component", "scheduler")}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
		reports: make(map[string]*RunReport),
	}
}

// Add registers w at its schedule
func (s *Scheduler) Add(w Workflow) error {
	if w.Schedule == "" {
		return errors.ConfigError("Workflow "+w.ID+" has no schedule", "schedules."+w.ID)
	}
	if _, dup := s.entries[w.ID]; dup {
		return errors.New(errors.ErrCodeValidationFailed, "Workflow "+w.ID+" is already scheduled")
	}

	id, err := s.cron.AddFunc(w.Schedule, func() { s.trigger(w) })
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Invalid schedule for workflow "+w.ID).
			WithContext("schedule", w.Schedule)
	}
	s.entries[w.ID] = id
	return nil
}

func (s *Scheduler) trigger(w Workflow) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	report := w.Execute(ctx, s.runner, s.logger)

	s.mu.Lock()
	s.reports[w.ID] = report
	s.mu.Unlock()
}

// Next returns the next activation time of a scheduled workflow
func (s *Scheduler) Next(id string) (time.Time, bool) {
	entryID, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(entryID).Next, true
}

// LastReport returns the report of the most recent completed run of id
func (s *Scheduler) LastReport(id string) *RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[id]
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running workflows to finish. Their steps see the cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	for id := range s.entries {
		next, _ := s.Next(id)
		s.logger.InfoWithFields("Workflow scheduled", map[string]interface{}{
			"workflow": id,
			"next_run": next.Format(time.RFC3339),
		})
	}

	<-ctx.Done()
	s.logger.Info("Scheduler stopping, waiting for running workflows")
	<-s.cron.Stop().Done()
	return nil
}

// HealthCheck reports the scheduler DEGRADED while the latest run of any
// workflow has failed, and UP otherwise.
func (s *Scheduler) HealthCheck() observability.HealthCheck {
	return observability.CheckFunc{
		CheckName: "scheduler",
		Fn: func(ctx context.Context) observability.HealthResult {
			result := observability.HealthResult{
				Status:  observability.HealthStatusUp,
				Details: make(map[string]interface{}, len(s.entries)),
			}
			var failed []string
			for id := range s.entries {
				state := map[string]interface{}{"last_run": "never"}
				if next, ok := s.Next(id); ok && !next.IsZero() {
					state["next_run"] = next.Format(time.RFC3339)
				}
				if report := s.LastReport(id); report != nil {
					state["last_run"] = report.Finished.Format(time.RFC3339)
					state["succeeded"] = report.Succeeded()
					if !report.Succeeded() {
						failed = append(failed, id)
					}
				}
				result.Details[id] = state
			}
			if len(failed) > 0 {
				sort.Strings(failed)
				result.Status = observability.HealthStatusDegraded
				result.Message = fmt.Sprintf("last run failed: %s", strings.Join(failed, ", "))
			}
			return result
		},
	}
}
