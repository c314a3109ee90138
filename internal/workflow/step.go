package workflow

import (
	"context"
	"os/exec"
	"strings"

	"olistpipe/internal/observability"
	"olistpipe/pkg/errors"
)

// Step is one external command of a workflow
type Step struct {
	Name    string
	Command []string
	Dir     string
	// Env is the complete environment of the command as KEY=VALUE pairs
	Env []string
}

// String renders the command line for logs
func (s Step) String() string {
	return strings.Join(s.Command, " ")
}

// StepRunner runs a single step to completion
type StepRunner interface {
	RunStep(ctx context.Context, step Step) error
}

// StepRunnerFunc adapts a function to StepRunner
type StepRunnerFunc func(ctx context.Context, step Step) error

func (f StepRunnerFunc) RunStep(ctx context.Context, step Step) error {
	return f(ctx, step)
}

// ExecRunner runs steps as child processes, streaming their combined output
// into the log line by line.
type ExecRunner struct {
	Logger *observability.Logger
}

// NewExecRunner creates a runner that logs through logger
func NewExecRunner(logger *observability.Logger) *ExecRunner {
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}
	return &ExecRunner{Logger: logger}
}

func (r *ExecRunner) RunStep(ctx context.Context, step Step) error {
	if len(step.Command) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "Step "+step.Name+" has no command")
	}

	cmd := exec.CommandContext(ctx, step.Command[0], step.Command[1:]...) // #nosec G204 - commands come from workflow definitions
	cmd.Dir = step.Dir
	if step.Env != nil {
		cmd.Env = step.Env
	}

	out := r.Logger.WithField("step", step.Name).Writer(observability.InfoLevel)
	defer out.Close()
	cmd.Stdout = out
	cmd.Stderr = out

	r.Logger.DebugWithFields("Running command", map[string]interface{}{
		"step":    step.Name,
		"command": step.String(),
		"dir":     step.Dir,
	})

	if err := cmd.Run(); err != nil {
		appErr := errors.Wrap(err, errors.ErrCodeStepFailed, "Command failed: "+step.String()).
			WithContext("step", step.Name)
		if exitErr, ok := err.(*exec.ExitError); ok {
			appErr.WithContext("exit_code", exitErr.ExitCode())
		}
		return appErr
	}
	return nil
}
