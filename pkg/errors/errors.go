package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "OLP1001"
	ErrCodeConnectionTimeout    ErrorCode = "OLP1002"
	ErrCodeAuthenticationFailed ErrorCode = "OLP1003"
	ErrCodeUnsupportedDriver    ErrorCode = "OLP1004"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound ErrorCode = "OLP2001"
	ErrCodeConfigInvalid  ErrorCode = "OLP2002"
	ErrCodeConfigMissing  ErrorCode = "OLP2003"

	// Warehouse errors (4xxx)
	ErrCodeSQLExecution   ErrorCode = "OLP4001"
	ErrCodeSQLPermission  ErrorCode = "OLP4002"
	ErrCodeSQLTimeout     ErrorCode = "OLP4003"
	ErrCodeSQLTransaction ErrorCode = "OLP4004"
	ErrCodeWarehouseWrite ErrorCode = "OLP4005"
	ErrCodeNoResults      ErrorCode = "OLP4006"

	// File system errors (5xxx)
	ErrCodeFileNotFound  ErrorCode = "OLP5001"
	ErrCodeFileRead      ErrorCode = "OLP5002"
	ErrCodeFileWrite     ErrorCode = "OLP5003"
	ErrCodeFileMalformed ErrorCode = "OLP5004"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "OLP6001"
	ErrCodeInvalidInput     ErrorCode = "OLP6002"
	ErrCodeUnknownTable     ErrorCode = "OLP6003"

	// Workflow errors (7xxx)
	ErrCodeStepFailed       ErrorCode = "OLP7001"
	ErrCodeWorkflowNotFound ErrorCode = "OLP7002"
	ErrCodeWorkflowBusy     ErrorCode = "OLP7003"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "OLP9001"
	ErrCodeTimeout            ErrorCode = "OLP9002"
	ErrCodeMaxRetriesExceeded ErrorCode = "OLP9003"
	ErrCodeModelTraining      ErrorCode = "OLP9004"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL"
	SeverityError    ErrorSeverity = "ERROR"
	SeverityWarning  ErrorSeverity = "WARNING"
	SeverityInfo     ErrorSeverity = "INFO"
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on error code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	var inner *AppError
	if errors.As(err, &inner) {
		for k, v := range inner.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a warehouse connection error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSuggestions(
			"Check your network connection",
			"Verify the Snowflake account identifier",
			"Check that the warehouse is running",
		)
}

// ConfigError creates a configuration error for a single field
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'olistpipe setup' to write a .env file",
		)
}

// MissingConfigError reports every missing required key at once.
func MissingConfigError(scope string, keys []string) *AppError {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return New(ErrCodeConfigMissing,
		fmt.Sprintf("Missing one or more required %s environment variables: %s", scope, strings.Join(keys, ", "))).
		WithContext("missing", sorted).
		WithSuggestions(
			"Export the variables listed above or add them to .env in the project root",
			"Run 'olistpipe setup' to write a .env file",
		)
}

// SQLError creates a warehouse SQL error
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLExecution, message)
	if err == nil {
		err = New(ErrCodeSQLExecution, message)
	}
	err.WithContext("query", truncateString(query, 200))

	text := strings.ToLower(message)
	if cause != nil {
		text += " " + strings.ToLower(cause.Error())
	}
	switch {
	case strings.Contains(text, "permission") || strings.Contains(text, "access denied") ||
		strings.Contains(text, "insufficient privileges"):
		err.Code = ErrCodeSQLPermission
		_ = err.WithSuggestions(
			"Check that the role has the required privileges",
			"Verify SNOWFLAKE_ROLE is set to the intended role",
		)
	case strings.Contains(text, "timeout"):
		err.Code = ErrCodeSQLTimeout
		_ = err.WithSuggestions(
			"Increase the warehouse size or the query timeout",
		)
	}

	return err
}

// FileError wraps a file system failure with the path involved
func FileError(code ErrorCode, message, path string, cause error) *AppError {
	err := Wrap(cause, code, message)
	if err == nil {
		err = New(code, message)
	}
	return err.WithContext("path", path)
}

// StepError reports a workflow step failure
func StepError(workflow, step string, attempts int, cause error) *AppError {
	err := Wrap(cause, ErrCodeStepFailed, fmt.Sprintf("Step %s of workflow %s failed", step, workflow))
	if err == nil {
		err = New(ErrCodeStepFailed, fmt.Sprintf("Step %s of workflow %s failed", step, workflow))
	}
	return err.
		WithContext("workflow", workflow).
		WithContext("step", step).
		WithContext("attempts", attempts)
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value)
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &AppError{Code: code})
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
