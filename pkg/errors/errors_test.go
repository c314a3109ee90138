package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(ErrCodeConnectionFailed, "Connection failed"),
			expected: "[OLP1001] ERROR: Connection failed",
		},
		{
			name: "error with suggestions",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithSuggestions("Check network", "Verify credentials"),
			expected: "[OLP1001] ERROR: Connection failed\nSuggestions:\n  1. Check network\n  2. Verify credentials",
		},
		{
			name: "error with context",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithContext("account", "xy12345").
				WithContext("port", 443),
			expected: "[OLP1001] ERROR: Connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("database connection refused")

	appErr := Wrap(baseErr, ErrCodeConnectionFailed, "Failed to connect to Snowflake")

	if appErr.Cause != baseErr {
		t.Error("Wrapped error should contain original error as cause")
	}
	if appErr.Code != ErrCodeConnectionFailed {
		t.Errorf("Expected code %s, got %s", ErrCodeConnectionFailed, appErr.Code)
	}
	if Wrap(nil, ErrCodeInternal, "nothing") != nil {
		t.Error("Wrapping nil should yield nil")
	}

	outer := Wrap(New(ErrCodeFileRead, "inner").WithContext("path", "/tmp/x.csv"), ErrCodeStepFailed, "outer")
	if outer.Context["path"] != "/tmp/x.csv" {
		t.Errorf("Expected inner context to be inherited, got %v", outer.Context)
	}
	if !HasCode(outer, ErrCodeFileRead) {
		t.Error("Expected inner code to be found in chain")
	}
}

func TestMissingConfigError(t *testing.T) {
	err := MissingConfigError("Snowflake", []string{"SNOWFLAKE_USER", "SNOWFLAKE_ACCOUNT"})

	if err.Code != ErrCodeConfigMissing {
		t.Errorf("Expected code %s, got %s", ErrCodeConfigMissing, err.Code)
	}
	if !strings.Contains(err.Message, "SNOWFLAKE_USER, SNOWFLAKE_ACCOUNT") {
		t.Errorf("Expected message to list keys in order, got %q", err.Message)
	}
	missing, _ := err.Context["missing"].([]string)
	if len(missing) != 2 || missing[0] != "SNOWFLAKE_ACCOUNT" {
		t.Errorf("Expected sorted missing keys in context, got %v", missing)
	}
}

func TestSQLErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		code  ErrorCode
	}{
		{"generic", fmt.Errorf("syntax error line 1"), ErrCodeSQLExecution},
		{"permission", fmt.Errorf("Insufficient privileges to operate on schema"), ErrCodeSQLPermission},
		{"timeout", fmt.Errorf("statement timeout reached"), ErrCodeSQLTimeout},
		{"nil cause", nil, ErrCodeSQLExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SQLError("Failed to write table", "INSERT INTO X VALUES (1)", tt.cause)
			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}
			if err.Context["query"] != "INSERT INTO X VALUES (1)" {
				t.Errorf("Expected query context, got %v", err.Context["query"])
			}
		})
	}
}

func TestRetryLogic(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	config := &RetryConfig{
		MaxRetries:   maxAttempts - 1,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
		RetryableError: func(err error) bool {
			return true
		},
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		if attempts < maxAttempts {
			return New(ErrCodeConnectionTimeout, "Timeout").AsRecoverable()
		}
		return nil
	})

	if err != nil {
		t.Error("Expected retry to succeed")
	}
	if attempts != maxAttempts {
		t.Errorf("Expected %d attempts, got %d", maxAttempts, attempts)
	}
}

func TestFixedRetryExhausted(t *testing.T) {
	attempts := 0
	var retried []int

	config := FixedRetryConfig(2, 0)
	config.OnRetry = func(attempt int, delay time.Duration, err error) {
		retried = append(retried, attempt)
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("exit status 2")
	})

	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if GetErrorCode(err) != ErrCodeMaxRetriesExceeded {
		t.Errorf("Expected code %s, got %s", ErrCodeMaxRetriesExceeded, GetErrorCode(err))
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("Expected OnRetry for attempts 1 and 2, got %v", retried)
	}
}

func TestRetryNonRetryable(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return New(ErrCodeConfigMissing, "missing")
	})

	if attempts != 1 {
		t.Errorf("Expected a single attempt, got %d", attempts)
	}
	if GetErrorCode(err) != ErrCodeConfigMissing {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, FixedRetryConfig(3, time.Hour), func(ctx context.Context) error {
		return fmt.Errorf("boom")
	})
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestTransactionHandler(t *testing.T) {
	t.Run("failure rolls back", func(t *testing.T) {
		rollbackCalled := false
		committed := false
		txHandler := NewTransactionHandler(
			func() error { committed = true; return nil },
			func() error { rollbackCalled = true; return nil },
		)

		err := txHandler.Execute(func() error {
			return fmt.Errorf("transaction failed")
		})

		if err == nil {
			t.Error("Expected error from failed transaction")
		}
		if !rollbackCalled {
			t.Error("Rollback should have been called")
		}
		if committed || txHandler.Committed() {
			t.Error("Commit should not have been called")
		}
	})

	t.Run("success commits", func(t *testing.T) {
		rollbackCalled := false
		txHandler := NewTransactionHandler(
			func() error { return nil },
			func() error { rollbackCalled = true; return nil },
		)

		if err := txHandler.Execute(func() error { return nil }); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if rollbackCalled {
			t.Error("Rollback should not have been called")
		}
		if !txHandler.Committed() {
			t.Error("Expected transaction to be committed")
		}
	})

	t.Run("commit failure rolls back", func(t *testing.T) {
		rollbackCalled := false
		txHandler := NewTransactionHandler(
			func() error { return fmt.Errorf("commit refused") },
			func() error { rollbackCalled = true; return nil },
		)

		err := txHandler.Execute(func() error { return nil })
		if GetErrorCode(err) != ErrCodeSQLTransaction {
			t.Errorf("Expected code %s, got %v", ErrCodeSQLTransaction, err)
		}
		if !rollbackCalled {
			t.Error("Rollback should have been called")
		}
	})
}

func TestErrorCodes(t *testing.T) {
	err1 := New(ErrCodeConnectionFailed, "Test")
	if GetErrorCode(err1) != ErrCodeConnectionFailed {
		t.Error("Failed to extract error code from AppError")
	}

	err2 := fmt.Errorf("regular error")
	if GetErrorCode(err2) != ErrCodeInternal {
		t.Error("Should return internal error code for non-AppError")
	}

	if ExitCode(nil) != 0 || ExitCode(err2) != 1 {
		t.Error("Unexpected exit code mapping")
	}
}

func BenchmarkErrorCreation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = New(ErrCodeConnectionFailed, "Connection failed").
			WithContext("account", "xy12345").
			WithSuggestions("Check connection")
	}
}
