// Package ui renders command output for terminals and plain pipes.
package ui

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	"olistpipe/pkg/errors"
)

var (
	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	ColorSuccess  = colorFunc(ansi.Green)
	ColorError    = colorFunc(ansi.Red)
	ColorWarning  = colorFunc(ansi.Yellow)
	ColorInfo     = colorFunc(ansi.Cyan)
	ColorProgress = colorFunc(ansi.Blue)
	ColorBold     = colorFunc("default+b")
	ColorDim      = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(style string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, style)
		}
		return text
	}
}

// SetColor forces colored output on or off
func SetColor(enabled bool) {
	supportsColor = enabled
	color.NoColor = !enabled
}

// Header writes a boxed title
func Header(w io.Writer, title string) {
	width := len(title) + 8
	if width < 50 {
		width = 50
	}
	padding := (width - len(title) - 2) / 2

	fmt.Fprintln(w, "\n+"+strings.Repeat("-", width-2)+"+")
	fmt.Fprintf(w, "|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", width-2-padding-len(title)),
	)
	fmt.Fprintln(w, "+"+strings.Repeat("-", width-2)+"+")
}

// Success writes a success line
func Success(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", ColorSuccess("SUCCESS:"), fmt.Sprintf(format, args...))
}

// Warning writes a warning line
func Warning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(fmt.Sprintf(format, args...)))
}

// Info writes an informational line
func Info(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", ColorInfo("INFO:"), fmt.Sprintf(format, args...))
}

// Error writes err with its suggestions. Errors without suggestions get a tip
// guessed from the message.
func Error(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "\n%s\n", ColorError("ERROR:"))

	message := err.Error()
	for i, line := range strings.Split(message, "\n") {
		if i == 0 {
			fmt.Fprintf(w, "  %s\n", line)
		} else {
			fmt.Fprintf(w, "  %s\n", ColorDim(line))
		}
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && len(appErr.Suggestions) > 0 {
		return
	}
	if tip := suggestion(message); tip != "" {
		fmt.Fprintf(w, "\n  %s %s\n", ColorInfo("TIP:"), ColorInfo(tip))
	}
}

// suggestion returns a hint based on well-known error messages
func suggestion(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "incorrect username or password"),
		strings.Contains(lower, "authentication failed"):
		return "Check SNOWFLAKE_USER and SNOWFLAKE_PASSWORD in your .env file"
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"):
		return "Verify SNOWFLAKE_ACCOUNT and network connectivity"
	case strings.Contains(lower, "insufficient privileges"):
		return "Ensure SNOWFLAKE_ROLE has the necessary privileges"
	case strings.Contains(lower, "does not exist"):
		return "Verify the database and schema exist, or run dbt_full_pipeline first"
	case strings.Contains(lower, "executable file not found"):
		return "Install dbt-snowflake and elementary-data, or set OLISTPIPE_DBT_EXECUTABLE"
	default:
		return ""
	}
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
