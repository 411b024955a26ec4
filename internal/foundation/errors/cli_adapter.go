package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
)

// CLIErrorAdapter turns a command error into a log record, a one-line message
// and an exit code.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor returns 0 for nil, the category's code for classified errors
// and 1 otherwise.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	ce, ok := AsClassified(err)
	if !ok {
		return 1
	}
	if code, ok := exitCodes[ce.category]; ok {
		return code
	}
	return 1
}

// FormatError prints only the message of classified errors unless verbose.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	ce, ok := AsClassified(err)
	if !ok || a.verbose {
		return fmt.Sprintf("Error: %v", err)
	}
	return "Error: " + ce.message
}

// Report logs err, writes the user-facing line to w and returns the exit code.
func (a *CLIErrorAdapter) Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	a.log(err)
	_, _ = fmt.Fprintln(w, a.FormatError(err))
	return a.ExitCodeFor(err)
}

func (a *CLIErrorAdapter) log(err error) {
	ce, ok := AsClassified(err)
	if !ok {
		a.logger.Error("Unclassified error", slog.String("error", err.Error()))
		return
	}
	attrs := []slog.Attr{slog.String("category", string(ce.category))}
	if ce.CanRetry() {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	keys := make([]string, 0, len(ce.fields))
	for k := range ce.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, ce.fields[k]))
	}
	if a.verbose && ce.cause != nil {
		attrs = append(attrs, slog.String("cause", ce.cause.Error()))
	}
	level := slog.LevelError
	if ce.severity == SeverityWarning {
		level = slog.LevelWarn
	}
	a.logger.LogAttrs(context.Background(), level, ce.message, attrs...)
}
