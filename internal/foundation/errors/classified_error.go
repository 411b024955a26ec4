package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ClassifiedError is an error with a category, severity, retry strategy and
// structured fields. Values are immutable; With* methods return copies so
// package-level sentinels can be decorated safely.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	fields   Fields
}

func (e *ClassifiedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.category, e.message)
	if len(e.fields) > 0 {
		keys := make([]string, 0, len(e.fields))
		for k := range e.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.fields[k])
		}
		b.WriteString(")")
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

func (e *ClassifiedError) Category() ErrorCategory      { return e.category }
func (e *ClassifiedError) Severity() ErrorSeverity      { return e.severity }
func (e *ClassifiedError) RetryStrategy() RetryStrategy { return e.retry }
func (e *ClassifiedError) Message() string              { return e.message }

// Field returns one context value.
func (e *ClassifiedError) Field(key string) (any, bool) {
	v, ok := e.fields[key]
	return v, ok
}

// Fields returns the context values. The map must not be modified.
func (e *ClassifiedError) Fields() Fields { return e.fields }

// WithContext returns a copy carrying key=value.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	cp := *e
	cp.fields = e.fields.with(key, value)
	return &cp
}

// WithCause returns a copy wrapping cause.
func (e *ClassifiedError) WithCause(cause error) *ClassifiedError {
	cp := *e
	cp.cause = cause
	return &cp
}

// Is matches any ClassifiedError with the same category and message, so a
// decorated copy of a sentinel still satisfies errors.Is.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	return ok && e.category == other.category && e.message == other.message
}

// CanRetry reports whether repeating the operation without user action may
// succeed.
func (e *ClassifiedError) CanRetry() bool {
	return e.retry == RetryImmediate || e.retry == RetryBackoff
}

// AsClassified finds the first ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// HasCategory reports whether the first ClassifiedError in err's chain has
// the given category.
func HasCategory(err error, category ErrorCategory) bool {
	ce, ok := AsClassified(err)
	return ok && ce.category == category
}
