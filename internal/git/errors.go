package git

import (
	"errors"
	"fmt"
)

// ExitStatusNotFound is the status git uses for a missing ref, path or repository.
const ExitStatusNotFound = 128

// CloneFailedError is a recognized clone failure (bad ref, missing path, unknown repository).
type CloneFailedError struct {
	ExitStatus int
	Message    string
}

func (e *CloneFailedError) Error() string {
	return fmt.Sprintf("clone failed (exit status %d): %s", e.ExitStatus, e.Message)
}

// FetchFailedError is a recognized failure fetching objects or submodules.
type FetchFailedError struct {
	Message string
}

func (e *FetchFailedError) Error() string {
	return "fetch failed: " + e.Message
}

// IsClassified reports whether err is one of the recognized failure kinds.
func IsClassified(err error) bool {
	var cf *CloneFailedError
	var ff *FetchFailedError
	return errors.As(err, &cf) || errors.As(err, &ff)
}

func notFound(format string, args ...any) *CloneFailedError {
	return &CloneFailedError{ExitStatus: ExitStatusNotFound, Message: fmt.Sprintf(format, args...)}
}
