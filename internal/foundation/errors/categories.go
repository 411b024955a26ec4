package errors

// ErrorCategory routes a failure: which exit code the CLI uses and whether a
// job is handed back to the queue.
type ErrorCategory string

const (
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"

	// Contention: another actor owns the entry or every orchestrator is busy.
	CategoryLock ErrorCategory = "lock"
	CategoryPool ErrorCategory = "pool"

	CategoryCache      ErrorCategory = "cache"
	CategoryGit        ErrorCategory = "git"
	CategoryQueue      ErrorCategory = "queue"
	CategoryEventStore ErrorCategory = "eventstore"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryDaemon     ErrorCategory = "daemon"
	CategoryInternal   ErrorCategory = "internal"
)

// exitCodes maps categories to CLI exit codes. 75 is EX_TEMPFAIL so scripts
// can treat contention as "try later".
var exitCodes = map[ErrorCategory]int{
	CategoryValidation: 2,
	CategoryAuth:       5,
	CategoryConfig:     7,
	CategoryGit:        8,
	CategoryQueue:      8,
	CategoryInternal:   10,
	CategoryCache:      11,
	CategoryFileSystem: 11,
	CategoryEventStore: 11,
	CategoryDaemon:     12,
	CategoryLock:       75,
	CategoryPool:       75,
}

// ErrorSeverity is the impact of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
)

// RetryStrategy says whether repeating the operation can help.
type RetryStrategy string

const (
	RetryNever      RetryStrategy = "never"
	RetryImmediate  RetryStrategy = "immediate"
	RetryBackoff    RetryStrategy = "backoff"
	RetryUserAction RetryStrategy = "user"
)

// Fields is structured context attached to an error.
type Fields map[string]any

func (f Fields) with(key string, value any) Fields {
	out := make(Fields, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[key] = value
	return out
}
