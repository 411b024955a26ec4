package errors

// ErrorBuilder assembles a ClassifiedError fluently.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts an error of the given category. Severity defaults to error
// and the retry strategy to never.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{err: ClassifiedError{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
	}}
}

// WrapError starts an error that wraps err.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	return NewError(category, message).WithCause(err)
}

func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.err.cause = err
	return b
}

func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.fields = b.err.fields.with(key, value)
	return b
}

func (b *ErrorBuilder) Fatal() *ErrorBuilder   { b.err.severity = SeverityFatal; return b }
func (b *ErrorBuilder) Warning() *ErrorBuilder { b.err.severity = SeverityWarning; return b }

// Retryable marks the error as worth retrying after a backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder { b.err.retry = RetryBackoff; return b }

// Immediate marks the error as worth retrying right away.
func (b *ErrorBuilder) Immediate() *ErrorBuilder { b.err.retry = RetryImmediate; return b }

// UserAction marks the error as needing someone to fix input or environment.
func (b *ErrorBuilder) UserAction() *ErrorBuilder { b.err.retry = RetryUserAction; return b }

// Build returns the error. The builder may be reused afterwards.
func (b *ErrorBuilder) Build() *ClassifiedError {
	e := b.err
	return &e
}

func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// LockError is contention on a cache entry: another actor owns it.
func LockError(message string) *ErrorBuilder {
	return NewError(CategoryLock, message).Immediate()
}

// PoolError is exhaustion of a repository's orchestrator pool.
func PoolError(message string) *ErrorBuilder {
	return NewError(CategoryPool, message).Retryable()
}

func GitError(message string) *ErrorBuilder {
	return NewError(CategoryGit, message).Retryable()
}

func QueueError(message string) *ErrorBuilder {
	return NewError(CategoryQueue, message)
}

func EventStoreError(message string) *ErrorBuilder {
	return NewError(CategoryEventStore, message)
}

func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message).Retryable()
}

func DaemonError(message string) *ErrorBuilder {
	return NewError(CategoryDaemon, message).Fatal()
}
