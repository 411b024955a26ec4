package config

import (
	"log/slog"

	"git.home.luguber.info/inful/repocache/internal/foundation/normalization"
)

// LockBackend selects the cross-process lock implementation.
type LockBackend string

const (
	LockBackendFile LockBackend = "file"
	LockBackendNATS LockBackend = "nats"
)

var lockBackendNormalizer = normalization.NewNormalizer(map[string]LockBackend{
	"file":      LockBackendFile,
	"flock":     LockBackendFile,
	"nats":      LockBackendNATS,
	"nats-kv":   LockBackendNATS,
	"jetstream": LockBackendNATS,
}, LockBackendFile)

// CloneBackend selects the clone delegate.
type CloneBackend string

const (
	CloneBackendGoGit CloneBackend = "gogit"
	CloneBackendCLI   CloneBackend = "cli"
)

var cloneBackendNormalizer = normalization.NewNormalizer(map[string]CloneBackend{
	"gogit":  CloneBackendGoGit,
	"go-git": CloneBackendGoGit,
	"cli":    CloneBackendCLI,
	"git":    CloneBackendCLI,
}, CloneBackendGoGit)

// BackpressureMode selects what the worker does when it cannot make progress.
type BackpressureMode string

const (
	BackpressureDrop BackpressureMode = "drop"
	BackpressureFail BackpressureMode = "fail"
)

var backpressureNormalizer = normalization.NewNormalizer(map[string]BackpressureMode{
	"drop": BackpressureDrop,
	"fail": BackpressureFail,
}, BackpressureDrop)

// RetryBackoffMode shapes the delay between queue retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffNormalizer = normalization.NewNormalizer(map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"constant":    RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
	"exp":         RetryBackoffExponential,
}, "")

// NormalizeRetryBackoff returns "" for input it does not recognize.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return retryBackoffNormalizer.Normalize(raw)
}

// LogLevel is the minimum level written by the process logger.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var slogLevels = map[LogLevel]slog.Level{
	LogLevelDebug: slog.LevelDebug,
	LogLevelInfo:  slog.LevelInfo,
	LogLevelWarn:  slog.LevelWarn,
	LogLevelError: slog.LevelError,
}

var logLevelNormalizer = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// SlogLevel maps l onto slog, treating unknown levels as info.
func (l LogLevel) SlogLevel() slog.Level {
	if lvl, ok := slogLevels[l]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// LogFormat picks the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

var logFormatNormalizer = normalization.NewNormalizer(map[string]LogFormat{
	"text":   LogFormatText,
	"logfmt": LogFormatText,
	"json":   LogFormatJSON,
}, LogFormatText)

// AuthType names the credential kind handed to the clone delegate.
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
)

var authTypeNormalizer = normalization.NewNormalizer(map[string]AuthType{
	"none":  AuthTypeNone,
	"ssh":   AuthTypeSSH,
	"token": AuthTypeToken,
	"basic": AuthTypeBasic,
}, AuthTypeNone)
