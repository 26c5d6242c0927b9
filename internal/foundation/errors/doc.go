// Package errors provides foundational, type-safe error primitives used across sagecache.
//
// Key features:
//   - ErrorCategory: broad classification (config, kernel, store, artifact, build, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: retry behavior (never, immediate, backoff, user)
//   - ClassifiedError: structured error with category, severity, and context
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLIErrorAdapter: exit codes and presentation for the command line
//
// Example usage:
//
//	err := errors.KernelError("channel read failed").
//		WithContext("kernel_url", kernelURL).
//		WithCause(readErr).
//		Build()
package errors
