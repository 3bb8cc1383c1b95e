package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Common errors returned by the source.
var (
	// ErrNotFound is returned when the backend has no value for a key.
	ErrNotFound = errors.New("source: key not found")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass categorizes backend failures for retry decisions and metrics.
type ErrorClass string

const (
	// ErrorClassNotFound means the key does not exist. Never retried.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassNetwork covers connection, timeout and server errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode means the stored payload is not valid JSON. Never retried.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassCancelled means the caller's context ended.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// SourceError carries the key and classification of a backend failure.
type SourceError struct {
	Key   string
	Class ErrorClass
	Err   error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s error for %q: %v", e.Class, e.Key, e.Err)
	}
	return fmt.Sprintf("source %s error for %q", e.Class, e.Key)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is makes not-found errors match ErrNotFound.
func (e *SourceError) Is(target error) bool {
	return target == ErrNotFound && e.Class == ErrorClassNotFound
}

// classify maps a go-redis error to an ErrorClass. Only the caller's ctx
// ending counts as cancelled; a per-call timeout is a network error.
func classify(ctx context.Context, err error) ErrorClass {
	switch {
	case errors.Is(err, redis.Nil):
		return ErrorClassNotFound
	case ctx.Err() != nil:
		return ErrorClassCancelled
	default:
		return ErrorClassNetwork
	}
}

// classOf returns the class of a SourceError anywhere in err's chain.
func classOf(err error) ErrorClass {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Class
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(class ErrorClass) bool {
	return class == ErrorClassNetwork
}
