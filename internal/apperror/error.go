// Package apperror carries coded errors through the quoting pipeline. The code
// decides retry and breaker behaviour; the provider names who failed.
package apperror

import (
	"errors"
	"fmt"
	"log/slog"
)

// AppError is a coded failure, optionally attributed to a provider.
type AppError struct {
	Code     Code   `json:"code"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
	Context  string `json:"context,omitempty"`
	cause    error
}

func (e *AppError) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Provider != "" {
		msg += " (provider " + e.Provider + ")"
	}
	if e.Context != "" {
		msg += " [" + e.Context + "]"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches any AppError with the same code, so package-level values such
// as circuitbreaker.ErrOpen work as sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// LogValue renders the error as a group in structured logs.
func (e *AppError) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("code", string(e.Code))}
	if e.Provider != "" {
		attrs = append(attrs, slog.String("provider", e.Provider))
	}
	if e.Context != "" {
		attrs = append(attrs, slog.String("context", e.Context))
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	return slog.GroupValue(attrs...)
}

// Option configures an AppError.
type Option func(*AppError)

func WithMessage(message string) Option {
	return func(e *AppError) {
		e.Message = message
	}
}

func WithContext(context string) Option {
	return func(e *AppError) {
		e.Context = context
	}
}

func WithCause(cause error) Option {
	return func(e *AppError) {
		e.cause = cause
	}
}

// New creates an AppError with the code's default message.
func New(code Code, opts ...Option) *AppError {
	err := &AppError{Code: code, Message: Message(code)}
	for _, opt := range opts {
		opt(err)
	}
	return err
}

// Validation reports a rejected quote request.
func Validation(code Code, format string, args ...any) *AppError {
	return New(code, WithContext(fmt.Sprintf(format, args...)))
}

// Provider creates a failure attributed to the named provider.
func Provider(code Code, provider string, cause error) *AppError {
	err := New(code, WithCause(cause))
	err.Provider = provider
	return err
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetCode extracts the code from err, or CodeUnknownError for foreign errors.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

// IsTransient reports whether err is a provider failure worth retrying:
// timeouts, upstream 5xx, provider-side rate limiting and unknown errors
// such as dropped connections. Client errors, malformed responses and
// breaker rejections are permanent for the current request.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch GetCode(err) {
	case CodeProviderTimeout, CodeProviderError, CodeServiceUnavailable,
		CodeProviderRateLimited, CodeUnknownError:
		return true
	default:
		return false
	}
}
