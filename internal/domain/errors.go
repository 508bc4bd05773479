package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the gateway domain.
var (
	// ErrUnsupportedProvider is returned when a caller requests a provider
	// id that is not in the registry. Fails before any network I/O.
	ErrUnsupportedProvider = fmt.Errorf("unsupported llm provider")
	// ErrMissingCredential is returned when no API key is resolvable for
	// the chosen provider. Fails before any network I/O.
	ErrMissingCredential = fmt.Errorf("api key not configured")
	// ErrUpstream is returned when a backend replied with a non-success
	// status or a malformed payload.
	ErrUpstream = fmt.Errorf("upstream provider error")
	// ErrStreamDecode is returned when a streaming response failed
	// mid-flight (connection reset, unreadable body).
	ErrStreamDecode = fmt.Errorf("stream decode failed")
	// ErrCacheFailure tags best-effort cache faults; callers treat it as a
	// miss or no-op, never as a request failure.
	ErrCacheFailure = fmt.Errorf("cache operation failed")

	// Resilience sentinels mapped from upstream HTTP statuses.
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrContextOverflow = fmt.Errorf("context window exceeded")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Dispatcher.Generate")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeUnsupportedProvider ErrorCode = "UNSUPPORTED_PROVIDER"
	CodeMissingCredential   ErrorCode = "MISSING_CREDENTIAL"
	CodeUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	CodeStreamDecode        ErrorCode = "STREAM_DECODE"
	CodeCacheFailure        ErrorCode = "CACHE_FAILURE"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
)

var errorCodeMap = map[error]ErrorCode{
	ErrUnsupportedProvider: CodeUnsupportedProvider,
	ErrMissingCredential:   CodeMissingCredential,
	ErrUpstream:            CodeUpstreamError,
	ErrStreamDecode:        CodeStreamDecode,
	ErrCacheFailure:        CodeCacheFailure,
	ErrRateLimit:           CodeRateLimit,
	ErrAuthInvalid:         CodeAuthInvalid,
	ErrContextOverflow:     CodeContextOverflow,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// IsRetryableError reports whether err is a transient upstream error that may
// succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit)
}
