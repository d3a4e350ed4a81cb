// Package agenterrors declares the tagged error variants used across the
// pipeline, per the design note that both detector and HTTP errors should be
// encoded as sum types rather than classified by string comparison.
package agenterrors

import "fmt"

// DetectKind classifies a Detector-side failure.
type DetectKind int

const (
	// DetectRecoverable means the detector should log a warning, sleep for
	// its poll delay, and keep tailing.
	DetectRecoverable DetectKind = iota
	// DetectUnrecoverable means the detector must terminate; other
	// detectors are unaffected.
	DetectUnrecoverable
	// DetectChannelClosed means the event queue's consumer side is gone;
	// the detector must terminate.
	DetectChannelClosed
)

func (k DetectKind) String() string {
	switch k {
	case DetectRecoverable:
		return "recoverable"
	case DetectUnrecoverable:
		return "unrecoverable"
	case DetectChannelClosed:
		return "channel-closed"
	default:
		return "unknown"
	}
}

// DetectError wraps an underlying cause with a DetectKind tag.
type DetectError struct {
	Kind  DetectKind
	Cause error
}

func (e *DetectError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("detect error (%s)", e.Kind)
	}
	return fmt.Sprintf("detect error (%s): %v", e.Kind, e.Cause)
}

func (e *DetectError) Unwrap() error { return e.Cause }

// NewDetectError builds a DetectError of the given kind wrapping cause.
func NewDetectError(kind DetectKind, cause error) *DetectError {
	return &DetectError{Kind: kind, Cause: cause}
}

// Recoverable reports whether a raw I/O error kind should be treated as
// Recoverable per §7: only Interrupted and WouldBlock are recoverable, every
// other kind is Unrecoverable.
func Recoverable(err error) bool {
	return isInterrupted(err) || isWouldBlock(err)
}

// HTTPKind classifies the outcome of a single send attempt.
type HTTPKind int

const (
	// HTTPRetryable covers network timeouts, connect failures, 5xx and 429.
	HTTPRetryable HTTPKind = iota
	// HTTPNonRetryable covers all other non-2xx statuses and (de)serialization
	// failures.
	HTTPNonRetryable
)

func (k HTTPKind) String() string {
	if k == HTTPRetryable {
		return "retryable"
	}
	return "non-retryable"
}

// HTTPError wraps a send-attempt failure with its HTTPKind tag.
type HTTPError struct {
	Kind       HTTPKind
	StatusCode int // 0 if the failure occurred before a response was read
	Cause      error
}

func (e *HTTPError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("http error (%s, status %d): %v", e.Kind, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("http error (%s): %v", e.Kind, e.Cause)
}

func (e *HTTPError) Unwrap() error { return e.Cause }

// NewHTTPError builds an HTTPError of the given kind.
func NewHTTPError(kind HTTPKind, status int, cause error) *HTTPError {
	return &HTTPError{Kind: kind, StatusCode: status, Cause: cause}
}

// Retryable reports whether the error should be routed through the retry
// subsystem.
func (e *HTTPError) Retryable() bool { return e.Kind == HTTPRetryable }
