// Package errs defines the shared error-category sentinels used across the
// node. Every package-level error returned from validation, resource,
// consensus, storage, protocol, or authentication paths wraps one of these
// with fmt.Errorf("...: %w", ...) so callers can classify a failure with
// errors.Is while still reading a specific message.
package errs

import "errors"

var (
	// ErrValidation covers bad signatures, bad prev-hash/version links, bad
	// encodings, and participant-limit violations. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrResource covers gas exhaustion, a full mempool, oversized messages,
	// and rate-limit rejections. Safe to retry after backoff.
	ErrResource = errors.New("resource error")

	// ErrConsensus covers internal state-machine conditions: no leader,
	// insufficient quorum, required view change, equivocation evidence.
	ErrConsensus = errors.New("consensus error")

	// ErrStorage covers key-not-found, read/write failures, and
	// deserialization errors. Fatal to the block currently being applied.
	ErrStorage = errors.New("storage error")

	// ErrProtocol covers version mismatches, codec errors, and connection
	// failures in the transport layer.
	ErrProtocol = errors.New("protocol error")

	// ErrAuthentication covers invalid passwords, decryption failures, and
	// unauthorized access to a gated operation.
	ErrAuthentication = errors.New("authentication error")
)

// RateLimited is returned by resource-bounded operations that want to
// attach a retry hint. Callers can type-assert for RetryAfterSeconds.
type RateLimited struct {
	RetryAfterSeconds int
	Reason            string
}

func (e *RateLimited) Error() string {
	return "rate limit exceeded: " + e.Reason
}

func (e *RateLimited) Unwrap() error { return ErrResource }
