// Package errkind implements the error taxonomy of spec §7 as sentinel
// values wrapped with errors.Is-compatible context, rather than as an
// exception hierarchy — the teacher returns plain errors throughout
// core/txpool and the event package, and this follows the same idiom.
package errkind

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Components wrap these with fmt.Errorf("%w: ...", Kind)
// so callers can still errors.Is against the taxonomy after the event or
// solution identifier has been folded into the message.
var (
	// TransientUpstream covers blob/simulator/store/queue failures that are
	// expected to clear on retry. Policy: bounded exponential back-off,
	// then escalate to TerminalEvent.
	TransientUpstream = errors.New("transient upstream failure")

	// TerminalEvent covers malformed events, missing blobs, corrupt
	// payloads and simulator-reported execution failures. Policy: record
	// failure where applicable, advance past the event.
	TerminalEvent = errors.New("terminal event failure")

	// ConstraintViolation is returned by the validator; not itself an
	// escalation path, just a typed marker for callers that want to
	// distinguish "solution failed validation" from I/O failure.
	ConstraintViolation = errors.New("constraint violation")

	// Internal marks an invariant breach (duplicate intent, CAS
	// inconsistency). Policy: log, drop the event, keep running.
	Internal = errors.New("internal invariant breach")

	// Fatal marks bootstrap failures that must stop the process.
	Fatal = errors.New("fatal bootstrap failure")
)

// Wrap annotates a sentinel kind with context, preserving errors.Is.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err should be retried at the operation layer
// that produced it (spec §7: only TransientUpstream is retryable there).
func IsRetryable(err error) bool {
	return errors.Is(err, TransientUpstream)
}
