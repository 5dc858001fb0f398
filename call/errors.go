package call

import "errors"

// Sentinel errors for call operations. These enable reliable error
// classification using errors.Is().
var (
	// ErrNotAuthenticated indicates no local identity is available; the
	// identity must be acquired before a call can begin.
	ErrNotAuthenticated = errors.New("no local identity available")

	// ErrAlreadyInCall indicates a call is pending or active; exactly one
	// session may be non-Idle at a time.
	ErrAlreadyInCall = errors.New("a call is already in progress")

	// ErrInvalidTransition indicates an operation that is not valid in
	// the current state. The event is logged and ignored.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoPendingCall indicates Accept or Reject was called with no
	// inbound call ringing.
	ErrNoPendingCall = errors.New("no pending incoming call")
)
