package call

// IdentityProvider supplies the active local username. The call flow fails
// with ErrNotAuthenticated when no identity is available.
type IdentityProvider interface {
	// LocalUser returns the active local username.
	LocalUser() (string, error)
}

// Notifier receives state-change events for the presentation layer. All
// methods are invoked from controller goroutines and must not block for
// long.
type Notifier interface {
	// IncomingCall reports a remote offer awaiting the local decision.
	IncomingCall(from string)
	// OutgoingCallStarted reports that a local offer went out.
	OutgoingCallStarted()
	// CallConnected reports that media is flowing.
	CallConnected()
	// CallEnded reports a normal return to idle.
	CallEnded()
	// CallError reports a failure as a single human-readable reason.
	CallError(reason string)
	// DurationTick reports elapsed call time once per second.
	DurationTick(seconds int)
}

// FrameSource delivers fixed-format capture buffers: 320 samples of 16 kHz
// mono PCM per 20 ms frame.
type FrameSource interface {
	// ReadFrame returns the next capture frame. An error skips the frame.
	ReadFrame() ([]int16, error)
}

// FrameSink accepts fixed-format playback buffers in the same format.
type FrameSink interface {
	// WriteFrame plays one frame. An error drops the frame.
	WriteFrame(pcm []int16) error
}
