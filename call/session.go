package call

import (
	"time"

	"github.com/opd-ai/govoice/media"
)

// Session describes one active or pending call. Fields are owned
// exclusively by the Controller and mutated only under its lock; Snapshot
// copies are handed out to observers.
type Session struct {
	// CallID is an opaque unique token, immutable once assigned.
	CallID string

	// State is the current lifecycle state.
	State State

	LocalUser  string
	RemoteUser string

	// RemoteAddress and RemotePort are the peer's media endpoint, always
	// set before any audio is sent.
	RemoteAddress string
	RemotePort    int

	// LocalPort is the OS-assigned media port advertised in signaling.
	LocalPort int

	StartedAt       time.Time
	DurationSeconds int

	// Traffic holds the send/receive byte and packet counters for the
	// current call.
	Traffic media.Statistics
}

// reset returns all fields to their zero values on call end. The local
// port survives because the media endpoint is bound once per process.
func (s *Session) reset() {
	localPort := s.LocalPort
	*s = Session{State: StateIdle, LocalPort: localPort}
}
