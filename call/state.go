// Package call implements the call-signaling state machine and the
// controller that owns the call lifecycle.
//
// The controller drives the framed control channel to exchange signaling
// messages and starts/stops the media path exactly on the
// Connected/non-Connected transitions, so no audio I/O can occur outside an
// active call.
package call

import (
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of the single call session.
type State int

const (
	// StateIdle means no call is pending or active.
	StateIdle State = iota
	// StateCalling means an outbound call is awaiting the remote answer.
	StateCalling
	// StateRinging means an inbound call is awaiting the local decision.
	StateRinging
	// StateConnected means media is flowing in both directions.
	StateConnected
)

// String returns a readable state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCalling:
		return "Calling"
	case StateRinging:
		return "Ringing"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Event is a state machine input, either a local operation or a received
// signaling message.
type Event int

const (
	// EventInitiate is the local user starting an outbound call.
	EventInitiate Event = iota
	// EventCallRequest is a remote call offer arriving.
	EventCallRequest
	// EventAccept is the local user answering an inbound call.
	EventAccept
	// EventReject is the local user declining an inbound call.
	EventReject
	// EventCallAccepted is the remote answer to our outbound call.
	EventCallAccepted
	// EventCallRejected is the remote decline of our outbound call.
	EventCallRejected
	// EventEnd is a local hangup/cancel or a remote call_end.
	EventEnd
)

// String returns a readable event name for logs.
func (e Event) String() string {
	switch e {
	case EventInitiate:
		return "initiate"
	case EventCallRequest:
		return "call_request"
	case EventAccept:
		return "accept"
	case EventReject:
		return "reject"
	case EventCallAccepted:
		return "call_accepted"
	case EventCallRejected:
		return "call_rejected"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// transitionKey pairs a state with an event for table lookup.
type transitionKey struct {
	from  State
	event Event
}

// transitions is the complete state machine. Every valid transition is
// enumerated here and validated centrally in apply; anything outside the
// table is logged and ignored.
var transitions = map[transitionKey]State{
	{StateIdle, EventInitiate}:        StateCalling,
	{StateIdle, EventCallRequest}:     StateRinging,
	{StateRinging, EventAccept}:       StateConnected,
	{StateRinging, EventReject}:       StateIdle,
	{StateRinging, EventEnd}:          StateIdle,
	{StateCalling, EventCallAccepted}: StateConnected,
	{StateCalling, EventCallRejected}: StateIdle,
	{StateCalling, EventEnd}:          StateIdle,
	{StateConnected, EventEnd}:        StateIdle,
}

// lookupTransition returns the target state for a (state, event) pair and
// whether the pair is part of the machine.
func lookupTransition(from State, event Event) (State, bool) {
	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "lookupTransition",
			"state":    from.String(),
			"event":    event.String(),
		}).Warn("Event ignored in current state")
	}
	return to, ok
}
