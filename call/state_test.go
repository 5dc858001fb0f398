package call

import (
	"testing"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		event Event
		want  State
	}{
		{"initiate from idle", StateIdle, EventInitiate, StateCalling},
		{"inbound offer from idle", StateIdle, EventCallRequest, StateRinging},
		{"accept while ringing", StateRinging, EventAccept, StateConnected},
		{"reject while ringing", StateRinging, EventReject, StateIdle},
		{"remote hangup while ringing", StateRinging, EventEnd, StateIdle},
		{"remote answer while calling", StateCalling, EventCallAccepted, StateConnected},
		{"remote decline while calling", StateCalling, EventCallRejected, StateIdle},
		{"cancel while calling", StateCalling, EventEnd, StateIdle},
		{"hangup while connected", StateConnected, EventEnd, StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := lookupTransition(tt.from, tt.event)
			if !ok {
				t.Fatalf("lookupTransition(%v, %v) rejected a valid transition", tt.from, tt.event)
			}
			if got != tt.want {
				t.Errorf("lookupTransition(%v, %v) = %v, want %v", tt.from, tt.event, got, tt.want)
			}
		})
	}
}

func TestInvalidTransitionsIgnored(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		event Event
	}{
		{"accept with nothing ringing", StateIdle, EventAccept},
		{"hangup while idle", StateIdle, EventEnd},
		{"second initiate while calling", StateCalling, EventInitiate},
		{"accept own outbound call", StateCalling, EventAccept},
		{"initiate while ringing", StateRinging, EventInitiate},
		{"remote answer while ringing", StateRinging, EventCallAccepted},
		{"initiate while connected", StateConnected, EventInitiate},
		{"accept while connected", StateConnected, EventAccept},
		{"offer while connected", StateConnected, EventCallRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := lookupTransition(tt.from, tt.event); ok {
				t.Errorf("lookupTransition(%v, %v) accepted an invalid transition", tt.from, tt.event)
			}
		})
	}
}

// The machine has exactly nine edges; any addition must be deliberate.
func TestTransitionTableIsExhaustive(t *testing.T) {
	count := 0
	for s := StateIdle; s <= StateConnected; s++ {
		for e := EventInitiate; e <= EventEnd; e++ {
			if _, ok := lookupTransition(s, e); ok {
				count++
			}
		}
	}
	if count != 9 {
		t.Errorf("transition table has %d edges, want 9", count)
	}
}

func TestStateAndEventStrings(t *testing.T) {
	if StateIdle.String() != "Idle" || StateConnected.String() != "Connected" {
		t.Error("unexpected state names")
	}
	if State(99).String() != "Unknown" {
		t.Error("out-of-range state should render as Unknown")
	}
	if EventCallRequest.String() != "call_request" || EventEnd.String() != "end" {
		t.Error("unexpected event names")
	}
}
