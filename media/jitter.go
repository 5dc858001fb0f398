package media

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultCatchUpThreshold is the backlog size above which Tick drains
	// extra frames to reduce end-to-end delay.
	DefaultCatchUpThreshold = 3

	// DefaultMaxPending caps the pending entry count (~1.3s of audio at
	// 20 ms frames) to bound memory under sustained reordering.
	DefaultMaxPending = 64
)

// PlayFunc consumes one frame at playback time. A nil payload means the
// frame was lost and must be concealed by the decoder.
type PlayFunc func(sequence uint64, payload []byte)

// JitterBuffer reorders arriving frames by sequence number and releases
// them on a fixed 20 ms cadence, absorbing network jitter and concealing
// loss.
//
// Strict sequence-driven pacing guarantees constant output cadence no
// matter the arrival pattern; concealment guarantees playback never stalls
// waiting for a late or lost packet.
type JitterBuffer struct {
	mu      sync.Mutex
	pending map[uint64][]byte

	// next is the sequence number to play, starting at 0 each call.
	next uint64

	catchUpThreshold int
	maxPending       int
}

// NewJitterBuffer creates a buffer for one call. Non-positive arguments
// select the defaults.
func NewJitterBuffer(catchUpThreshold, maxPending int) *JitterBuffer {
	if catchUpThreshold <= 0 {
		catchUpThreshold = DefaultCatchUpThreshold
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}

	return &JitterBuffer{
		pending:          make(map[uint64][]byte),
		catchUpThreshold: catchUpThreshold,
		maxPending:       maxPending,
	}
}

// Insert stores an arriving frame, overwriting any entry already present
// for the sequence. Frames older than the playback position are stale and
// dropped; when the cap is exceeded the oldest pending entry is evicted.
func (b *JitterBuffer) Insert(sequence uint64, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sequence < b.next {
		logrus.WithFields(logrus.Fields{
			"function": "Insert",
			"sequence": sequence,
			"next":     b.next,
		}).Debug("Dropping stale audio frame")
		return
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	b.pending[sequence] = data

	if len(b.pending) > b.maxPending {
		b.evictOldest()
	}
}

// evictOldest removes the lowest pending sequence. Caller holds the lock.
func (b *JitterBuffer) evictOldest() {
	var oldest uint64
	first := true
	for seq := range b.pending {
		if first || seq < oldest {
			oldest = seq
			first = false
		}
	}

	delete(b.pending, oldest)

	logrus.WithFields(logrus.Fields{
		"function": "evictOldest",
		"sequence": oldest,
		"pending":  len(b.pending),
	}).Warn("Jitter buffer full, evicted oldest frame")
}

// Tick releases frames on the fixed 20 ms cadence. This is the only place
// playback happens, decoupling arrival jitter from playback timing.
//
// When the backlog exceeds the catch-up threshold and the next frame is
// present, extra frames are drained immediately: a brief speedup in
// playback traded for reduced end-to-end delay. Then exactly one frame is
// played, either the real one or nil for concealment.
//
// An empty buffer is a no-op so nothing is synthesized before the first
// packet has ever arrived.
func (b *JitterBuffer) Tick(play PlayFunc) {
	b.mu.Lock()

	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}

	type step struct {
		sequence uint64
		payload  []byte
	}
	var steps []step

	// Catch-up: drain backlog while it is deep and contiguous.
	for len(b.pending) > b.catchUpThreshold {
		payload, ok := b.pending[b.next]
		if !ok {
			break
		}
		delete(b.pending, b.next)
		steps = append(steps, step{b.next, payload})
		b.next++
	}

	// Normal step: the real frame when present, concealment otherwise.
	if payload, ok := b.pending[b.next]; ok {
		delete(b.pending, b.next)
		steps = append(steps, step{b.next, payload})
	} else {
		steps = append(steps, step{b.next, nil})
	}
	b.next++

	b.mu.Unlock()

	// Play outside the lock; decode and playback can take a while.
	for _, s := range steps {
		play(s.sequence, s.payload)
	}
}

// Len returns the number of pending frames.
func (b *JitterBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// NextSequence returns the sequence number the next Tick will play.
func (b *JitterBuffer) NextSequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}
