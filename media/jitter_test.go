package media

import (
	"testing"
)

// playRecorder captures the (sequence, payload) pairs a Tick releases.
type playRecorder struct {
	sequences []uint64
	concealed []bool
}

func (r *playRecorder) play(sequence uint64, payload []byte) {
	r.sequences = append(r.sequences, sequence)
	r.concealed = append(r.concealed, payload == nil)
}

func TestTickReordersAndConcealsGap(t *testing.T) {
	buf := NewJitterBuffer(0, 0)
	rec := &playRecorder{}

	// Frames arrive out of order with 3 missing.
	for _, seq := range []uint64{2, 0, 1, 4} {
		buf.Insert(seq, []byte{byte(seq)})
	}

	for i := 0; i < 4; i++ {
		buf.Tick(rec.play)
	}

	wantSeq := []uint64{0, 1, 2, 3, 4}
	wantConcealed := []bool{false, false, false, true, false}

	if len(rec.sequences) != len(wantSeq) {
		t.Fatalf("played %v, want %v", rec.sequences, wantSeq)
	}
	for i := range wantSeq {
		if rec.sequences[i] != wantSeq[i] {
			t.Errorf("play %d: sequence = %d, want %d", i, rec.sequences[i], wantSeq[i])
		}
		if rec.concealed[i] != wantConcealed[i] {
			t.Errorf("play %d: concealed = %v, want %v", i, rec.concealed[i], wantConcealed[i])
		}
	}
}

func TestTickCatchUpDrainsBacklog(t *testing.T) {
	buf := NewJitterBuffer(3, 0)
	rec := &playRecorder{}

	for seq := uint64(0); seq < 5; seq++ {
		buf.Insert(seq, []byte{byte(seq)})
	}

	// A single tick must play more than one frame while the backlog is
	// above the catch-up threshold.
	buf.Tick(rec.play)

	if len(rec.sequences) <= 1 {
		t.Fatalf("single tick played %d frames, want more than 1", len(rec.sequences))
	}
	for i, seq := range rec.sequences {
		if seq != uint64(i) {
			t.Errorf("catch-up play %d: sequence = %d, want %d", i, seq, i)
		}
		if rec.concealed[i] {
			t.Errorf("catch-up play %d was concealed", i)
		}
	}
}

func TestTickEmptyBufferIsNoOp(t *testing.T) {
	buf := NewJitterBuffer(0, 0)
	rec := &playRecorder{}

	buf.Tick(rec.play)

	if len(rec.sequences) != 0 {
		t.Errorf("empty buffer tick played %v, want nothing", rec.sequences)
	}
	if buf.NextSequence() != 0 {
		t.Errorf("empty buffer tick advanced next to %d", buf.NextSequence())
	}
}

func TestInsertIsIdempotentOverwrite(t *testing.T) {
	buf := NewJitterBuffer(0, 0)

	buf.Insert(0, []byte{1})
	buf.Insert(0, []byte{2})

	if buf.Len() != 1 {
		t.Fatalf("buffer length = %d after duplicate insert, want 1", buf.Len())
	}

	var got []byte
	buf.Tick(func(sequence uint64, payload []byte) { got = payload })

	if len(got) != 1 || got[0] != 2 {
		t.Errorf("duplicate insert played %v, want the overwriting payload [2]", got)
	}
}

func TestInsertDropsStaleFrames(t *testing.T) {
	buf := NewJitterBuffer(0, 0)
	rec := &playRecorder{}

	buf.Insert(0, []byte{0})
	buf.Tick(rec.play)

	// Sequence 0 already played; a late duplicate must not be stored.
	buf.Insert(0, []byte{0})
	if buf.Len() != 0 {
		t.Errorf("stale insert stored a frame, length = %d", buf.Len())
	}
}

func TestInsertEvictsOldestAboveCap(t *testing.T) {
	buf := NewJitterBuffer(3, 4)

	for seq := uint64(0); seq < 5; seq++ {
		buf.Insert(seq, []byte{byte(seq)})
	}

	if buf.Len() != 4 {
		t.Fatalf("buffer length = %d, want cap 4", buf.Len())
	}

	// Sequence 0 was the oldest and must be gone: the first tick conceals
	// it instead of playing it.
	rec := &playRecorder{}
	buf.Tick(rec.play)

	if len(rec.sequences) == 0 || rec.sequences[0] != 0 || !rec.concealed[0] {
		t.Errorf("expected concealment of evicted sequence 0, got sequences=%v concealed=%v",
			rec.sequences, rec.concealed)
	}
}

func TestNextSequenceStartsAtZero(t *testing.T) {
	buf := NewJitterBuffer(0, 0)
	if buf.NextSequence() != 0 {
		t.Errorf("NextSequence() = %d on new buffer, want 0", buf.NextSequence())
	}
}
