package media

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportBindDiscoversPort(t *testing.T) {
	transport, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer transport.Close()

	assert.NotZero(t, transport.LocalPort(), "OS-assigned port should be non-zero")
}

func TestTransportSendReceive(t *testing.T) {
	sender, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()

	type frame struct {
		sequence uint64
		payload  []byte
	}
	received := make(chan frame, 8)
	receiver.SetSink(func(sequence uint64, payload []byte) {
		received <- frame{sequence, payload}
	})

	payload := []byte("compressed audio frame")
	err = sender.SendFrame(7, payload, receiver.LocalAddr())
	require.NoError(t, err)

	select {
	case f := <-received:
		assert.Equal(t, uint64(7), f.sequence)
		assert.Equal(t, payload, f.payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audio frame")
	}

	stats := sender.Stats()
	assert.Equal(t, uint64(1), stats.PacketsSent)
	assert.Equal(t, uint64(HeaderSize+len(payload)), stats.BytesSent)
}

func TestTransportDropsDatagramsWithoutSink(t *testing.T) {
	sender, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()

	// No sink armed: the frame must be counted but silently dropped,
	// as happens when a datagram outlives its call.
	require.NoError(t, sender.SendFrame(1, []byte("late frame"), receiver.LocalAddr()))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if receiver.Stats().PacketsReceived == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("receive counter never incremented")
}

func TestTransportStatsReset(t *testing.T) {
	transport, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer transport.Close()

	peer, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	require.NoError(t, transport.SendFrame(0, []byte("x"), peer.LocalAddr()))
	require.NotZero(t, transport.Stats().PacketsSent)

	transport.ResetStats()
	assert.Zero(t, transport.Stats().PacketsSent)
	assert.Zero(t, transport.Stats().BytesSent)
}

func TestTransportFeedsJitterBuffer(t *testing.T) {
	sender, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()

	buf := NewJitterBuffer(0, 0)
	var mu sync.Mutex
	receiver.SetSink(func(sequence uint64, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		buf.Insert(sequence, payload)
	})

	for seq := uint64(0); seq < 3; seq++ {
		require.NoError(t, sender.SendFrame(seq, []byte{byte(seq)}, receiver.LocalAddr()))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if buf.Len() == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 3, buf.Len(), "all frames should reach the jitter buffer")

	var played []uint64
	for i := 0; i < 3; i++ {
		buf.Tick(func(sequence uint64, payload []byte) {
			played = append(played, sequence)
		})
	}
	assert.Equal(t, []uint64{0, 1, 2}, played)
}
