package media

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// InsertFunc receives each parsed audio frame. The jitter buffer's Insert
// is the usual sink.
type InsertFunc func(sequence uint64, payload []byte)

// Statistics tracks per-call traffic counters.
type Statistics struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
}

// Transport sends and receives sequence-numbered audio frames over UDP.
//
// One endpoint is bound per process with an OS-chosen port; the port is
// discovered after bind and carried in signaling payloads. Transmission is
// best-effort by design: failures are logged and dropped, never retried,
// because stale audio has no value once delayed.
type Transport struct {
	conn       net.PacketConn
	listenAddr net.Addr

	// sink is set while a call is active. Datagrams arriving with no
	// sink are silently dropped; a call may have ended while they were
	// in flight.
	sink  InsertFunc
	stats Statistics
	mu    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTransport binds a UDP endpoint and starts the receive loop.
// Pass ":0" to let the OS choose the port.
func NewTransport(listenAddr string) (*Transport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind media endpoint: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &Transport{
		conn:       conn,
		listenAddr: conn.LocalAddr(),
		ctx:        ctx,
		cancel:     cancel,
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewTransport",
		"local_addr": conn.LocalAddr(),
	}).Info("Media transport bound")

	go t.receiveLoop()

	return t, nil
}

// LocalPort returns the OS-assigned UDP port for signaling payloads.
func (t *Transport) LocalPort() int {
	return t.conn.LocalAddr().(*net.UDPAddr).Port
}

// LocalAddr returns the bound datagram endpoint address.
func (t *Transport) LocalAddr() net.Addr {
	return t.listenAddr
}

// SetSink arms the frame sink for an active call. Pass nil when the call
// ends so late datagrams are dropped.
func (t *Transport) SetSink(sink InsertFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// ResetStats zeroes the traffic counters at call start.
func (t *Transport) ResetStats() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Statistics{}
}

// Stats returns a snapshot of the traffic counters.
func (t *Transport) Stats() Statistics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// SendFrame builds an AudioPacket and transmits it to the peer endpoint.
// Non-blocking; a send failure is logged and the frame dropped.
func (t *Transport) SendFrame(sequence uint64, payload []byte, dst net.Addr) error {
	packet := &AudioPacket{Sequence: sequence, Payload: payload}
	data, err := packet.Serialize()
	if err != nil {
		return err
	}

	n, err := t.conn.WriteTo(data, dst)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SendFrame",
			"sequence": sequence,
			"dest":     dst,
			"error":    err.Error(),
		}).Warn("Audio frame send failed, dropping")
		return err
	}

	t.mu.Lock()
	t.stats.PacketsSent++
	t.stats.BytesSent += uint64(n)
	t.mu.Unlock()

	return nil
}

// receiveLoop reads datagrams until the transport closes. Parsed frames go
// to the sink; it never decodes or plays audio itself.
func (t *Transport) receiveLoop() {
	buffer := make([]byte, 2048)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		// Deadline keeps the loop responsive to shutdown.
		_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, _, err := t.conn.ReadFrom(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-t.ctx.Done():
				return
			default:
			}
			logrus.WithFields(logrus.Fields{
				"function": "receiveLoop",
				"error":    err.Error(),
			}).Debug("Media read error, continuing")
			continue
		}

		packet, err := ParseAudioPacket(buffer[:n])
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "receiveLoop",
				"size":     n,
				"error":    err.Error(),
			}).Debug("Discarding malformed audio packet")
			continue
		}

		t.mu.Lock()
		sink := t.sink
		t.stats.PacketsReceived++
		t.stats.BytesReceived += uint64(n)
		t.mu.Unlock()

		if sink == nil {
			// No active call: an in-flight datagram outlived its call.
			continue
		}

		sink(packet.Sequence, packet.Payload)
	}
}

// Close shuts down the transport.
func (t *Transport) Close() error {
	t.cancel()
	return t.conn.Close()
}
