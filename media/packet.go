// Package media implements the unreliable audio path: the datagram wire
// format, the UDP transport, and the jitter buffer that re-establishes frame
// order at playback time.
//
// Audio datagrams are intentionally not encrypted in this design; only the
// signaling channel is. One datagram carries one 20 ms codec frame.
package media

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the length of the audio packet header: one u64 sequence
// number.
const HeaderSize = 8

// AudioPacket is the wire unit on the unreliable channel.
//
// Format: [sequence (8 bytes, big endian)][codec payload (variable length)]
//
// Sequence numbers are assigned by a strictly monotonic per-call counter
// starting at 0; ordering is re-established only inside the jitter buffer.
type AudioPacket struct {
	Sequence uint64
	Payload  []byte
}

// Serialize converts a packet to a byte slice for transmission.
func (p *AudioPacket) Serialize() ([]byte, error) {
	if len(p.Payload) == 0 {
		return nil, errors.New("audio packet payload is empty")
	}

	result := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint64(result[0:HeaderSize], p.Sequence)
	copy(result[HeaderSize:], p.Payload)

	return result, nil
}

// ParseAudioPacket converts a byte slice to an AudioPacket structure.
func ParseAudioPacket(data []byte) (*AudioPacket, error) {
	if len(data) <= HeaderSize {
		return nil, errors.New("audio packet too short")
	}

	packet := &AudioPacket{
		Sequence: binary.BigEndian.Uint64(data[0:HeaderSize]),
		Payload:  make([]byte, len(data)-HeaderSize),
	}
	copy(packet.Payload, data[HeaderSize:])

	return packet, nil
}
