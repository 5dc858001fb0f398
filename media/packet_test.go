package media

import (
	"bytes"
	"testing"
)

func TestAudioPacketSerializeParse(t *testing.T) {
	cases := []struct {
		name     string
		sequence uint64
		payload  []byte
	}{
		{"first frame", 0, []byte{0x01}},
		{"typical frame", 42, bytes.Repeat([]byte{0xAB}, 640)},
		{"large sequence", 1<<40 + 7, []byte{1, 2, 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			packet := &AudioPacket{Sequence: tc.sequence, Payload: tc.payload}

			data, err := packet.Serialize()
			if err != nil {
				t.Fatalf("Serialize() error: %v", err)
			}
			if len(data) != HeaderSize+len(tc.payload) {
				t.Errorf("Serialize() length = %d, want %d", len(data), HeaderSize+len(tc.payload))
			}

			parsed, err := ParseAudioPacket(data)
			if err != nil {
				t.Fatalf("ParseAudioPacket() error: %v", err)
			}
			if parsed.Sequence != tc.sequence {
				t.Errorf("Sequence = %d, want %d", parsed.Sequence, tc.sequence)
			}
			if !bytes.Equal(parsed.Payload, tc.payload) {
				t.Error("Payload mismatch after round trip")
			}
		})
	}
}

func TestSerializeRejectsEmptyPayload(t *testing.T) {
	packet := &AudioPacket{Sequence: 1}
	if _, err := packet.Serialize(); err == nil {
		t.Error("Serialize() accepted empty payload")
	}
}

func TestParseRejectsShortPacket(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only", make([]byte, HeaderSize)},
		{"truncated header", make([]byte, HeaderSize-1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseAudioPacket(tc.data); err == nil {
				t.Error("ParseAudioPacket() accepted short packet")
			}
		})
	}
}
