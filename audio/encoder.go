// Package audio wraps the speech codec used on the media path.
//
// The format is fixed for the whole protocol: 16 kHz, mono, 20 ms frames of
// 320 int16 samples. Encoding goes through the Encoder interface with a PCM16
// implementation; decoding recognizes PCM16 frames by size and falls back to
// the pure Go pion/opus decoder for Opus payloads. Missing frames are
// replaced by loss concealment so playback never stalls.
package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	// SampleRate is the fixed codec sample rate in Hz.
	SampleRate = 16000

	// FrameSamples is the number of int16 samples in one 20 ms frame.
	FrameSamples = 320

	// FrameBytes is the wire size of one PCM16-encoded frame.
	FrameBytes = FrameSamples * 2
)

// Encoder converts PCM frames to compressed payloads. A fresh Encoder is
// created per call and per direction so no codec state leaks across calls.
type Encoder interface {
	// Encode converts one fixed-size PCM frame to its wire payload.
	Encode(pcm []int16) ([]byte, error)
	// Close releases encoder resources.
	Close() error
}

// PCM16Encoder emits frames as little-endian PCM16. It keeps the Encoder
// interface so an Opus encoder can slot in without touching callers.
type PCM16Encoder struct{}

// NewPCM16Encoder creates a PCM16 passthrough encoder.
func NewPCM16Encoder() *PCM16Encoder {
	return &PCM16Encoder{}
}

// Encode converts a 320-sample PCM frame to 640 little-endian bytes.
func (e *PCM16Encoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSamples {
		logrus.WithFields(logrus.Fields{
			"function":     "PCM16Encoder.Encode",
			"sample_count": len(pcm),
			"expected":     FrameSamples,
		}).Error("Frame size validation failed")
		return nil, fmt.Errorf("%w: %d samples", ErrInvalidFrameSize, len(pcm))
	}

	data := make([]byte, FrameBytes)
	for i, sample := range pcm {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}

	return data, nil
}

// Close releases encoder resources.
func (e *PCM16Encoder) Close() error {
	return nil
}
