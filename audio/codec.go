package audio

import (
	"errors"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// Sentinel errors for codec operations.
var (
	// ErrInvalidFrameSize indicates a PCM frame did not contain exactly
	// FrameSamples samples.
	ErrInvalidFrameSize = errors.New("invalid frame size")

	// ErrDecodeFailed indicates the payload could not be decoded. The
	// offending frame is dropped; one bad frame must not end the call.
	ErrDecodeFailed = errors.New("audio decode failed")
)

// maxConsecutiveConcealments bounds the attenuated-repeat synthesis before
// concealment falls back to silence.
const maxConsecutiveConcealments = 5

// Codec encodes and decodes fixed-format audio frames for one direction of
// one call. Create a fresh instance at call start and discard it at call end.
type Codec struct {
	encoder Encoder
	decoder *opus.Decoder

	// lastFrame feeds loss concealment: a missing frame is synthesized by
	// repeating the previous output at reduced amplitude.
	lastFrame    []int16
	concealments int
}

// NewCodec creates a codec with fresh encoder and decoder state.
func NewCodec() *Codec {
	decoder := opus.NewDecoder()

	logrus.WithFields(logrus.Fields{
		"function":    "NewCodec",
		"sample_rate": SampleRate,
		"frame_size":  FrameSamples,
	}).Debug("Codec instance created")

	return &Codec{
		encoder: NewPCM16Encoder(),
		decoder: &decoder,
	}
}

// Encode compresses one 320-sample PCM frame. On error the caller must not
// forward the (empty) output.
func (c *Codec) Encode(pcm []int16) ([]byte, error) {
	data, err := c.encoder.Encode(pcm)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Decode converts a compressed payload back to one 320-sample PCM frame.
//
// A nil or empty payload triggers loss concealment instead of decoding and
// never fails; the jitter buffer relies on this for missing frames.
func (c *Codec) Decode(data []byte) ([]int16, error) {
	if len(data) == 0 {
		return c.conceal(), nil
	}

	var pcm []int16
	var err error

	if len(data) == FrameBytes {
		pcm = decodePCM16(data)
	} else {
		pcm, err = c.decodeOpus(data)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Decode",
				"data_size": len(data),
				"error":     err.Error(),
			}).Warn("Dropping undecodable audio frame")
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
	}

	c.lastFrame = pcm
	c.concealments = 0
	return pcm, nil
}

// conceal synthesizes a plausible frame for a lost packet: the previous
// output repeated at reduced amplitude, decaying to silence.
func (c *Codec) conceal() []int16 {
	out := make([]int16, FrameSamples)

	if c.lastFrame == nil || c.concealments >= maxConsecutiveConcealments {
		c.lastFrame = out
		return out
	}

	for i, sample := range c.lastFrame {
		out[i] = sample / 2
	}

	c.lastFrame = out
	c.concealments++
	return out
}

// decodeOpus decodes an Opus payload and fits it to the fixed frame size.
func (c *Codec) decodeOpus(data []byte) ([]int16, error) {
	// 40 ms at 48 kHz is the largest frame the decoder emits.
	out := make([]byte, 1920*2)

	bandwidth, isStereo, err := c.decoder.Decode(data, out)
	if err != nil {
		return nil, err
	}

	sampleCount := len(out) / 2
	if isStereo {
		sampleCount /= 2
	}

	pcm := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		pcm[i] = int16(out[i*2]) | int16(out[i*2+1])<<8
	}

	logrus.WithFields(logrus.Fields{
		"function":  "decodeOpus",
		"bandwidth": bandwidth.String(),
		"samples":   sampleCount,
	}).Debug("Opus frame decoded")

	return fitToFrame(pcm), nil
}

// decodePCM16 converts little-endian PCM16 bytes back to samples.
func decodePCM16(data []byte) []int16 {
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return pcm
}

// fitToFrame resamples a decoded frame to exactly FrameSamples samples by
// nearest-index selection. Decoder output at other rates keeps the 20 ms
// cadence intact this way.
func fitToFrame(pcm []int16) []int16 {
	if len(pcm) == FrameSamples {
		return pcm
	}

	out := make([]int16, FrameSamples)
	if len(pcm) == 0 {
		return out
	}

	for i := range out {
		out[i] = pcm[i*len(pcm)/FrameSamples]
	}
	return out
}

// Close releases codec resources.
func (c *Codec) Close() error {
	c.lastFrame = nil
	return c.encoder.Close()
}
