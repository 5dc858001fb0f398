package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrUnknownMessageType indicates a frame carried a type tag outside the
// signaling protocol.
var ErrUnknownMessageType = errors.New("unknown signaling message type")

// Encode serializes a signaling message to its JSON wire form.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("signaling message is nil")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.Type(), err)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Encode",
		"message_type": msg.Type(),
		"data_size":    len(data),
	}).Debug("Signaling message encoded")

	return data, nil
}

// envelope is used to peek at the type tag before decoding the full message.
type envelope struct {
	Kind MessageType `json:"type"`
}

// Decode parses a JSON frame payload into the concrete signaling message.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed signaling message: %w", err)
	}

	var msg Message
	switch env.Kind {
	case TypeHandshake:
		msg = &Handshake{}
	case TypeCallRequest:
		msg = &CallRequest{}
	case TypeCallAccepted:
		msg = &CallAccepted{}
	case TypeCallRejected:
		msg = &CallRejected{}
	case TypeCallEnd:
		msg = &CallEnd{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Kind)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("malformed %s message: %w", env.Kind, err)
	}

	return msg, nil
}
