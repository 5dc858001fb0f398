// Package signaling defines the call-signaling messages exchanged between
// peers over the framed control channel.
//
// Messages are JSON objects carried one per frame; a "type" tag
// discriminates the union. Frame ordering is preserved by the underlying
// reliable stream, so no sequence numbers are needed here.
package signaling

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// MessageType identifies the kind of a signaling message.
type MessageType string

const (
	// TypeHandshake carries the sender's public key. It is sent immediately
	// after connecting, before any call-related message, and is the only
	// message accepted in plaintext.
	TypeHandshake MessageType = "handshake"

	// TypeCallRequest initiates an outbound call.
	TypeCallRequest MessageType = "call_request"

	// TypeCallAccepted answers a pending call.
	TypeCallAccepted MessageType = "call_accepted"

	// TypeCallRejected declines a pending call.
	TypeCallRejected MessageType = "call_rejected"

	// TypeCallEnd terminates or cancels a call.
	TypeCallEnd MessageType = "call_end"
)

// Message is implemented by every signaling message.
type Message interface {
	// Type returns the wire discriminator for this message.
	Type() MessageType
}

// Handshake carries a peer's ephemeral public key, base64-encoded.
type Handshake struct {
	Kind MessageType `json:"type"`
	Key  string      `json:"key"`
}

// NewHandshake builds a handshake message from a raw 32-byte public key.
func NewHandshake(publicKey [32]byte) *Handshake {
	return &Handshake{
		Kind: TypeHandshake,
		Key:  base64.StdEncoding.EncodeToString(publicKey[:]),
	}
}

// Type returns TypeHandshake.
func (h *Handshake) Type() MessageType { return TypeHandshake }

// PublicKey decodes the base64 key field back into raw bytes.
func (h *Handshake) PublicKey() ([32]byte, error) {
	var key [32]byte

	raw, err := base64.StdEncoding.DecodeString(h.Key)
	if err != nil {
		return key, fmt.Errorf("invalid handshake key encoding: %w", err)
	}
	if len(raw) != 32 {
		return key, errors.New("invalid handshake key length")
	}

	copy(key[:], raw)
	return key, nil
}

// CallRequest asks the remote user to accept a call. The caller includes
// its media endpoint so audio can flow as soon as the call connects.
type CallRequest struct {
	Kind       MessageType `json:"type"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	CallID     string      `json:"call_id"`
	CallerIP   string      `json:"caller_ip"`
	CallerPort int         `json:"caller_port"`
}

// Type returns TypeCallRequest.
func (m *CallRequest) Type() MessageType { return TypeCallRequest }

// CallAccepted answers a CallRequest and carries the callee's media endpoint.
type CallAccepted struct {
	Kind       MessageType `json:"type"`
	From       string      `json:"from"`
	CallID     string      `json:"call_id"`
	CalleeIP   string      `json:"callee_ip"`
	CalleePort int         `json:"callee_port"`
}

// Type returns TypeCallAccepted.
func (m *CallAccepted) Type() MessageType { return TypeCallAccepted }

// CallRejected declines a pending CallRequest.
type CallRejected struct {
	Kind   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	To     string      `json:"to"`
}

// Type returns TypeCallRejected.
func (m *CallRejected) Type() MessageType { return TypeCallRejected }

// CallEnd terminates an active call or cancels an outgoing one.
type CallEnd struct {
	Kind   MessageType `json:"type"`
	From   string      `json:"from"`
	CallID string      `json:"call_id"`
}

// Type returns TypeCallEnd.
func (m *CallEnd) Type() MessageType { return TypeCallEnd }
