// Package transport implements the framed control channel used for call
// signaling.
//
// The channel turns a reliable ordered byte stream into discrete
// length-prefixed messages. Before the key exchange completes, frames carry
// plaintext JSON payloads (the handshake message only); afterward every frame
// is authenticated-encrypted with a fresh nonce:
//
//	pre-handshake:  [length:u32 BE][payload]
//	post-handshake: [length:u32 BE][nonce:24][tag:16 || ciphertext]
//
// where length covers everything after itself.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/govoice/crypto"
	"github.com/opd-ai/govoice/signaling"
)

// Sentinel errors for framed channel operations.
var (
	// ErrChannelClosed indicates the channel was torn down and can no
	// longer send or receive.
	ErrChannelClosed = errors.New("framed channel is closed")

	// ErrFrameTooLarge indicates a frame length prefix exceeded the
	// protocol maximum.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrPlaintextNotAllowed indicates a non-handshake message arrived
	// before the key exchange completed. The plaintext window is for the
	// handshake only.
	ErrPlaintextNotAllowed = errors.New("plaintext message other than handshake")
)

// MaxFrameSize caps the length prefix of a single frame. Matches the
// plaintext cap of the crypto layer plus encryption overhead.
const MaxFrameSize = crypto.MaxMessageSize + crypto.NonceSize + crypto.Overhead

// MessageHandler receives each decoded signaling message in arrival order.
type MessageHandler func(msg signaling.Message)

// ErrorHandler receives the fatal error that tore the channel down.
// Protocol errors are never retried: a failed authentication may indicate
// tampering.
type ErrorHandler func(err error)

// FramedChannel frames signaling messages over a reliable stream and
// encrypts them once the handshake completes.
//
// The parser in Feed is resumable: partial frames are buffered across
// reads and multiple frames arriving in one read event are all delivered.
type FramedChannel struct {
	conn    net.Conn
	session *crypto.Session

	onMessage MessageHandler
	onError   ErrorHandler

	// pending accumulates bytes until at least one full frame is available.
	pending []byte

	closed bool
	mu     sync.Mutex
}

// NewFramedChannel wraps a connected stream with framing tied to the given
// crypto session.
func NewFramedChannel(conn net.Conn, session *crypto.Session) *FramedChannel {
	return &FramedChannel{
		conn:    conn,
		session: session,
	}
}

// Subscribe registers the message and error sinks. Must be called before
// Start.
func (c *FramedChannel) Subscribe(onMessage MessageHandler, onError ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = onMessage
	c.onError = onError
}

// Start begins reading from the stream and sends the local handshake.
// The handshake is always framed in plaintext: the peer derives its session
// key only upon receiving it, so it cannot be encrypted at that point.
func (c *FramedChannel) Start() error {
	hs := signaling.NewHandshake(c.session.PublicKey())
	payload, err := signaling.Encode(hs)
	if err != nil {
		return err
	}

	// The read loop must run before the blocking write: both peers send
	// their handshake first thing, and neither can finish writing until
	// the other side is draining the stream.
	go c.readLoop()

	if err := c.writeFrame(payload, false); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Start",
		"remote_addr": c.conn.RemoteAddr(),
	}).Info("Handshake sent")

	return nil
}

// Send encodes a signaling message and writes it as one frame, encrypting
// when the key exchange has completed.
func (c *FramedChannel) Send(msg signaling.Message) error {
	payload, err := signaling.Encode(msg)
	if err != nil {
		return err
	}

	return c.writeFrame(payload, c.session.IsEncrypted())
}

// writeFrame frames and transmits one payload.
func (c *FramedChannel) writeFrame(payload []byte, encrypted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}

	var body []byte
	if encrypted {
		nonce, box, err := c.session.Encrypt(payload)
		if err != nil {
			return err
		}
		body = make([]byte, 0, crypto.NonceSize+len(box))
		body = append(body, nonce[:]...)
		body = append(body, box...)
	} else {
		body = payload
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:], body)

	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("frame write failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "writeFrame",
		"frame_size": len(frame),
		"encrypted":  encrypted,
	}).Debug("Frame transmitted")

	return nil
}

// Feed appends raw stream bytes to the parser and delivers every complete
// frame found. It never blocks the caller; partial frames wait for the
// next read event.
func (c *FramedChannel) Feed(buf []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.pending = append(c.pending, buf...)

	var frames [][]byte
	for {
		if len(c.pending) < 4 {
			break
		}

		length := binary.BigEndian.Uint32(c.pending[0:4])
		if length == 0 || length > MaxFrameSize {
			c.mu.Unlock()
			err := fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
			c.teardown(err)
			return err
		}

		if uint32(len(c.pending)-4) < length {
			break
		}

		frame := make([]byte, length)
		copy(frame, c.pending[4:4+length])
		c.pending = c.pending[4+length:]
		frames = append(frames, frame)
	}
	c.mu.Unlock()

	// Deliver outside the lock so handlers may send on the channel.
	for _, frame := range frames {
		if err := c.deliverFrame(frame); err != nil {
			c.teardown(err)
			return err
		}
	}

	return nil
}

// deliverFrame decrypts (when encrypted) and decodes one frame, then emits
// the recovered message.
func (c *FramedChannel) deliverFrame(frame []byte) error {
	payload := frame

	if c.session.IsEncrypted() {
		if len(frame) < crypto.NonceSize+crypto.Overhead {
			return errors.New("encrypted frame too short")
		}

		var nonce crypto.Nonce
		copy(nonce[:], frame[:crypto.NonceSize])

		plain, err := c.session.Decrypt(nonce, frame[crypto.NonceSize:])
		if err != nil {
			return err
		}
		payload = plain
	}

	msg, err := signaling.Decode(payload)
	if err != nil {
		return err
	}

	// Before the key exchange only the handshake may arrive in plaintext.
	if !c.session.IsEncrypted() && msg.Type() != signaling.TypeHandshake {
		return fmt.Errorf("%w: %s", ErrPlaintextNotAllowed, msg.Type())
	}

	c.mu.Lock()
	handler := c.onMessage
	c.mu.Unlock()

	if handler != nil {
		handler(msg)
	}

	return nil
}

// readLoop pumps the stream into the parser until the connection fails or
// the channel is closed.
func (c *FramedChannel) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			if feedErr := c.Feed(buf[:n]); feedErr != nil {
				return
			}
		}
		if err != nil {
			c.mu.Lock()
			alreadyClosed := c.closed
			c.mu.Unlock()
			if !alreadyClosed {
				c.teardown(fmt.Errorf("control stream read failed: %w", err))
			}
			return
		}
	}
}

// teardown closes the channel after a fatal error and notifies the error
// sink exactly once.
func (c *FramedChannel) teardown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	handler := c.onError
	c.mu.Unlock()

	c.conn.Close()

	logrus.WithFields(logrus.Fields{
		"function": "teardown",
		"error":    cause.Error(),
	}).Error("Framed channel torn down")

	if handler != nil {
		handler(cause)
	}
}

// Close shuts the channel down locally. Safe to call more than once.
func (c *FramedChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.conn.Close()
}

// LocalAddr returns the local address of the underlying stream.
func (c *FramedChannel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote address of the underlying stream.
func (c *FramedChannel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
