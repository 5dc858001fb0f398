package crypto

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Sentinel errors for session operations. These enable reliable error
// classification using errors.Is().
var (
	// ErrDecryptionFailed indicates the authentication tag did not verify.
	// This is fatal to the connection: it signals corruption or tampering
	// and must never be retried silently.
	ErrDecryptionFailed = errors.New("decryption failed: message authentication failed")

	// ErrKeyNotDerived indicates Encrypt/Decrypt was called before the
	// key exchange completed.
	ErrKeyNotDerived = errors.New("session key not derived")

	// ErrKeyAlreadyDerived indicates DeriveSessionKey was called twice.
	// The handshake happens exactly once per connection.
	ErrKeyAlreadyDerived = errors.New("session key already derived")
)

// Session holds the cryptographic state of one control connection.
//
// A Session starts in plaintext mode with a fresh ephemeral key pair.
// After both peers exchange public keys, DeriveSessionKey computes the
// shared symmetric key and every subsequent frame is authenticated-encrypted
// with secretbox under a fresh random nonce.
type Session struct {
	keyPair   *KeyPair
	sharedKey [32]byte
	encrypted bool
	mu        sync.RWMutex
}

// NewSession creates a session with a freshly generated ephemeral key pair.
func NewSession() (*Session, error) {
	keyPair, err := GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return &Session{keyPair: keyPair}, nil
}

// PublicKey returns the 32-byte public key to send in the handshake message.
func (s *Session) PublicKey() [32]byte {
	return s.keyPair.Public
}

// DeriveSessionKey computes the shared symmetric key from the peer's public
// key. After this returns, IsEncrypted reports true and all frames must be
// encrypted.
func (s *Session) DeriveSessionKey(peerPublicKey [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encrypted {
		return ErrKeyAlreadyDerived
	}

	shared, err := DeriveSharedSecret(peerPublicKey, s.keyPair.Private)
	if err != nil {
		return err
	}

	s.sharedKey = shared
	s.encrypted = true

	logrus.WithFields(logrus.Fields{
		"function":        "DeriveSessionKey",
		"peer_key_prefix": fmt.Sprintf("%x", peerPublicKey[:8]),
	}).Info("Session key derived, channel is now encrypted")

	return nil
}

// IsEncrypted reports whether the key exchange has completed.
func (s *Session) IsEncrypted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encrypted
}

// Encrypt seals plaintext under the session key with a fresh random nonce.
// The returned box is the 16-byte authentication tag followed by ciphertext
// of the same length as the plaintext.
func (s *Session) Encrypt(plaintext []byte) (Nonce, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.encrypted {
		return Nonce{}, nil, ErrKeyNotDerived
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return Nonce{}, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	box, err := EncryptSymmetric(plaintext, nonce, s.sharedKey)
	if err != nil {
		return Nonce{}, nil, err
	}

	return nonce, box, nil
}

// Decrypt opens a box sealed by the peer. Returns ErrDecryptionFailed if
// any byte of the nonce, tag, or ciphertext was altered.
func (s *Session) Decrypt(nonce Nonce, box []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.encrypted {
		return nil, ErrKeyNotDerived
	}

	return DecryptSymmetric(box, nonce, s.sharedKey)
}
