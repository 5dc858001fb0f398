package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// newSessionPair creates two sessions that have exchanged public keys.
func newSessionPair(t *testing.T) (*Session, *Session) {
	t.Helper()

	a, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	b, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}

	if err := a.DeriveSessionKey(b.PublicKey()); err != nil {
		t.Fatalf("DeriveSessionKey() error: %v", err)
	}
	if err := b.DeriveSessionKey(a.PublicKey()); err != nil {
		t.Fatalf("DeriveSessionKey() error: %v", err)
	}

	return a, b
}

func TestSessionStartsPlaintext(t *testing.T) {
	s, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}

	if s.IsEncrypted() {
		t.Error("New session should not be encrypted before key derivation")
	}

	if _, _, err := s.Encrypt([]byte("too early")); !errors.Is(err, ErrKeyNotDerived) {
		t.Errorf("Encrypt() before derivation: got %v, want ErrKeyNotDerived", err)
	}
}

func TestSessionDeriveOnce(t *testing.T) {
	a, b := newSessionPair(t)

	if !a.IsEncrypted() || !b.IsEncrypted() {
		t.Fatal("Sessions should be encrypted after key derivation")
	}

	if err := a.DeriveSessionKey(b.PublicKey()); !errors.Is(err, ErrKeyAlreadyDerived) {
		t.Errorf("Second DeriveSessionKey(): got %v, want ErrKeyAlreadyDerived", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	a, b := newSessionPair(t)

	message := []byte(`{"type":"call_request","from":"alice"}`)
	nonce, box, err := a.Encrypt(message)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	plain, err := b.Decrypt(nonce, box)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}

	if !bytes.Equal(plain, message) {
		t.Errorf("Round trip mismatch: got %q, want %q", plain, message)
	}
}

func TestSessionDecryptDetectsTampering(t *testing.T) {
	a, b := newSessionPair(t)

	nonce, box, err := a.Encrypt([]byte("authentic payload"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	// Flip one bit of the nonce.
	badNonce := nonce
	badNonce[0] ^= 0x01
	if _, err := b.Decrypt(badNonce, box); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt() with mutated nonce: got %v, want ErrDecryptionFailed", err)
	}

	// Flip one bit of the tag and of the ciphertext.
	for _, idx := range []int{0, len(box) - 1} {
		mutated := make([]byte, len(box))
		copy(mutated, box)
		mutated[idx] ^= 0x01

		if _, err := b.Decrypt(nonce, mutated); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Decrypt() with byte %d mutated: got %v, want ErrDecryptionFailed", idx, err)
		}
	}
}

func TestSessionNonceUniqueness(t *testing.T) {
	a, _ := newSessionPair(t)

	const count = 256
	seen := make(map[Nonce]bool, count)

	for i := 0; i < count; i++ {
		nonce, _, err := a.Encrypt([]byte("frame"))
		if err != nil {
			t.Fatalf("Encrypt() error: %v", err)
		}
		if seen[nonce] {
			t.Fatalf("Nonce repeated after %d encryptions", i)
		}
		seen[nonce] = true
	}
}

func TestSessionKeysAgree(t *testing.T) {
	a, b := newSessionPair(t)

	// Both directions must work with independently derived keys.
	nonce, box, err := b.Encrypt([]byte("reverse direction"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	if _, err := a.Decrypt(nonce, box); err != nil {
		t.Errorf("Decrypt() of peer message failed: %v", err)
	}
}
