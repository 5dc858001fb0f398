package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
)

// DeriveSharedSecret computes a shared secret between two parties
// using Elliptic Curve Diffie-Hellman (ECDH) on Curve25519.
func DeriveSharedSecret(peerPublicKey, privateKey [32]byte) ([32]byte, error) {
	logrus.WithFields(logrus.Fields{
		"function":        "DeriveSharedSecret",
		"peer_key_prefix": fmt.Sprintf("%x", peerPublicKey[:8]),
	}).Debug("Computing shared secret using ECDH")

	// Work on copies so the caller's key material is never modified.
	var publicKeyCopy [32]byte
	var privateKeyCopy [32]byte
	copy(publicKeyCopy[:], peerPublicKey[:])
	copy(privateKeyCopy[:], privateKey[:])

	sharedSecret, err := curve25519.X25519(privateKeyCopy[:], publicKeyCopy[:])
	if err != nil {
		zeroBytes(privateKeyCopy[:])
		return [32]byte{}, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	var result [32]byte
	copy(result[:], sharedSecret)

	zeroBytes(privateKeyCopy[:])
	zeroBytes(sharedSecret)

	return result, nil
}

// derivePublicKey computes the Curve25519 public key for a private key.
func derivePublicKey(privateKey [32]byte) ([32]byte, error) {
	publicSlice, err := curve25519.X25519(privateKey[:], curve25519.Basepoint)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to derive public key: %w", err)
	}

	var publicKey [32]byte
	copy(publicKey[:], publicSlice)
	return publicKey, nil
}

// zeroBytes overwrites a byte slice with zeros to wipe key material.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
