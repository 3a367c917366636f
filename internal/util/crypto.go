package util

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrDecrypt = errors.New("decryption failed")

// deriveKey normalizes key material to 32 bytes using SHA-256.
func deriveKey(secret string) *[32]byte {
	sum := sha256.Sum256([]byte(secret))
	return &sum
}

// Seal encrypts plaintext with NaCl secretbox. The random nonce is prepended
// to the returned ciphertext.
func Seal(secret string, plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, deriveKey(secret)), nil
}

// Open reverses Seal.
func Open(secret string, payload []byte) ([]byte, error) {
	if len(payload) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], payload[:nonceSize])
	plain, ok := secretbox.Open(nil, payload[nonceSize:], &nonce, deriveKey(secret))
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}
