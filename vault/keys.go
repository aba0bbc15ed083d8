// Package vault holds the key derivation, AEAD and volume-header logic used
// to prepare encrypted storage. On-disk container formatting is delegated to
// an external tool, see Formatter.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/n01d-forge/forge-sdk/types"
)

const (
	// KeySize is the length of every derived key.
	KeySize = 32
	// NonceSize is the GCM nonce length prepended to every ciphertext.
	NonceSize = 12

	// Argon2id work factors, the values recommended by the x/crypto docs.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// DerivedKey is a 32-byte secret derived from a password. It is never logged
// and never serialized; call Wipe when done with it.
type DerivedKey [KeySize]byte

// Wipe zeroes the key material in place.
func (k *DerivedKey) Wipe() {
	for i := range k {
		k[i] = 0
	}
}

// DeriveKey runs Argon2id over the password and salt. It is deterministic:
// the same password and salt always produce the same key.
func DeriveKey(password string, salt []byte) (DerivedKey, error) {
	var key DerivedKey
	if len(salt) == 0 {
		return key, fmt.Errorf("%w: empty salt", types.ErrKeyDerivationFailed)
	}

	raw := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, KeySize)
	copy(key[:], raw)
	return key, nil
}

// RandomBytes draws n bytes from the cryptographically secure source. Salts
// and key material always come from here, never from a seeded PRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("%w: reading random bytes: %v", types.ErrKeyDerivationFailed, err)
	}
	return b, nil
}

// RandomSalt generates a fresh 32-byte salt for key derivation.
func RandomSalt() ([KeySize]byte, error) {
	var salt [KeySize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("%w: reading salt: %v", types.ErrKeyDerivationFailed, err)
	}
	return salt, nil
}

// EncryptAEAD seals plaintext with AES-256-GCM under key. A fresh nonce is
// generated per call and prepended, so the result is nonce || ciphertext+tag.
func EncryptAEAD(plaintext []byte, key DerivedKey) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: generating nonce: %v", types.ErrKeyDerivationFailed, err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptAEAD opens a blob produced by EncryptAEAD. Tampered data or a wrong
// key surfaces as ErrAuthenticationFailed, never as garbage plaintext.
func DecryptAEAD(blob []byte, key DerivedKey) ([]byte, error) {
	if len(blob) < NonceSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the nonce", types.ErrMalformedCiphertext, len(blob))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

func newGCM(key DerivedKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: cipher init: %v", types.ErrKeyDerivationFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm init: %v", types.ErrKeyDerivationFailed, err)
	}
	return gcm, nil
}
