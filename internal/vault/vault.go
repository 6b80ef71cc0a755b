// Package vault encrypts imported media at rest. Keys are derived from a
// passphrase with PBKDF2-HMAC-SHA256; payloads are sealed with AES-256-GCM
// and carry their nonce as a prefix.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize   = 32
	NonceSize = 12

	DefaultSalt       = "wa-history-salt"
	DefaultIterations = 100000
)

var (
	// ErrDecrypt covers every decryption failure: wrong key, tampering or
	// truncation.
	ErrDecrypt = errors.New("vault: decryption failed")
	// ErrWrongPassphrase is returned by Verify when a key does not match
	// the recorded fingerprint.
	ErrWrongPassphrase = errors.New("vault: passphrase does not match")
)

// Key is an AES-256 key.
type Key [KeySize]byte

// DeriveKey stretches passphrase into a Key.
func DeriveKey(passphrase, salt string, iterations int) Key {
	if iterations < 1 {
		iterations = DefaultIterations
	}
	var k Key
	copy(k[:], pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, KeySize, sha256.New))
	return k
}

// Fingerprint identifies a key without revealing it: the hex SHA-256 of
// the raw key bytes.
func (k Key) Fingerprint() string {
	sum := sha256.Sum256(k[:])
	return hex.EncodeToString(sum[:])
}

// Verify checks k against a previously recorded fingerprint.
func Verify(k Key, fingerprint string) error {
	if subtle.ConstantTimeCompare([]byte(k.Fingerprint()), []byte(fingerprint)) != 1 {
		return ErrWrongPassphrase
	}
	return nil
}

// Encrypt seals plain under k. The result is nonce || ciphertext || tag.
func Encrypt(plain []byte, k Key) ([]byte, error) {
	gcm, err := newGCM(k)
	if err != nil {
		return nil, err
	}
	out := make([]byte, NonceSize, NonceSize+len(plain)+gcm.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("vault: read nonce: %w", err)
	}
	return gcm.Seal(out, out[:NonceSize], plain, nil), nil
}

// Decrypt opens data produced by Encrypt.
func Decrypt(data []byte, k Key) ([]byte, error) {
	gcm, err := newGCM(k)
	if err != nil {
		return nil, err
	}
	if len(data) < NonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("%w: payload too short", ErrDecrypt)
	}
	plain, err := gcm.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func newGCM(k Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(k[:])
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}

// Session holds the key for the current process. The zero value is locked.
type Session struct {
	mu  sync.RWMutex
	key Key
	set bool
}

// Set installs k.
func (s *Session) Set(k Key) {
	s.mu.Lock()
	s.key, s.set = k, true
	s.mu.Unlock()
}

// Clear forgets the key.
func (s *Session) Clear() {
	s.mu.Lock()
	s.key, s.set = Key{}, false
	s.mu.Unlock()
}

// Key returns the current key, if one is set.
func (s *Session) Key() (Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.set
}
