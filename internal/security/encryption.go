// Package security provides at-rest encryption for archived transcripts.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const encPrefix = "enc:"

// SaltSize is the length of the Argon2id salt in bytes.
const SaltSize = 16

// NewSalt returns a fresh random salt. The archive persists it alongside
// the data so the same passphrase re-derives the same key on reopen.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// TranscriptEncryptor encrypts message content with AES-256-GCM. The key is
// derived from a passphrase via Argon2id and held only in memory.
type TranscriptEncryptor struct {
	mu  sync.RWMutex
	key []byte // 32 bytes
}

// NewTranscriptEncryptor derives a key from passphrase and salt. The salt
// must be the one stored with the data being decrypted.
func NewTranscriptEncryptor(passphrase string, salt []byte) (*TranscriptEncryptor, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	return &TranscriptEncryptor{key: deriveKey(passphrase, salt)}, nil
}

// Encrypt encrypts plaintext and returns "enc:" + base64(nonce + ciphertext).
func (e *TranscriptEncryptor) Encrypt(plaintext string) (string, error) {
	gcm, err := e.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts ciphertext. Input without the "enc:" prefix is returned
// as-is, so archives written before encryption was enabled stay readable.
func (e *TranscriptEncryptor) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, encPrefix) {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, encPrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := e.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Zeroize clears the key bytes from memory. Call on shutdown.
func (e *TranscriptEncryptor) Zeroize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.key {
		e.key[i] = 0
	}
}

func (e *TranscriptEncryptor) gcm() (cipher.AEAD, error) {
	e.mu.RLock()
	key := make([]byte, len(e.key))
	copy(key, e.key)
	e.mu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}
