// Package cryptox seals small secrets for at-rest persistence. The gate
// writes cached bearer credentials into its local store; those bytes must not
// land on disk in clear.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	// Argon2id parameters. Sealing happens at most once per credential
	// refresh, so the cost profile leans toward the memory-hard side.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var (
	ErrSealedTooShort = errors.New("cryptox: sealed blob too short")
	ErrOpenFailed     = errors.New("cryptox: open failed")
)

// Sealer encrypts and decrypts blobs with a key derived from an installation
// secret. Each Seal call uses a fresh salt and nonce; the output embeds both,
// so Open needs only the same secret.
type Sealer struct {
	secret []byte
}

// NewSealer creates a Sealer from an installation secret. The secret is
// typically read from a file created on first run.
func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, errors.New("cryptox: empty sealer secret")
	}

	s := &Sealer{secret: make([]byte, len(secret))}
	copy(s.secret, secret)
	return s, nil
}

// Seal encrypts plaintext. Output layout: salt(16) | nonce(12) | ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("cryptox: salt generation: %w", err)
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: nonce generation: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. A wrong secret or tampered blob
// yields ErrOpenFailed, never a partial plaintext.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < saltSize+nonceSize {
		return nil, ErrSealedTooShort
	}

	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+nonceSize]
	ciphertext := sealed[saltSize+nonceSize:]

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(s.secret, salt, argonTime, argonMemory, argonThreads, keySize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: cipher init: %w", err)
	}

	return cipher.NewGCM(block)
}
