package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// KeySize is the AES-256 key length produced by DeriveKey.
const KeySize = 32

// SaltSize is the length of the random KDF salt persisted with the store.
const SaltSize = 16

var errSealedTooShort = errors.New("sealed value is too short")

// KDFParams tunes argon2id. Zero fields fall back to DefaultKDFParams.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams follows the argon2id recommendation for interactive use.
var DefaultKDFParams = KDFParams{Time: 1, Memory: 64 * 1024, Threads: 4}

func (p KDFParams) withDefaults() KDFParams {
	if p.Time == 0 {
		p.Time = DefaultKDFParams.Time
	}
	if p.Memory == 0 {
		p.Memory = DefaultKDFParams.Memory
	}
	if p.Threads == 0 {
		p.Threads = DefaultKDFParams.Threads
	}
	return p
}

// DeriveKey stretches a passphrase into an AES-256 key.
func DeriveKey(passphrase string, salt []byte, params KDFParams) []byte {
	p := params.withDefaults()
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Threads, KeySize)
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	return salt, nil
}

// aesGCMSealer seals and opens values using AES-GCM.
type aesGCMSealer struct {
	aead cipher.AEAD
}

// newAESGCMSealer builds a sealer from a raw AES key.
// key must be a valid AES length (16/24/32 bytes).
func newAESGCMSealer(key []byte) (*aesGCMSealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &aesGCMSealer{aead: aead}, nil
}

// Seal encrypts plaintext bound to aad and returns nonce || ciphertext.
func (s *aesGCMSealer) Seal(plaintext, aad []byte) ([]byte, error) {
	// AES-GCM requires a unique nonce per encryption under the same key.
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts a payload produced by Seal with the same aad.
func (s *aesGCMSealer) Open(payload, aad []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(payload) < nonceSize {
		return nil, errSealedTooShort
	}
	nonce, ciphertext := payload[:nonceSize], payload[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypt sealed value: %w", err)
	}
	return plaintext, nil
}
