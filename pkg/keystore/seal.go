package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// ErrSealedRecord reports a sealed record that cannot be opened: truncated
// data or a wrong passphrase.
var ErrSealedRecord = errors.New("keystore: cannot open sealed record")

// Sealer encrypts stored values with AES-256-GCM under a key derived from
// a passphrase via argon2id. Records are nonce||ciphertext. The salt is
// caller-supplied and fixed per store so the same passphrase derives the
// same key across runs.
type Sealer struct {
	key []byte
}

// NewSealer derives the sealing key. Argon2id parameters follow the
// library's current recommendation (t=1, 64 MiB, 4 lanes).
func NewSealer(passphrase, salt []byte) *Sealer {
	return &Sealer{key: argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)}
}

func (s *Sealer) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("keystore: init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext into a self-contained record.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keystore: nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a record produced by Seal.
func (s *Sealer) Open(record []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	if len(record) < gcm.NonceSize() {
		return nil, ErrSealedRecord
	}
	nonce, ciphertext := record[:gcm.NonceSize()], record[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrSealedRecord
	}
	return plaintext, nil
}
