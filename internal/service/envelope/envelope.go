// Package envelope implements the symmetric and key-wrapping primitives for
// the record vault: AES-256-GCM for payloads and an X25519-based key
// encapsulation for sharing data-encryption keys between doctors.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

const (
	// KeySize is the data-encryption key size (AES-256).
	KeySize = 32
	// IVSize is the GCM nonce size.
	IVSize = 12
	// TagSize is the GCM authentication tag size.
	TagSize = 16
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	// ErrAuthenticationFailed is returned whenever a tag fails to verify or
	// key material does not match. Decryption fails closed; no partial
	// plaintext is ever returned alongside it.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// Sealed is one authenticated-encryption blob. The three fields are stored
// as independent columns and only ever replaced together.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// GenerateDataKey returns a fresh random 256-bit data-encryption key.
func GenerateDataKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext under key with a fresh random IV. The same
// plaintext encrypts differently on every call.
func Encrypt(plaintext, key []byte) (Sealed, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return Sealed{}, err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Sealed{}, err
	}

	// Seal appends the tag to the ciphertext; split it off so the fields
	// can be persisted separately.
	out := gcm.Seal(nil, iv, plaintext, nil)
	n := len(out) - TagSize
	return Sealed{
		Ciphertext: out[:n],
		IV:         iv,
		Tag:        out[n:],
	}, nil
}

// Decrypt opens a sealed blob. Any tampering with ciphertext, IV or tag, or
// a wrong key, yields ErrAuthenticationFailed.
func Decrypt(sealed Sealed, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed.IV) != IVSize || len(sealed.Tag) != TagSize {
		return nil, ErrAuthenticationFailed
	}

	in := make([]byte, 0, len(sealed.Ciphertext)+TagSize)
	in = append(in, sealed.Ciphertext...)
	in = append(in, sealed.Tag...)

	plaintext, err := gcm.Open(nil, sealed.IV, in, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Zero wipes key material in place. Callers zero recovered private keys and
// data-encryption keys when the operation completes, including error paths.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	return cipher.NewGCM(block)
}
