package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// WrappingScheme identifies how RecordKey rows were produced.
const WrappingScheme = "ECIES-X25519-HKDF-AESGCM"

var hkdfInfo = []byte("ecgcare/vault-api dek wrap v1")

// GenerateKeyPair returns a fresh X25519 key pair (32-byte public and
// private keys).
func GenerateKeyPair() (publicKey, privateKey []byte, err error) {
	privateKey = make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand.Reader, privateKey); err != nil {
		return nil, nil, err
	}
	publicKey, err = curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		Zero(privateKey)
		return nil, nil, err
	}
	return publicKey, privateKey, nil
}

// WrapKey binds a data-encryption key to one recipient's public key using an
// ephemeral X25519 exchange: only the holder of the matching private key can
// compute the shared secret and recover the DEK. The ephemeral public key is
// prepended to the wrapped ciphertext.
func WrapKey(dataKey, recipientPublicKey []byte) (Sealed, error) {
	ephPub, ephPriv, err := GenerateKeyPair()
	if err != nil {
		return Sealed{}, err
	}
	defer Zero(ephPriv)

	kek, err := sharedKEK(ephPriv, recipientPublicKey)
	if err != nil {
		return Sealed{}, ErrAuthenticationFailed
	}
	defer Zero(kek)

	sealed, err := Encrypt(dataKey, kek)
	if err != nil {
		return Sealed{}, err
	}
	sealed.Ciphertext = append(ephPub, sealed.Ciphertext...)
	return sealed, nil
}

// UnwrapKey is the inverse of WrapKey. A wrong private key or any tamper
// yields ErrAuthenticationFailed.
func UnwrapKey(wrapped Sealed, recipientPrivateKey []byte) ([]byte, error) {
	if len(wrapped.Ciphertext) < curve25519.PointSize {
		return nil, ErrAuthenticationFailed
	}
	ephPub := wrapped.Ciphertext[:curve25519.PointSize]

	kek, err := sharedKEK(recipientPrivateKey, ephPub)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	defer Zero(kek)

	return Decrypt(Sealed{
		Ciphertext: wrapped.Ciphertext[curve25519.PointSize:],
		IV:         wrapped.IV,
		Tag:        wrapped.Tag,
	}, kek)
}

// sharedKEK derives the key-encryption key from an X25519 shared secret.
func sharedKEK(privateKey, publicKey []byte) ([]byte, error) {
	shared, err := curve25519.X25519(privateKey, publicKey)
	if err != nil {
		return nil, err
	}
	defer Zero(shared)

	kek := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, hkdfInfo), kek); err != nil {
		return nil, err
	}
	return kek, nil
}
