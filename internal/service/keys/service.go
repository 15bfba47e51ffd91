// Package keys manages each doctor's asymmetric key material. Private keys
// are only ever stored sealed under a KEK derived from the doctor's
// credential secret; the server cannot recover them on its own.
package keys

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/argon2"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository"
	"github.com/ecgcare/vault-api/internal/service/envelope"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

const saltSize = 16

// DefaultParams returns the recommended Argon2id parameters for deriving the
// private-key KEK.
func DefaultParams() model.KeyParams {
	return model.KeyParams{
		Algorithm:   "argon2id",
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		KeyLength:   32,
	}
}

type Service struct {
	repo   repository.KeyPairRepository
	params model.KeyParams

	// Public keys are immutable once provisioned, so a short TTL cache is
	// safe and saves a lookup on every wrap.
	pubCache *gocache.Cache
}

func NewService(repo repository.KeyPairRepository, params model.KeyParams) *Service {
	if params.KeyLength == 0 {
		params = DefaultParams()
	}
	return &Service{
		repo:     repo,
		params:   params,
		pubCache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// GenerateKeyPair builds a fresh key pair for a doctor without persisting it,
// so registration can write doctor, credential and keys in one transaction.
func (s *Service) GenerateKeyPair(doctorID uuid.UUID, credentialSecret string) (*model.DoctorKeyPair, error) {
	publicKey, privateKey, err := envelope.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	defer envelope.Zero(privateKey)

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	kek := deriveKEK(credentialSecret, salt, s.params)
	defer envelope.Zero(kek)

	sealed, err := envelope.Encrypt(privateKey, kek)
	if err != nil {
		return nil, fmt.Errorf("failed to seal private key: %w", err)
	}

	return &model.DoctorKeyPair{
		DoctorID:      doctorID,
		PublicKey:     publicKey,
		PrivateKeyEnc: sealed.Ciphertext,
		PrivateKeyIV:  sealed.IV,
		PrivateKeyTag: sealed.Tag,
		KDFSalt:       salt,
		Params:        s.params,
		CreatedAt:     time.Now(),
	}, nil
}

// ProvisionKeyPair generates and persists a key pair for a doctor.
func (s *Service) ProvisionKeyPair(ctx context.Context, doctorID uuid.UUID, credentialSecret string) (*model.DoctorKeyPair, error) {
	keys, err := s.GenerateKeyPair(doctorID, credentialSecret)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// RecoverPrivateKey re-derives the KEK from the supplied secret and the
// stored salt and parameters, then opens the sealed private key. The result
// is scoped to a single operation: the caller must envelope.Zero it when
// done, on error paths included.
func (s *Service) RecoverPrivateKey(ctx context.Context, doctorID uuid.UUID, credentialSecret string) ([]byte, error) {
	keys, err := s.repo.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	kek := deriveKEK(credentialSecret, keys.KDFSalt, keys.Params)
	defer envelope.Zero(kek)

	privateKey, err := envelope.Decrypt(envelope.Sealed{
		Ciphertext: keys.PrivateKeyEnc,
		IV:         keys.PrivateKeyIV,
		Tag:        keys.PrivateKeyTag,
	}, kek)
	if err != nil {
		if errors.Is(err, envelope.ErrAuthenticationFailed) {
			return nil, apperrors.Unauthorized(err)
		}
		return nil, apperrors.Crypto("failed to recover private key", err)
	}
	return privateKey, nil
}

// PublicKey looks up a doctor's public key. No secret required.
func (s *Service) PublicKey(ctx context.Context, doctorID uuid.UUID) ([]byte, error) {
	if cached, ok := s.pubCache.Get(doctorID.String()); ok {
		return cached.([]byte), nil
	}

	keys, err := s.repo.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	s.pubCache.Set(doctorID.String(), keys.PublicKey, gocache.DefaultExpiration)
	return keys.PublicKey, nil
}

func deriveKEK(secret string, salt []byte, params model.KeyParams) []byte {
	return argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
}
