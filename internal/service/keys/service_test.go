package keys

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/service/envelope"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type fakeKeyPairRepo struct {
	pairs map[uuid.UUID]*model.DoctorKeyPair
}

func newFakeKeyPairRepo() *fakeKeyPairRepo {
	return &fakeKeyPairRepo{pairs: make(map[uuid.UUID]*model.DoctorKeyPair)}
}

func (r *fakeKeyPairRepo) Create(_ context.Context, keys *model.DoctorKeyPair) error {
	r.pairs[keys.DoctorID] = keys
	return nil
}

func (r *fakeKeyPairRepo) Get(_ context.Context, doctorID uuid.UUID) (*model.DoctorKeyPair, error) {
	keys, ok := r.pairs[doctorID]
	if !ok {
		return nil, apperrors.NotFound("key pair", nil)
	}
	return keys, nil
}

func testParams() model.KeyParams {
	// Minimal Argon2 cost to keep the suite fast.
	return model.KeyParams{
		Algorithm:   "argon2id",
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		KeyLength:   32,
	}
}

func TestProvisionAndRecover(t *testing.T) {
	repo := newFakeKeyPairRepo()
	svc := NewService(repo, testParams())
	doctorID := uuid.New()

	keys, err := svc.ProvisionKeyPair(context.Background(), doctorID, "correct horse battery")
	require.NoError(t, err)
	assert.Len(t, keys.PublicKey, 32)
	assert.NotEmpty(t, keys.PrivateKeyEnc)
	assert.NotEmpty(t, keys.KDFSalt)

	priv, err := svc.RecoverPrivateKey(context.Background(), doctorID, "correct horse battery")
	require.NoError(t, err)
	defer envelope.Zero(priv)
	assert.Len(t, priv, 32)

	// Recovered private key must match the stored public key.
	dek, err := envelope.GenerateDataKey()
	require.NoError(t, err)
	wrapped, err := envelope.WrapKey(dek, keys.PublicKey)
	require.NoError(t, err)
	unwrapped, err := envelope.UnwrapKey(wrapped, priv)
	require.NoError(t, err)
	assert.Equal(t, dek, unwrapped)
}

func TestRecoverWithWrongSecret(t *testing.T) {
	repo := newFakeKeyPairRepo()
	svc := NewService(repo, testParams())
	doctorID := uuid.New()

	_, err := svc.ProvisionKeyPair(context.Background(), doctorID, "the right secret")
	require.NoError(t, err)

	_, err = svc.RecoverPrivateKey(context.Background(), doctorID, "the wrong secret")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestRecoverUnknownDoctor(t *testing.T) {
	svc := NewService(newFakeKeyPairRepo(), testParams())

	_, err := svc.RecoverPrivateKey(context.Background(), uuid.New(), "whatever")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestPublicKeyCached(t *testing.T) {
	repo := newFakeKeyPairRepo()
	svc := NewService(repo, testParams())
	doctorID := uuid.New()

	keys, err := svc.ProvisionKeyPair(context.Background(), doctorID, "secret12")
	require.NoError(t, err)

	pub, err := svc.PublicKey(context.Background(), doctorID)
	require.NoError(t, err)
	assert.Equal(t, keys.PublicKey, pub)

	// Second lookup served from cache even if the row disappears.
	delete(repo.pairs, doctorID)
	cached, err := svc.PublicKey(context.Background(), doctorID)
	require.NoError(t, err)
	assert.Equal(t, keys.PublicKey, cached)
}

func TestGenerateKeyPairDistinctSalts(t *testing.T) {
	svc := NewService(newFakeKeyPairRepo(), testParams())

	first, err := svc.GenerateKeyPair(uuid.New(), "secret12")
	require.NoError(t, err)
	second, err := svc.GenerateKeyPair(uuid.New(), "secret12")
	require.NoError(t, err)

	assert.NotEqual(t, first.KDFSalt, second.KDFSalt)
	assert.NotEqual(t, first.PublicKey, second.PublicKey)
}
