package vault_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository/memory"
	"github.com/ecgcare/vault-api/internal/service/access"
	"github.com/ecgcare/vault-api/internal/service/audit"
	"github.com/ecgcare/vault-api/internal/service/keys"
	"github.com/ecgcare/vault-api/internal/service/vault"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type fixture struct {
	svc     *vault.Service
	keys    *keys.Service
	records *memory.RecordRepository
	doctors *memory.DoctorRepository
	audits  *memory.AuditRepository
}

func newFixture() *fixture {
	keyPairs := memory.NewKeyPairRepository()
	doctors := memory.NewDoctorRepository(keyPairs)
	records := memory.NewRecordRepository(memory.NewDraftRepository())
	audits := memory.NewAuditRepository()

	keySvc := keys.NewService(keyPairs, model.KeyParams{
		Algorithm:   "argon2id",
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		KeyLength:   32,
	})
	auditor := audit.NewService(audits, nil, nil)
	accessSvc := access.NewService(records, doctors, auditor)

	return &fixture{
		svc:     vault.NewService(records, keySvc, accessSvc, auditor, nil),
		keys:    keySvc,
		records: records,
		doctors: doctors,
		audits:  audits,
	}
}

func (f *fixture) registerDoctor(t *testing.T, passphrase string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	keyPair, err := f.keys.GenerateKeyPair(id, passphrase)
	require.NoError(t, err)
	err = f.doctors.Create(context.Background(), &model.Doctor{
		Base:     model.Base{ID: id},
		Email:    id.String() + "@clinic.test",
		IsActive: true,
	}, &model.Credential{DoctorID: id}, keyPair)
	require.NoError(t, err)
	return id
}

func TestCreateAndRead(t *testing.T) {
	f := newFixture()
	doctor := f.registerDoctor(t, "alice-passphrase")
	payload := []byte(`{"diagnosis":"sinus rhythm"}`)

	record, err := f.svc.Create(context.Background(), doctor, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, record.AnonymizedCode)
	assert.NotEqual(t, payload, record.PayloadEnc)

	got, plaintext, err := f.svc.Read(context.Background(), record.ID, doctor, "alice-passphrase")
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, payload, plaintext)
}

func TestReadWithWrongPassphrase(t *testing.T) {
	f := newFixture()
	doctor := f.registerDoctor(t, "right")

	record, err := f.svc.Create(context.Background(), doctor, []byte("secret"))
	require.NoError(t, err)

	_, _, err = f.svc.Read(context.Background(), record.ID, doctor, "wrong")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestReadWithoutAccess(t *testing.T) {
	f := newFixture()
	alice := f.registerDoctor(t, "alice")
	bob := f.registerDoctor(t, "bob")

	record, err := f.svc.Create(context.Background(), alice, []byte("private"))
	require.NoError(t, err)

	_, _, err = f.svc.Read(context.Background(), record.ID, bob, "bob")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestShareFlow(t *testing.T) {
	f := newFixture()
	alice := f.registerDoctor(t, "alice-pass")
	bob := f.registerDoctor(t, "bob-pass")
	payload := []byte(`{"finding":"afib"}`)

	record, err := f.svc.Create(context.Background(), alice, payload)
	require.NoError(t, err)

	// Alice shares with Bob as viewer; Bob reads with his own passphrase.
	require.NoError(t, f.svc.Share(context.Background(), record.ID, alice, bob, model.RoleViewer, "alice-pass"))

	_, plaintext, err := f.svc.Read(context.Background(), record.ID, bob, "bob-pass")
	require.NoError(t, err)
	assert.Equal(t, payload, plaintext)

	// Viewer cannot update.
	err = f.svc.Update(context.Background(), record.ID, bob, "bob-pass", []byte("edited"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))

	// Promote to editor; update now goes through and Alice sees it.
	require.NoError(t, f.svc.UpdateRole(context.Background(), record.ID, alice, bob, model.RoleEditor))
	updated := []byte(`{"finding":"afib","note":"confirmed"}`)
	require.NoError(t, f.svc.Update(context.Background(), record.ID, bob, "bob-pass", updated))

	_, plaintext, err = f.svc.Read(context.Background(), record.ID, alice, "alice-pass")
	require.NoError(t, err)
	assert.Equal(t, updated, plaintext)

	// Revoke; Bob loses both grant and key.
	require.NoError(t, f.svc.Revoke(context.Background(), record.ID, alice, bob))
	_, _, err = f.svc.Read(context.Background(), record.ID, bob, "bob-pass")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
	_, err = f.records.GetKey(context.Background(), record.ID, bob)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestShareRequiresOwner(t *testing.T) {
	f := newFixture()
	alice := f.registerDoctor(t, "alice")
	bob := f.registerDoctor(t, "bob")
	carol := f.registerDoctor(t, "carol")

	record, err := f.svc.Create(context.Background(), alice, []byte("data"))
	require.NoError(t, err)
	require.NoError(t, f.svc.Share(context.Background(), record.ID, alice, bob, model.RoleEditor, "alice"))

	err = f.svc.Share(context.Background(), record.ID, bob, carol, model.RoleViewer, "bob")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestShareWithUnknownRecipient(t *testing.T) {
	f := newFixture()
	alice := f.registerDoctor(t, "alice")

	record, err := f.svc.Create(context.Background(), alice, []byte("data"))
	require.NoError(t, err)

	err = f.svc.Share(context.Background(), record.ID, alice, uuid.New(), model.RoleViewer, "alice")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestUpdateKeepsDEK(t *testing.T) {
	f := newFixture()
	alice := f.registerDoctor(t, "alice")
	bob := f.registerDoctor(t, "bob")

	record, err := f.svc.Create(context.Background(), alice, []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, f.svc.Share(context.Background(), record.ID, alice, bob, model.RoleViewer, "alice"))

	// Alice updates; Bob's wrapped key still opens the new payload.
	require.NoError(t, f.svc.Update(context.Background(), record.ID, alice, "alice", []byte("v2")))
	_, plaintext, err := f.svc.Read(context.Background(), record.ID, bob, "bob")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), plaintext)
}

func TestDelete(t *testing.T) {
	f := newFixture()
	alice := f.registerDoctor(t, "alice")
	bob := f.registerDoctor(t, "bob")

	record, err := f.svc.Create(context.Background(), alice, []byte("data"))
	require.NoError(t, err)
	require.NoError(t, f.svc.Share(context.Background(), record.ID, alice, bob, model.RoleEditor, "alice"))

	// Editor cannot delete.
	err = f.svc.Delete(context.Background(), record.ID, bob)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))

	require.NoError(t, f.svc.Delete(context.Background(), record.ID, alice))
	_, _, err = f.svc.Read(context.Background(), record.ID, alice, "alice")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestList(t *testing.T) {
	f := newFixture()
	alice := f.registerDoctor(t, "alice")
	bob := f.registerDoctor(t, "bob")

	first, err := f.svc.Create(context.Background(), alice, []byte("one"))
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), alice, []byte("two"))
	require.NoError(t, err)
	require.NoError(t, f.svc.Share(context.Background(), first.ID, alice, bob, model.RoleViewer, "alice"))

	mine, err := f.svc.List(context.Background(), alice, model.Pagination{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	shared, err := f.svc.List(context.Background(), bob, model.Pagination{})
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, first.ID, shared[0].ID)
	assert.Equal(t, model.RoleViewer, shared[0].Role)
}

func TestMissingKeyRowIsCryptoError(t *testing.T) {
	f := newFixture()
	alice := f.registerDoctor(t, "alice")

	record, err := f.svc.Create(context.Background(), alice, []byte("data"))
	require.NoError(t, err)

	// Simulate a broken pairing invariant: grant present, key row gone.
	f.records.DeleteKeyRow(record.ID, alice)

	_, _, err = f.svc.Read(context.Background(), record.ID, alice, "alice")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCrypto))
}

func TestAuditTrail(t *testing.T) {
	f := newFixture()
	alice := f.registerDoctor(t, "alice")
	bob := f.registerDoctor(t, "bob")

	record, err := f.svc.Create(context.Background(), alice, []byte("data"))
	require.NoError(t, err)
	require.NoError(t, f.svc.Share(context.Background(), record.ID, alice, bob, model.RoleViewer, "alice"))
	require.NoError(t, f.svc.Revoke(context.Background(), record.ID, alice, bob))

	actions := make([]string, 0)
	for _, e := range f.audits.Events() {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, model.AuditActionCreate)
	assert.Contains(t, actions, model.AuditActionShare)
	assert.Contains(t, actions, model.AuditActionRevoke)
}
