package access_test

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
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type fixture struct {
	svc     *access.Service
	records *memory.RecordRepository
	doctors *memory.DoctorRepository
}

func newFixture() *fixture {
	records := memory.NewRecordRepository(nil)
	doctors := memory.NewDoctorRepository(nil)
	auditor := audit.NewService(memory.NewAuditRepository(), nil, nil)
	return &fixture{
		svc:     access.NewService(records, doctors, auditor),
		records: records,
		doctors: doctors,
	}
}

func (f *fixture) addDoctor(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := f.doctors.Create(context.Background(), &model.Doctor{
		Base:     model.Base{ID: id},
		Email:    id.String() + "@clinic.test",
		IsActive: true,
	}, &model.Credential{DoctorID: id}, nil)
	require.NoError(t, err)
	return id
}

func (f *fixture) addRecord(t *testing.T, ownerID uuid.UUID) uuid.UUID {
	t.Helper()
	recordID := uuid.New()
	err := f.records.Create(context.Background(),
		&model.Record{Base: model.Base{ID: recordID}},
		&model.RecordKey{RecordID: recordID, DoctorID: ownerID},
		&model.AccessGrant{RecordID: recordID, DoctorID: ownerID, Role: model.RoleOwner, GrantedBy: ownerID},
	)
	require.NoError(t, err)
	return recordID
}

func keyFor(recordID, doctorID uuid.UUID) *model.RecordKey {
	return &model.RecordKey{RecordID: recordID, DoctorID: doctorID}
}

func TestRequireRole(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	viewer := f.addDoctor(t)
	stranger := f.addDoctor(t)
	recordID := f.addRecord(t, owner)

	require.NoError(t, f.svc.Grant(context.Background(), recordID, owner, viewer, model.RoleViewer, keyFor(recordID, viewer)))

	role, err := f.svc.RequireRole(context.Background(), recordID, owner, model.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, role)

	// Insufficient role and no role at all both come back Forbidden.
	_, err = f.svc.RequireRole(context.Background(), recordID, viewer, model.RoleEditor)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))

	_, err = f.svc.RequireRole(context.Background(), recordID, stranger, model.RoleViewer)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestGrant(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	recipient := f.addDoctor(t)
	recordID := f.addRecord(t, owner)

	require.NoError(t, f.svc.Grant(context.Background(), recordID, owner, recipient, model.RoleEditor, keyFor(recordID, recipient)))

	role, ok, err := f.svc.RoleOf(context.Background(), recordID, recipient)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.RoleEditor, role)

	// Grant and key row created together.
	_, err = f.records.GetKey(context.Background(), recordID, recipient)
	assert.NoError(t, err)

	// Duplicate grant conflicts.
	err = f.svc.Grant(context.Background(), recordID, owner, recipient, model.RoleViewer, keyFor(recordID, recipient))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestGrantRequiresOwner(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	editor := f.addDoctor(t)
	recipient := f.addDoctor(t)
	recordID := f.addRecord(t, owner)

	require.NoError(t, f.svc.Grant(context.Background(), recordID, owner, editor, model.RoleEditor, keyFor(recordID, editor)))

	err := f.svc.Grant(context.Background(), recordID, editor, recipient, model.RoleViewer, keyFor(recordID, recipient))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestGrantUnknownRecipient(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	recordID := f.addRecord(t, owner)

	err := f.svc.Grant(context.Background(), recordID, owner, uuid.New(), model.RoleViewer, &model.RecordKey{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestRevoke(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	viewer := f.addDoctor(t)
	recordID := f.addRecord(t, owner)

	require.NoError(t, f.svc.Grant(context.Background(), recordID, owner, viewer, model.RoleViewer, keyFor(recordID, viewer)))
	require.NoError(t, f.svc.Revoke(context.Background(), recordID, owner, viewer))

	// Grant and key both gone.
	_, ok, err := f.svc.RoleOf(context.Background(), recordID, viewer)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.records.GetKey(context.Background(), recordID, viewer)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	// Revoking again: the grant no longer exists.
	err = f.svc.Revoke(context.Background(), recordID, owner, viewer)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestRevokeLastOwnerRefused(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	recordID := f.addRecord(t, owner)

	err := f.svc.Revoke(context.Background(), recordID, owner, owner)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))

	// With a second owner present, revoking the first is allowed.
	second := f.addDoctor(t)
	require.NoError(t, f.svc.Grant(context.Background(), recordID, owner, second, model.RoleOwner, keyFor(recordID, second)))
	require.NoError(t, f.svc.Revoke(context.Background(), recordID, second, owner))
}

func TestUpdateRole(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	viewer := f.addDoctor(t)
	recordID := f.addRecord(t, owner)

	require.NoError(t, f.svc.Grant(context.Background(), recordID, owner, viewer, model.RoleViewer, keyFor(recordID, viewer)))
	require.NoError(t, f.svc.UpdateRole(context.Background(), recordID, owner, viewer, model.RoleEditor))

	role, _, err := f.svc.RoleOf(context.Background(), recordID, viewer)
	require.NoError(t, err)
	assert.Equal(t, model.RoleEditor, role)

	// Demoting the only owner is refused.
	err = f.svc.UpdateRole(context.Background(), recordID, owner, owner, model.RoleEditor)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestListAccess(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	viewer := f.addDoctor(t)
	stranger := f.addDoctor(t)
	recordID := f.addRecord(t, owner)

	require.NoError(t, f.svc.Grant(context.Background(), recordID, owner, viewer, model.RoleViewer, keyFor(recordID, viewer)))

	entries, err := f.svc.List(context.Background(), recordID, viewer)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = f.svc.List(context.Background(), recordID, stranger)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}
