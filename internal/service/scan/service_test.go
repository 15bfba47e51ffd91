package scan_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository/memory"
	"github.com/ecgcare/vault-api/internal/service/access"
	"github.com/ecgcare/vault-api/internal/service/audit"
	"github.com/ecgcare/vault-api/internal/service/scan"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (s *memBlobStore) Put(_ context.Context, key, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return "mem://" + key, nil
}

func (s *memBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

type fixture struct {
	svc     *scan.Service
	records *memory.RecordRepository
	doctors *memory.DoctorRepository
	blobs   *memBlobStore
}

func newFixture() *fixture {
	records := memory.NewRecordRepository(nil)
	doctors := memory.NewDoctorRepository(nil)
	blobs := newMemBlobStore()
	auditor := audit.NewService(memory.NewAuditRepository(), nil, nil)
	accessSvc := access.NewService(records, doctors, auditor)

	return &fixture{
		svc:     scan.NewService(memory.NewScanRepository(), accessSvc, blobs, auditor),
		records: records,
		doctors: doctors,
		blobs:   blobs,
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

func TestUploadAndDownload(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	recordID := f.addRecord(t, owner)
	content := []byte("fake ecg image bytes")

	uploaded, err := f.svc.Upload(context.Background(), recordID, owner, "image/png", bytes.NewReader(content), nil)
	require.NoError(t, err)
	assert.Equal(t, "image/png", uploaded.Mimetype)
	assert.NotEmpty(t, uploaded.StorageURI)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), uploaded.Checksum)

	meta, body, err := f.svc.Download(context.Background(), uploaded.ID, owner)
	require.NoError(t, err)
	defer body.Close()
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, uploaded.ID, meta.ID)
}

func TestUploadRequiresEditor(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	viewer := f.addDoctor(t)
	recordID := f.addRecord(t, owner)
	require.NoError(t, f.records.CreateGrantWithKey(context.Background(),
		&model.AccessGrant{RecordID: recordID, DoctorID: viewer, Role: model.RoleViewer, GrantedBy: owner},
		&model.RecordKey{RecordID: recordID, DoctorID: viewer},
	))

	_, err := f.svc.Upload(context.Background(), recordID, viewer, "image/png", bytes.NewReader([]byte("x")), nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))

	// Viewer can still read the owner's upload.
	uploaded, err := f.svc.Upload(context.Background(), recordID, owner, "image/png", bytes.NewReader([]byte("x")), nil)
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), uploaded.ID, viewer)
	assert.NoError(t, err)
}

func TestUploadEmptyContent(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	recordID := f.addRecord(t, owner)

	_, err := f.svc.Upload(context.Background(), recordID, owner, "image/png", bytes.NewReader(nil), nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestDeleteRequiresOwner(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	editor := f.addDoctor(t)
	recordID := f.addRecord(t, owner)
	require.NoError(t, f.records.CreateGrantWithKey(context.Background(),
		&model.AccessGrant{RecordID: recordID, DoctorID: editor, Role: model.RoleEditor, GrantedBy: owner},
		&model.RecordKey{RecordID: recordID, DoctorID: editor},
	))

	uploaded, err := f.svc.Upload(context.Background(), recordID, editor, "image/png", bytes.NewReader([]byte("x")), nil)
	require.NoError(t, err)

	err = f.svc.Delete(context.Background(), uploaded.ID, editor)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))

	require.NoError(t, f.svc.Delete(context.Background(), uploaded.ID, owner))
	_, err = f.svc.Get(context.Background(), uploaded.ID, owner)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestListByRecord(t *testing.T) {
	f := newFixture()
	owner := f.addDoctor(t)
	stranger := f.addDoctor(t)
	recordID := f.addRecord(t, owner)

	_, err := f.svc.Upload(context.Background(), recordID, owner, "image/png", bytes.NewReader([]byte("a")), nil)
	require.NoError(t, err)
	_, err = f.svc.Upload(context.Background(), recordID, owner, "image/png", bytes.NewReader([]byte("b")), nil)
	require.NoError(t, err)

	scans, err := f.svc.ListByRecord(context.Background(), recordID, owner)
	require.NoError(t, err)
	assert.Len(t, scans, 2)

	_, err = f.svc.ListByRecord(context.Background(), recordID, stranger)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}
