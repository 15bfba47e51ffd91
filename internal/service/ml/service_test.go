package ml_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository/memory"
	"github.com/ecgcare/vault-api/internal/service/access"
	"github.com/ecgcare/vault-api/internal/service/audit"
	"github.com/ecgcare/vault-api/internal/service/ml"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type fakeInferencer struct {
	prediction *ml.Prediction
	calledWith string
}

func (f *fakeInferencer) Predict(_ context.Context, storageURI string) (*ml.Prediction, error) {
	f.calledWith = storageURI
	return f.prediction, nil
}

type fixture struct {
	svc        *ml.Service
	scans      *memory.ScanRepository
	records    *memory.RecordRepository
	doctors    *memory.DoctorRepository
	inferencer *fakeInferencer
}

func newFixture() *fixture {
	records := memory.NewRecordRepository(nil)
	doctors := memory.NewDoctorRepository(nil)
	scans := memory.NewScanRepository()
	auditor := audit.NewService(memory.NewAuditRepository(), nil, nil)
	accessSvc := access.NewService(records, doctors, auditor)
	inferencer := &fakeInferencer{
		prediction: &ml.Prediction{Label: "afib", Confidence: 0.93, ModelName: "rhythm-v2"},
	}

	return &fixture{
		svc:        ml.NewService(scans, memory.NewMLResultRepository(), accessSvc, inferencer, auditor),
		scans:      scans,
		records:    records,
		doctors:    doctors,
		inferencer: inferencer,
	}
}

func (f *fixture) seed(t *testing.T) (doctorID, scanID uuid.UUID) {
	t.Helper()
	doctorID = uuid.New()
	err := f.doctors.Create(context.Background(), &model.Doctor{
		Base:     model.Base{ID: doctorID},
		Email:    doctorID.String() + "@clinic.test",
		IsActive: true,
	}, &model.Credential{DoctorID: doctorID}, nil)
	require.NoError(t, err)

	recordID := uuid.New()
	err = f.records.Create(context.Background(),
		&model.Record{Base: model.Base{ID: recordID}},
		&model.RecordKey{RecordID: recordID, DoctorID: doctorID},
		&model.AccessGrant{RecordID: recordID, DoctorID: doctorID, Role: model.RoleOwner, GrantedBy: doctorID},
	)
	require.NoError(t, err)

	scanID = uuid.New()
	err = f.scans.Create(context.Background(), &model.Scan{
		ID:         scanID,
		RecordID:   recordID,
		StorageURI: "s3://bucket/scans/" + scanID.String(),
		UploadedBy: doctorID,
	})
	require.NoError(t, err)
	return doctorID, scanID
}

func TestPredict(t *testing.T) {
	f := newFixture()
	doctorID, scanID := f.seed(t)

	result, err := f.svc.Predict(context.Background(), scanID, doctorID)
	require.NoError(t, err)
	assert.Equal(t, "afib", result.Label)
	assert.InDelta(t, 0.93, result.Confidence, 1e-9)
	assert.Equal(t, "rhythm-v2", result.ModelName)
	assert.Equal(t, doctorID, result.RequestedBy)
	assert.True(t, bytes.Contains([]byte(f.inferencer.calledWith), []byte(scanID.String())))

	results, err := f.svc.Results(context.Background(), scanID, doctorID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestPredictWithoutAccess(t *testing.T) {
	f := newFixture()
	_, scanID := f.seed(t)

	stranger := uuid.New()
	err := f.doctors.Create(context.Background(), &model.Doctor{
		Base:     model.Base{ID: stranger},
		Email:    stranger.String() + "@clinic.test",
		IsActive: true,
	}, &model.Credential{DoctorID: stranger}, nil)
	require.NoError(t, err)

	_, err = f.svc.Predict(context.Background(), scanID, stranger)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestPredictUnknownScan(t *testing.T) {
	f := newFixture()
	doctorID, _ := f.seed(t)

	_, err := f.svc.Predict(context.Background(), uuid.New(), doctorID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}
