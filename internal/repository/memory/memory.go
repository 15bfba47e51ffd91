// Package memory provides in-memory repository implementations. They back
// the service test suites and honor the same pairing and atomicity rules as
// the postgres implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/model"
	apperrors "github.com/ecgcare/vault-api/pkg/errors"
)

type pairKey struct {
	Record uuid.UUID
	Doctor uuid.UUID
}

type DoctorRepository struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]*model.Doctor
	creds   map[uuid.UUID]*model.Credential
	keys    *KeyPairRepository
}

func NewDoctorRepository(keys *KeyPairRepository) *DoctorRepository {
	return &DoctorRepository{
		doctors: make(map[uuid.UUID]*model.Doctor),
		creds:   make(map[uuid.UUID]*model.Credential),
		keys:    keys,
	}
}

func (r *DoctorRepository) Create(ctx context.Context, doctor *model.Doctor, cred *model.Credential, keys *model.DoctorKeyPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.doctors {
		if d.Email == doctor.Email {
			return apperrors.Conflict("email already registered", nil)
		}
	}
	r.doctors[doctor.ID] = doctor
	r.creds[doctor.ID] = cred
	if r.keys != nil {
		if err := r.keys.Create(ctx, keys); err != nil {
			delete(r.doctors, doctor.ID)
			delete(r.creds, doctor.ID)
			return err
		}
	}
	return nil
}

func (r *DoctorRepository) Get(_ context.Context, id uuid.UUID) (*model.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, apperrors.NotFound("doctor", nil)
	}
	return d, nil
}

func (r *DoctorRepository) GetByEmail(_ context.Context, email string) (*model.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.doctors {
		if d.Email == email {
			return d, nil
		}
	}
	return nil, apperrors.NotFound("doctor", nil)
}

func (r *DoctorRepository) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.doctors[id]
	return ok, nil
}

func (r *DoctorRepository) GetCredential(_ context.Context, doctorID uuid.UUID) (*model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creds[doctorID]
	if !ok {
		return nil, apperrors.NotFound("credential", nil)
	}
	return c, nil
}

func (r *DoctorRepository) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return apperrors.NotFound("doctor", nil)
	}
	d.IsActive = active
	return nil
}

type KeyPairRepository struct {
	mu    sync.RWMutex
	pairs map[uuid.UUID]*model.DoctorKeyPair
}

func NewKeyPairRepository() *KeyPairRepository {
	return &KeyPairRepository{pairs: make(map[uuid.UUID]*model.DoctorKeyPair)}
}

func (r *KeyPairRepository) Create(_ context.Context, keys *model.DoctorKeyPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[keys.DoctorID]; ok {
		return apperrors.Conflict("key pair already exists", nil)
	}
	r.pairs[keys.DoctorID] = keys
	return nil
}

func (r *KeyPairRepository) Get(_ context.Context, doctorID uuid.UUID) (*model.DoctorKeyPair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys, ok := r.pairs[doctorID]
	if !ok {
		return nil, apperrors.NotFound("key pair", nil)
	}
	return keys, nil
}

type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*model.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[uuid.UUID]*model.Session)}
}

func (r *SessionRepository) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *SessionRepository) Get(_ context.Context, id uuid.UUID) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session", nil)
	}
	return s, nil
}

func (r *SessionRepository) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return apperrors.NotFound("session", nil)
	}
	s.LastActivityAt = at
	return nil
}

func (r *SessionRepository) End(_ context.Context, id, doctorID uuid.UUID, at time.Time, reason model.SessionEndReason) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.DoctorID != doctorID || s.LogoutAt != nil {
		return false, nil
	}
	s.LogoutAt = &at
	s.EndedBy = &reason
	return true, nil
}

func (r *SessionRepository) TimeoutIdle(_ context.Context, lastActivityBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ended int64
	now := time.Now()
	reason := model.SessionEndTimeout
	for _, s := range r.sessions {
		if s.LogoutAt == nil && s.LastActivityAt.Before(lastActivityBefore) {
			at := now
			s.LogoutAt = &at
			s.EndedBy = &reason
			ended++
		}
	}
	return ended, nil
}

type RecordRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*model.Record
	grants  map[pairKey]*model.AccessGrant
	keys    map[pairKey]*model.RecordKey
	drafts  *DraftRepository
}

// NewRecordRepository builds an in-memory record store. drafts may be nil;
// when set, record deletion cascades to it.
func NewRecordRepository(drafts *DraftRepository) *RecordRepository {
	return &RecordRepository{
		records: make(map[uuid.UUID]*model.Record),
		grants:  make(map[pairKey]*model.AccessGrant),
		keys:    make(map[pairKey]*model.RecordKey),
		drafts:  drafts,
	}
}

func (r *RecordRepository) Create(_ context.Context, record *model.Record, key *model.RecordKey, grant *model.AccessGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID]; ok {
		return apperrors.Conflict("record already exists", nil)
	}
	r.records[record.ID] = record
	k := pairKey{record.ID, grant.DoctorID}
	r.grants[k] = grant
	r.keys[k] = key
	return nil
}

func (r *RecordRepository) Get(_ context.Context, id uuid.UUID) (*model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, apperrors.NotFound("record", nil)
	}
	return rec, nil
}

func (r *RecordRepository) UpdatePayload(_ context.Context, id uuid.UUID, sealed model.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return apperrors.NotFound("record", nil)
	}
	rec.PayloadEnc = sealed.PayloadEnc
	rec.PayloadIV = sealed.PayloadIV
	rec.PayloadTag = sealed.PayloadTag
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *RecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return apperrors.NotFound("record", nil)
	}
	delete(r.records, id)
	for k := range r.grants {
		if k.Record == id {
			delete(r.grants, k)
			delete(r.keys, k)
		}
	}
	if r.drafts != nil {
		r.drafts.deleteByRecord(id)
	}
	return nil
}

func (r *RecordRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID, p model.Pagination) ([]*model.RecordSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.RecordSummary
	for k, g := range r.grants {
		if k.Doctor != doctorID {
			continue
		}
		rec := r.records[k.Record]
		out = append(out, &model.RecordSummary{
			ID:             rec.ID,
			AnonymizedCode: rec.AnonymizedCode,
			Role:           g.Role,
			CreatedAt:      rec.CreatedAt,
			UpdatedAt:      rec.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *RecordRepository) GetKey(_ context.Context, recordID, doctorID uuid.UUID) (*model.RecordKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[pairKey{recordID, doctorID}]
	if !ok {
		return nil, apperrors.NotFound("record key", nil)
	}
	return key, nil
}

func (r *RecordRepository) RoleOf(_ context.Context, recordID, doctorID uuid.UUID) (model.Role, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grants[pairKey{recordID, doctorID}]
	if !ok {
		return "", false, nil
	}
	return g.Role, true, nil
}

func (r *RecordRepository) CreateGrantWithKey(_ context.Context, grant *model.AccessGrant, key *model.RecordKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := pairKey{grant.RecordID, grant.DoctorID}
	if _, ok := r.grants[k]; ok {
		return apperrors.Conflict("access already granted", nil)
	}
	r.grants[k] = grant
	r.keys[k] = key
	return nil
}

func (r *RecordRepository) DeleteGrantWithKey(_ context.Context, recordID, doctorID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := pairKey{recordID, doctorID}
	if _, ok := r.grants[k]; !ok {
		return apperrors.NotFound("access grant", nil)
	}
	delete(r.grants, k)
	delete(r.keys, k)
	return nil
}

func (r *RecordRepository) UpdateGrantRole(_ context.Context, recordID, doctorID uuid.UUID, role model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[pairKey{recordID, doctorID}]
	if !ok {
		return apperrors.NotFound("access grant", nil)
	}
	g.Role = role
	return nil
}

func (r *RecordRepository) ListAccess(_ context.Context, recordID uuid.UUID) ([]*model.AccessEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.AccessEntry
	for k, g := range r.grants {
		if k.Record != recordID {
			continue
		}
		out = append(out, &model.AccessEntry{
			DoctorID:  g.DoctorID,
			Role:      g.Role,
			GrantedBy: g.GrantedBy,
			GrantedAt: g.GrantedAt,
		})
	}
	return out, nil
}

func (r *RecordRepository) CountOwners(_ context.Context, recordID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for k, g := range r.grants {
		if k.Record == recordID && g.Role == model.RoleOwner {
			count++
		}
	}
	return count, nil
}

// DeleteKeyRow removes a wrapped key without touching the grant. Only for
// tests that need to simulate a broken pairing invariant.
func (r *RecordRepository) DeleteKeyRow(recordID, doctorID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, pairKey{recordID, doctorID})
}

type AuditRepository struct {
	mu     sync.RWMutex
	events []*model.AuditEvent
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Create(_ context.Context, event *model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *AuditRepository) List(_ context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.AuditEvent
	for _, e := range r.events {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *AuditRepository) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var deleted int64
	for _, e := range r.events {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return deleted, nil
}

// Events returns all recorded events, for assertions.
func (r *AuditRepository) Events() []*model.AuditEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*model.AuditEvent{}, r.events...)
}

type ScanRepository struct {
	mu    sync.RWMutex
	scans map[uuid.UUID]*model.Scan
}

func NewScanRepository() *ScanRepository {
	return &ScanRepository{scans: make(map[uuid.UUID]*model.Scan)}
}

func (r *ScanRepository) Create(_ context.Context, scan *model.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans[scan.ID] = scan
	return nil
}

func (r *ScanRepository) Get(_ context.Context, id uuid.UUID) (*model.Scan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scans[id]
	if !ok {
		return nil, apperrors.NotFound("scan", nil)
	}
	return s, nil
}

func (r *ScanRepository) ListByRecord(_ context.Context, recordID uuid.UUID) ([]*model.Scan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Scan
	for _, s := range r.scans {
		if s.RecordID == recordID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *ScanRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scans[id]; !ok {
		return apperrors.NotFound("scan", nil)
	}
	delete(r.scans, id)
	return nil
}

type MLResultRepository struct {
	mu      sync.RWMutex
	results []*model.MLResult
}

func NewMLResultRepository() *MLResultRepository {
	return &MLResultRepository{}
}

func (r *MLResultRepository) Create(_ context.Context, result *model.MLResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *MLResultRepository) ListByScan(_ context.Context, scanID uuid.UUID) ([]*model.MLResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.MLResult
	for _, res := range r.results {
		if res.ScanID == scanID {
			out = append(out, res)
		}
	}
	return out, nil
}

type DraftRepository struct {
	mu     sync.RWMutex
	drafts map[pairKey]*model.Draft
}

func NewDraftRepository() *DraftRepository {
	return &DraftRepository{drafts: make(map[pairKey]*model.Draft)}
}

func (r *DraftRepository) Upsert(_ context.Context, draft *model.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[pairKey{draft.RecordID, draft.DoctorID}] = draft
	return nil
}

func (r *DraftRepository) Get(_ context.Context, recordID, doctorID uuid.UUID) (*model.Draft, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drafts[pairKey{recordID, doctorID}]
	if !ok {
		return nil, apperrors.NotFound("draft", nil)
	}
	return d, nil
}

func (r *DraftRepository) Delete(_ context.Context, recordID, doctorID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, pairKey{recordID, doctorID})
	return nil
}

func (r *DraftRepository) deleteByRecord(recordID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.drafts {
		if k.Record == recordID {
			delete(r.drafts, k)
		}
	}
}
