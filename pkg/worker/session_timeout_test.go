package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository/memory"
)

func TestSessionTimeoutSweep(t *testing.T) {
	repo := memory.NewSessionRepository()
	now := time.Now()

	idle := &model.Session{ID: uuid.New(), DoctorID: uuid.New(), LoginAt: now.Add(-2 * time.Hour), LastActivityAt: now.Add(-time.Hour)}
	active := &model.Session{ID: uuid.New(), DoctorID: uuid.New(), LoginAt: now, LastActivityAt: now}
	require.NoError(t, repo.Create(context.Background(), idle))
	require.NoError(t, repo.Create(context.Background(), active))

	w := NewSessionTimeoutWorker(repo, 30*time.Minute, time.Minute, nil)
	w.sweep(context.Background())

	timedOut, err := repo.Get(context.Background(), idle.ID)
	require.NoError(t, err)
	assert.False(t, timedOut.Active())
	require.NotNil(t, timedOut.EndedBy)
	assert.Equal(t, model.SessionEndTimeout, *timedOut.EndedBy)

	still, err := repo.Get(context.Background(), active.ID)
	require.NoError(t, err)
	assert.True(t, still.Active())
}
