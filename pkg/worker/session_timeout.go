package worker

import (
	"context"
	"time"

	"github.com/ecgcare/vault-api/internal/repository"
	"github.com/ecgcare/vault-api/pkg/logger"
	"github.com/ecgcare/vault-api/pkg/metrics"
)

// SessionTimeoutWorker ends sessions whose last activity is older than the
// idle timeout, so abandoned logins cannot be refreshed forever.
type SessionTimeoutWorker struct {
	repo        repository.SessionRepository
	idleTimeout time.Duration
	interval    time.Duration
	logger      *logger.Logger
}

func NewSessionTimeoutWorker(repo repository.SessionRepository, idleTimeout, interval time.Duration, l *logger.Logger) *SessionTimeoutWorker {
	if l == nil {
		l = logger.NewLogger(nil)
	}
	return &SessionTimeoutWorker{
		repo:        repo,
		idleTimeout: idleTimeout,
		interval:    interval,
		logger:      l,
	}
}

func (w *SessionTimeoutWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("session timeout worker started", "idle_timeout", w.idleTimeout.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session timeout worker shutting down")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SessionTimeoutWorker) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.idleTimeout)
	ended, err := w.repo.TimeoutIdle(ctx, cutoff)
	if err != nil {
		w.logger.Error(err, "failed to time out idle sessions")
		return
	}
	if ended > 0 {
		metrics.SessionsTimedOut.Add(float64(ended))
		w.logger.Info("timed out idle sessions", "count", ended)
	}
}
