package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"

	"github.com/ecgcare/vault-api/internal/repository/postgres"
	"github.com/ecgcare/vault-api/pkg/logger"
	"github.com/ecgcare/vault-api/pkg/worker"
)

// Config is read from the environment; the worker runs detached from the API
// and its YAML config.
type Config struct {
	DatabaseURL          string        `envconfig:"DATABASE_URL" required:"true"`
	SessionIdleTimeout   time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
	AuditRetentionDays   int           `envconfig:"AUDIT_RETENTION_DAYS" default:"365"`
	AuditCleanupInterval time.Duration `envconfig:"AUDIT_CLEANUP_INTERVAL" default:"24h"`
	HealthPort           string        `envconfig:"HEALTH_PORT" default:"8081"`
}

func main() {
	l := logger.NewLogger(nil)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		l.Fatal(err, "failed to load worker config")
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		l.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	baseRepo := postgres.NewBaseRepository(db)
	sessionRepo := postgres.NewSessionRepository(baseRepo)
	auditRepo := postgres.NewAuditRepository(baseRepo)

	sessionWorker := worker.NewSessionTimeoutWorker(sessionRepo, cfg.SessionIdleTimeout, cfg.SessionSweepInterval, l)
	auditWorker := worker.NewAuditCleanupWorker(auditRepo, cfg.AuditRetentionDays, cfg.AuditCleanupInterval, l)

	setupHealthCheck(cfg.HealthPort, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		l.Info("shutting down")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sessionWorker.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		auditWorker.Start(ctx)
	}()
	wg.Wait()
}

func setupHealthCheck(port string, l *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			l.Error(err, "health check server failed")
		}
	}()
}
