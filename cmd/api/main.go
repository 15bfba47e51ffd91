package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecgcare/vault-api/internal/config"
	authhandler "github.com/ecgcare/vault-api/internal/handler/auth"
	recordhandler "github.com/ecgcare/vault-api/internal/handler/record"
	scanhandler "github.com/ecgcare/vault-api/internal/handler/scan"
	"github.com/ecgcare/vault-api/internal/middleware"
	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/repository/postgres"
	"github.com/ecgcare/vault-api/internal/router"
	"github.com/ecgcare/vault-api/internal/service/access"
	"github.com/ecgcare/vault-api/internal/service/audit"
	"github.com/ecgcare/vault-api/internal/service/draft"
	"github.com/ecgcare/vault-api/internal/service/identity"
	"github.com/ecgcare/vault-api/internal/service/keys"
	"github.com/ecgcare/vault-api/internal/service/ml"
	"github.com/ecgcare/vault-api/internal/service/scan"
	"github.com/ecgcare/vault-api/internal/service/vault"
	"github.com/ecgcare/vault-api/pkg/auth"
	"github.com/ecgcare/vault-api/pkg/logger"
	"github.com/ecgcare/vault-api/pkg/messaging"
	redisbroker "github.com/ecgcare/vault-api/pkg/messaging/redis"
	"github.com/ecgcare/vault-api/pkg/security"
	s3store "github.com/ecgcare/vault-api/pkg/storage/s3"
)

func main() {
	l := logger.NewLogger(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		l.Fatal(err, "failed to load config")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		l.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redisbroker.NewRedisBroker(cfg.Redis.ToBrokerConfig(), l.Zerolog())
		if err != nil {
			l.Fatal(err, "failed to connect to Redis")
		}
		defer broker.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, err := s3store.NewStore(ctx, s3store.Config{
		Bucket: cfg.Storage.Bucket,
		Prefix: cfg.Storage.Prefix,
		Region: cfg.Storage.Region,
	})
	if err != nil {
		l.Fatal(err, "failed to initialize blob store")
	}

	// Repositories
	baseRepo := postgres.NewBaseRepository(db)
	doctorRepo := postgres.NewDoctorRepository(baseRepo)
	keyPairRepo := postgres.NewKeyPairRepository(baseRepo)
	sessionRepo := postgres.NewSessionRepository(baseRepo)
	recordRepo := postgres.NewRecordRepository(baseRepo)
	auditRepo := postgres.NewAuditRepository(baseRepo)
	scanRepo := postgres.NewScanRepository(baseRepo)
	mlRepo := postgres.NewMLResultRepository(baseRepo)
	draftRepo := postgres.NewDraftRepository(baseRepo)

	// Services
	auditSvc := audit.NewService(auditRepo, broker, l)
	keySvc := keys.NewService(keyPairRepo, model.KeyParams{
		Algorithm:   "argon2id",
		Memory:      cfg.Crypto.KDFMemoryKB,
		Iterations:  cfg.Crypto.KDFIterations,
		Parallelism: cfg.Crypto.KDFParallelism,
		KeyLength:   cfg.Crypto.KDFKeyLengthBytes,
	})
	jwtSvc := auth.NewJWTService(auth.Config{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTTL(),
		RefreshTTL: cfg.JWT.RefreshTTL(),
	})
	hasher := security.NewBcryptHasher(cfg.Crypto.BcryptCost)
	identitySvc := identity.NewService(doctorRepo, sessionRepo, keySvc, hasher, jwtSvc, auditSvc)
	accessSvc := access.NewService(recordRepo, doctorRepo, auditSvc)
	vaultSvc := vault.NewService(recordRepo, keySvc, accessSvc, auditSvc, l)
	draftSvc := draft.NewService(draftRepo, accessSvc, vaultSvc)
	scanSvc := scan.NewService(scanRepo, accessSvc, blobs, auditSvc)
	inferencer := ml.NewHTTPInferencer(ml.ClientConfig{
		BaseURL:    cfg.ML.BaseURL,
		APIKey:     cfg.ML.APIKey,
		Timeout:    time.Duration(cfg.ML.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.ML.MaxRetries,
	})
	mlSvc := ml.NewService(scanRepo, mlRepo, accessSvc, inferencer, auditSvc)

	// HTTP layer
	authMW := middleware.NewAuthMiddleware(identitySvc)
	r := router.NewRouter(
		authMW,
		authhandler.NewHandler(identitySvc),
		recordhandler.NewHandler(vaultSvc, draftSvc),
		scanhandler.NewHandler(scanSvc, mlSvc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		l.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal(err, "server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	l.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "graceful shutdown failed")
	}
}
