package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trustlessid/internal/audit"
	"trustlessid/internal/credential"
	jwttoken "trustlessid/internal/jwt_token"
	"trustlessid/internal/platform/config"
	"trustlessid/internal/platform/httpserver"
	"trustlessid/internal/platform/logger"
	"trustlessid/internal/platform/postgres"
	platformredis "trustlessid/internal/platform/redis"
	httptransport "trustlessid/internal/transport/http"
	"trustlessid/internal/verification"
	"trustlessid/internal/verification/handler"
	"trustlessid/internal/verification/metrics"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx := context.Background()

	var (
		db           *sql.DB
		requests     verification.RequestStore
		receipts     verification.ReceiptStore
		credentials  credential.Store
		auditStore   audit.Store
		tx           verification.Tx
		healthChecks = map[string]httptransport.HealthChecker{}
	)

	switch {
	case cfg.PostgresURL != "":
		var err error
		db, err = postgres.Open(cfg.PostgresURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		requests = verification.NewPostgresRequestStore(db)
		receipts = verification.NewPostgresReceiptStore(db)
		credentials = credential.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		tx = newVerificationPostgresTx(db)
		healthChecks["postgres"] = pingChecker{db}
		log.Info("using postgres-backed stores")

	case cfg.Redis.URL != "":
		rdb, err := platformredis.New(cfg.Redis)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()

		// Redis holds the hot request state machine; receipts and the audit
		// trail stay in memory, and the demo credential set is seeded.
		requests = verification.NewRedisRequestStore(rdb.Client)
		memReceipts := verification.NewInMemoryReceiptStore()
		receipts = memReceipts
		memCreds := credential.NewInMemoryStore()
		memCreds.Seed(time.Now())
		credentials = memCreds
		auditStore = audit.NewInMemoryStore()
		tx = verification.NewInMemoryTx(requests, memReceipts)
		healthChecks["redis"] = rdb
		log.Info("using redis-backed request store")

	default:
		memRequests := verification.NewInMemoryRequestStore()
		memReceipts := verification.NewInMemoryReceiptStore()
		memCreds := credential.NewInMemoryStore()
		memCreds.Seed(time.Now())
		requests = memRequests
		receipts = memReceipts
		credentials = memCreds
		auditStore = audit.NewInMemoryStore()
		tx = verification.NewInMemoryTx(memRequests, memReceipts)
		log.Info("using in-memory stores with demo seed")
	}

	auditOpts := []audit.Option{
		audit.WithAsyncBuffer(256),
		audit.WithLogger(log),
	}
	var streamer *audit.KafkaStreamer
	if len(cfg.KafkaBrokers) > 0 {
		var err error
		streamer, err = audit.NewKafkaStreamer(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer streamer.Close()
		auditOpts = append(auditOpts, audit.WithStreamer(streamer))
		log.Info("streaming audit events to kafka", "topic", cfg.AuditTopic)
	}
	publisher := audit.NewPublisher(auditStore, auditOpts...)
	defer publisher.Close()

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, "trustlessid", "trustlessid-api")

	svc := verification.NewService(verification.ServiceConfig{
		Requests:      requests,
		Receipts:      receipts,
		Credentials:   credentials,
		Tokens:        tokens,
		Tx:            tx,
		Audit:         publisher,
		Logger:        log,
		Metrics:       metrics.New(),
		RequestTTL:    cfg.RequestTTL,
		ProofTokenTTL: cfg.ProofTokenTTL,
	})

	router := httptransport.NewRouter(httptransport.Deps{
		Verification: handler.New(svc, log),
		Logger:       log,
		HealthChecks: healthChecks,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting trustlessid server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// pingChecker adapts *sql.DB to the router's health check interface.
type pingChecker struct {
	db *sql.DB
}

func (p pingChecker) Health(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
