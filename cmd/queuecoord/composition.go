package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/waitline/queuecoord/internal/audit"
	"github.com/waitline/queuecoord/internal/auth"
	"github.com/waitline/queuecoord/internal/channel/externalmsg"
	"github.com/waitline/queuecoord/internal/channel/realtime"
	"github.com/waitline/queuecoord/internal/channel/webpush"
	"github.com/waitline/queuecoord/internal/clock"
	"github.com/waitline/queuecoord/internal/config"
	"github.com/waitline/queuecoord/internal/httpapi"
	"github.com/waitline/queuecoord/internal/metrics"
	"github.com/waitline/queuecoord/internal/notify"
	"github.com/waitline/queuecoord/internal/persistence/postgres"
	"github.com/waitline/queuecoord/internal/queue"
	"github.com/waitline/queuecoord/internal/ratelimit"
	"github.com/waitline/queuecoord/internal/resilience"
	"github.com/waitline/queuecoord/internal/sweeper"
	"github.com/waitline/queuecoord/internal/verification"
)

// app is every long-lived collaborator the composition root wires
// together, shared between the serve and sweep-once commands.
type app struct {
	cfg     config.Config
	db      *sqlx.DB
	service *queue.Service
	hub     *realtime.Hub

	noShowSweeper     *sweeper.Runner
	pendingVerSweeper *sweeper.Runner

	httpServer *httpapi.Server
	reg        *prometheus.Registry
}

// buildApp wires every collaborator from cfg. Callers are responsible for
// closing the returned app's db connection.
func buildApp(cfg config.Config, log zerolog.Logger) (*app, error) {
	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	clk := clock.Real()

	queueRepo := postgres.NewQueueRepository(db)
	venueRepo := postgres.NewVenueRepository(db)
	userRepo := postgres.NewUserRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	reputationStore := postgres.NewReputationStore(db)
	pushRepo := postgres.NewPushSubscriptionRepository(db)

	auditWriter := audit.NewLoggingWriter(auditRepo, log)

	history := queue.NewVerificationHistory(queueRepo, auditRepo)
	verifier := verification.New(reputationStore, history)

	breakers := resilience.NewManager()
	var buffer realtime.OfflineBuffer = resilience.NewOfflineBuffer(nil)
	if cfg.RedisAddr != "" {
		buffer = resilience.NewRedisOfflineBuffer(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	}
	hub := realtime.NewHub(buffer, func(userID string) []string {
		ids, err := venueRepo.OwnedVenueIDs(context.Background(), userID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("queuecoord: failed to resolve owned venues for broadcast")
			return nil
		}
		return ids
	})

	var extMsgSender notify.ExternalMsgChannel
	if cfg.ExternalMsgEndpoint != "" {
		extMsgSender = externalmsg.NewHTTPSender(cfg.ExternalMsgEndpoint, cfg.ExternalMsgAPIKey, cfg.ExternalMsgDefaultCC)
	}

	var pushSender notify.PushChannel
	if cfg.WebPushVAPIDPrivateKey != "" {
		signer, err := webpush.NewVAPIDSigner(cfg.WebPushSubject, cfg.WebPushVAPIDPublicKey, cfg.WebPushVAPIDPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("build webpush signer: %w", err)
		}
		pushSender = webpush.NewSender(pushRepo, signer)
	}

	dispatcher := notify.New(hub, extMsgSender, pushSender, breakers, auditWriter, log)

	svc := queue.NewService(queueRepo, reputationStore, verifier, auditWriter, dispatcher, hub, venueRepo, userRepo, nil, log)

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(reg)

	noShowSweeper := sweeper.NewNoShowRunner(queueRepo, svc, clk, log, metricsRegistry, cfg.NoShowSweepInterval)
	pendingVerSweeper := sweeper.NewPendingVerificationRunner(queueRepo, svc, clk, log, metricsRegistry, cfg.PendingVerificationSweepInterval)

	tokenVerifier, err := auth.NewJWTVerifier(cfg.BearerSigningSecret)
	if err != nil {
		return nil, fmt.Errorf("build token verifier: %w", err)
	}

	var limitBackend ratelimit.Backend = ratelimit.NewLocalBackend()
	var redisHealth httpapi.RedisPinger
	if cfg.RedisAddr != "" {
		redisBackend := ratelimit.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
		limitBackend = redisBackend
		redisHealth = redisBackend
	}
	limits := ratelimit.NewLimits(limitBackend)

	deps := httpapi.Dependencies{
		Service:    svc,
		Reputation: reputationStore,
		History:    auditRepo,
		Limits:     limits,
		Verifier:   tokenVerifier,
		Hub:        hub,
		PushStore:  pushRepo,
		PushPutter: pushRepo,
		DB:         db,
		Redis:      redisHealth,
		Breakers:   breakers,
		Log:        log,
	}
	httpServer := httpapi.NewServer(httpapi.DefaultConfig(cfg.HTTPAddr), deps, log)
	httpServer.Router().Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)

	return &app{
		cfg:               cfg,
		db:                db,
		service:           svc,
		hub:               hub,
		noShowSweeper:     noShowSweeper,
		pendingVerSweeper: pendingVerSweeper,
		httpServer:        httpServer,
		reg:               reg,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
