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

	"payerhub/internal/audit"
	"payerhub/internal/collaborators"
	"payerhub/internal/consent"
	"payerhub/internal/events"
	"payerhub/internal/pipeline"
	"payerhub/internal/platform/config"
	"payerhub/internal/platform/httpserver"
	"payerhub/internal/platform/kafka"
	"payerhub/internal/platform/kafka/consumer"
	"payerhub/internal/platform/kafka/producer"
	"payerhub/internal/platform/logger"
	"payerhub/internal/platform/metrics"
	"payerhub/internal/platform/middleware"
	"payerhub/internal/platform/postgres"
	"payerhub/internal/platform/redis"
	"payerhub/internal/privacy"
	httptransport "payerhub/internal/transport/http"
)

// dbHealth adapts *sql.DB to the transport's health checker.
type dbHealth struct {
	db *sql.DB
}

func (h dbHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// main wires infrastructure and hands the pipeline its collaborators. All
// business logic lives under internal/; this file only builds the object
// graph and manages the process lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	rdb, err := redis.New(cfg.Redis())
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	m := metrics.New()

	prod, err := producer.New(cfg.KafkaBrokers, log)
	if err != nil {
		log.Error("failed to create kafka producer", "error", err)
		os.Exit(1)
	}
	defer prod.Close()
	if err := kafka.EnsureTopics(ctx, prod.Client(), events.AllTopics()); err != nil {
		log.Error("failed to ensure kafka topics", "error", err)
		os.Exit(1)
	}

	bus := events.NewKafkaBus(prod, log, m)

	auditLog, err := audit.NewLog(audit.NewPostgres(db), log, audit.WithMetrics(m))
	if err != nil {
		log.Error("failed to build audit log", "error", err)
		os.Exit(1)
	}

	consents, err := consent.NewService(consent.NewPostgres(db), cfg.ConsentTTL, log)
	if err != nil {
		log.Error("failed to build consent service", "error", err)
		os.Exit(1)
	}

	gate, err := privacy.NewGate(consents, auditLog, log)
	if err != nil {
		log.Error("failed to build privacy gate", "error", err)
		os.Exit(1)
	}

	registry := pipeline.NewRegistry()
	orchestrator, err := pipeline.New(pipeline.Deps{
		OCR:         collaborators.LocalOCR{},
		Extractor:   collaborators.LocalExtractor{},
		Anomalies:   collaborators.LocalAnomalyDetector{},
		Converter:   collaborators.LocalConverter{},
		Hub:         collaborators.LocalHub{},
		Gate:        gate,
		Bus:         bus,
		Registry:    registry,
		Logger:      log,
		Metrics:     m,
		MaxInFlight: cfg.PipelineMaxConcurrent,
	})
	if err != nil {
		log.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	// The downstream consumer observes the pipeline's own event stream:
	// errors are surfaced in the service log, everything else is traced at
	// debug. Deployments with dedicated downstream services replace these
	// routes.
	var seen events.IdempotencyCache
	if rdb != nil {
		seen = events.NewRedisIdempotencyCache(rdb.Client, 0)
	}
	dispatcher := events.NewDispatcher(events.Routes{
		events.TypeErrorOccurred: {events.HandlerFunc(func(_ context.Context, event events.Event) error {
			log.Error("pipeline error event",
				"event_id", event.EventID,
				"correlation_id", event.CorrelationID,
				"data", event.Data,
			)
			return nil
		})},
		events.TypeAnomalyDetected: {events.HandlerFunc(func(_ context.Context, event events.Event) error {
			if isAnomaly, _ := event.Data["is_anomaly"].(bool); isAnomaly {
				log.Warn("anomaly event observed",
					"event_id", event.EventID,
					"correlation_id", event.CorrelationID,
					"anomaly_type", event.Data["anomaly_type"],
				)
			}
			return nil
		})},
	}, bus, seen, log)

	cons, err := consumer.New(cfg.KafkaBrokers, cfg.ConsumerGroup, events.AllTopics(), dispatcher, log)
	if err != nil {
		log.Error("failed to create kafka consumer", "error", err)
		os.Exit(1)
	}
	defer cons.Close()
	go func() {
		if err := cons.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("consumer loop stopped", "error", err)
		}
	}()

	health := []httptransport.HealthChecker{dbHealth{db}}
	if rdb != nil {
		health = append(health, rdb)
	}
	handler := httptransport.NewHandler(orchestrator, registry, consents, auditLog, health, log)
	router := httptransport.NewRouter(handler, middleware.NewHS256Validator(cfg.JWTSigningKey))

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting payerhub-core", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
