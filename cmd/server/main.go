package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eeg-decoder-service/internal/adapters/primary/http/handlers"
	"eeg-decoder-service/internal/adapters/primary/http/middleware"
	"eeg-decoder-service/internal/adapters/secondary/kubernetes"
	"eeg-decoder-service/internal/adapters/secondary/postgres"
	"eeg-decoder-service/internal/adapters/secondary/prometheus"
	"eeg-decoder-service/internal/config"
	ports "eeg-decoder-service/internal/core/ports/output"
	"eeg-decoder-service/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	initLogger(cfg)

	// Create database pool
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("parse db config: %v", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		log.Fatalf("create db pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatalf("ping db: %v", err)
	}
	log.Info("database connection established")

	// ============================================================================
	// Hexagonal Architecture Wiring
	// ============================================================================

	// Secondary Adapters (Output Ports)
	decoderRepo := postgres.NewDecoderRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	predictionRepo := postgres.NewPredictionRepository(pool)

	collectors := prometheus.NewCollectors(promclient.DefaultRegisterer)

	// Decoder publisher (Optional - based on config)
	var publisher ports.DecoderPublisher
	if cfg.Kubernetes.Enabled {
		p, err := kubernetes.NewDecoderPublisher(&cfg.Kubernetes)
		if err != nil {
			log.Warnf("Kubernetes publisher init failed (continuing without K8s integration): %v", err)
		} else {
			publisher = p
			log.Info("Kubernetes decoder publisher initialized")
		}
	} else {
		log.Info("Kubernetes integration disabled")
	}

	// Prometheus query client (Optional - based on config)
	var prometheusClient ports.PrometheusClient
	if cfg.Prometheus.Enabled {
		prometheusClient = prometheus.NewPrometheusClient(&cfg.Prometheus)
		log.Info("Prometheus client initialized")
	} else {
		log.Info("Prometheus integration disabled")
	}

	// Core Services (Application Layer)
	decoderSvc := services.NewDecoderService(decoderRepo, sessionRepo, publisher, services.DecoderServiceConfig{
		Namespace:   cfg.Kubernetes.DefaultNS,
		Folds:       cfg.Pipeline.EvalFolds,
		EvalWorkers: cfg.Pipeline.EvalWorkers,
	})
	sessionSvc := services.NewSessionService(decoderRepo, sessionRepo, predictionRepo, collectors, services.SessionServiceConfig{
		QueueSize:        cfg.Pipeline.QueueSize,
		PredictionBuffer: cfg.Pipeline.PredictionBuffer,
		SubscriberBuffer: cfg.Pipeline.SubscriberBuffer,
		IdleTimeout:      cfg.Pipeline.IdleTimeout,
		FlushInterval:    cfg.Pipeline.FlushInterval,
		FlushBatch:       cfg.Pipeline.FlushBatch,
		StopTimeout:      cfg.Pipeline.StopTimeout,
	})
	metricsSvc := services.NewMetricsService(prometheusClient)

	sessionsCtx, stopSessions := context.WithCancel(context.Background())
	sessionsDone := make(chan struct{})
	go func() {
		defer close(sessionsDone)
		sessionSvc.Run(sessionsCtx)
	}()

	// Primary Adapter (HTTP Handlers)
	h := handlers.New(decoderSvc, sessionSvc, metricsSvc, cfg.Pipeline.MaxUploadBytes)

	// Setup router
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), middleware.Metrics(collectors), gin.Recovery())

	api := router.Group("/api/v1/eeg")
	h.RegisterRoutes(api)

	// Health check with DB ping
	router.GET("/healthz", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "active_sessions": sessionSvc.ActiveCount()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("server forced shutdown: %v", err)
	}

	// stop live sessions and flush their predictions before the pool closes
	stopSessions()
	<-sessionsDone

	log.Info("server stopped")
}

func initLogger(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
