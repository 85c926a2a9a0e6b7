// main.go - entry point and router setup: wires structured logging,
// Prometheus metrics, a pgx-backed store, a Redis dedup guard, and the
// vision client behind a gin router with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/config"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/dedup"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/exporter"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/httpapi"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/orchestrator"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/preprocess"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/ratelimit"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/store"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/telemetry"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := telemetry.NewLogger(os.Getenv("GIN_MODE") != "release")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	pg, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPoolMaxConns, cfg.DBTransactionTimeout, log, metrics)
	if err != nil {
		log.Fatal("connecting to database", zap.Error(err))
	}
	defer pg.Close()

	partitions := store.NewPartitionMaintainer(pg, log, time.Duration(cfg.ArchivePartitionsOlderThanYears)*365*24*time.Hour, cfg.ArchiveJobCron)
	if err := partitions.Start(context.Background()); err != nil {
		log.Fatal("starting partition maintenance", zap.Error(err))
	}
	defer partitions.Stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	dedupGuard := dedup.New(redisClient, cfg.DuplicateCheckWindow)

	geminiLimiter := ratelimit.New(4, 250*time.Millisecond)
	visionClient, err := vision.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.ModelName,
		vision.RetryConfig{MaxAttempts: cfg.RetryAttempts, MinWait: cfg.RetryMinWait, MaxWait: cfg.RetryMaxWait},
		cfg.VisionDeadline, geminiLimiter, log)
	if err != nil {
		log.Fatal("creating vision client", zap.Error(err))
	}
	defer visionClient.Close()
	visionClient.WithMetrics(metrics)

	preprocessor := preprocess.New(preprocess.Options{
		Enable:       cfg.EnablePreprocessing,
		MaxDimension: cfg.MaxImageDimension,
	}, cfg.RasterDPI, nil)

	orch := orchestrator.New(preprocessor, visionClient, pg, dedupGuard, exporter.NopExporter{}, log, metrics, cfg.OrchestratorDeadline)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "invoice-vision-pipeline"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	httpapi.NewServer(router, orch, pg, log, cfg.AllowedOrigins, cfg.MaxUploadSizeBytes)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   3 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}
