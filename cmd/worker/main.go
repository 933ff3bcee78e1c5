package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dunamismax/printflow/internal/config"
	"github.com/dunamismax/printflow/internal/pipeline"
	"github.com/dunamismax/printflow/internal/raster"
	"github.com/dunamismax/printflow/internal/storage"
	"github.com/dunamismax/printflow/internal/store"
	"github.com/dunamismax/printflow/internal/telemetry"
	"github.com/dunamismax/printflow/internal/webhook"
	"github.com/dunamismax/printflow/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	shutdownTracing, err := telemetry.SetupTracing(startupCtx, telemetry.TraceConfig{
		ServiceName:   cfg.Telemetry.ServiceName,
		Component:     "worker",
		RasterBackend: raster.Backend(),
		Exporter:      cfg.Telemetry.Exporter,
		OTLPEndpoint:  cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:  cfg.Telemetry.OTLPInsecure,
		SampleRatio:   cfg.Telemetry.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Printf("tracing shutdown failed: %v", err)
		}
	}()

	if err := raster.Startup(); err != nil {
		logger.Fatalf("raster backend startup failed: %v", err)
	}
	defer raster.Shutdown()

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		Region:   cfg.Storage.Region,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatalf("storage client init failed: %v", err)
	}
	if err := storageClient.EnsureBucket(startupCtx); err != nil {
		logger.Fatalf("ensure bucket failed: %v", err)
	}

	jobStore, err := store.Open(startupCtx, cfg.Database.JobStore, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("job store init failed: %v", err)
	}
	defer func() {
		if err := jobStore.Close(); err != nil {
			logger.Printf("job store close error: %v", err)
		}
	}()

	processor, err := pipeline.NewObjectStoreProcessor(
		pipeline.Config{
			LongEdgeInches: cfg.Print.LongEdgeInches,
			MaxDimension:   cfg.Print.MaxDimension,
			MaxInputPixels: cfg.Print.MaxInputPixels,
		},
		logger,
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		pipeline.ObjectStoreEmitter{Storage: storageClient, OutputPrefix: pipeline.DefaultOutputPrefix},
	)
	if err != nil {
		logger.Fatalf("print processor init failed: %v", err)
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, processor, webhookClient, jobStore, jobStore)
	if err != nil {
		logger.Fatalf("worker init failed: %v", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_jobs=%d queue=%s redis=%s raster=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveJobs,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
		raster.Backend(),
	)

	// asynq's Run blocks until SIGTERM/SIGINT and drains in-flight tasks.
	if err := srv.Run(); err != nil {
		logger.Printf("worker stopped: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Printf("metrics shutdown failed: %v", err)
	}
}
