package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/printflow/internal/api"
	"github.com/dunamismax/printflow/internal/config"
	"github.com/dunamismax/printflow/internal/media"
	"github.com/dunamismax/printflow/internal/pipeline"
	"github.com/dunamismax/printflow/internal/queue"
	"github.com/dunamismax/printflow/internal/raster"
	"github.com/dunamismax/printflow/internal/ratelimit"
	"github.com/dunamismax/printflow/internal/screenshot"
	"github.com/dunamismax/printflow/internal/storage"
	"github.com/dunamismax/printflow/internal/store"
	"github.com/dunamismax/printflow/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	shutdownTracing, err := telemetry.SetupTracing(startupCtx, telemetry.TraceConfig{
		ServiceName:   cfg.Telemetry.ServiceName,
		Component:     "api",
		RasterBackend: raster.Backend(),
		Exporter:      cfg.Telemetry.Exporter,
		OTLPEndpoint:  cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:  cfg.Telemetry.OTLPInsecure,
		SampleRatio:   cfg.Telemetry.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	if err := raster.Startup(); err != nil {
		logger.Fatalf("raster backend startup failed: %v", err)
	}
	defer raster.Shutdown()
	logger.Printf("raster backend=%s", raster.Backend())

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	jobStore, err := store.Open(startupCtx, cfg.Database.JobStore, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("job store init failed: %v", err)
	}
	defer func() {
		if err := jobStore.Close(); err != nil {
			logger.Printf("job store close error: %v", err)
		}
	}()
	logger.Printf("job store=%s", cfg.Database.JobStore)

	deps := api.Deps{
		Queue: queueClient,
		Jobs:  jobStore,
	}

	// Async print jobs need object storage; synchronous endpoints keep
	// working without it.
	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		Region:   cfg.Storage.Region,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err == nil {
		err = storageClient.EnsureBucket(startupCtx)
	}
	if err != nil {
		logger.Printf("object storage unavailable, print jobs disabled err=%v", err)
	} else {
		deps.Storage = storageClient
	}

	if cfg.API.RateLimitEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.API.RateLimitCapacity, cfg.API.RateLimitWindow, ratelimit.DefaultKeyPrefix)
		if err != nil {
			logger.Fatalf("rate limiter init failed: %v", err)
		}
		deps.RateLimiter = limiter
	}

	extractor := media.NewExtractor(media.Config{
		FFmpegPath:    cfg.Media.FFmpegPath,
		FFprobePath:   cfg.Media.FFprobePath,
		ScratchDir:    cfg.Media.ScratchDir,
		FetchTimeout:  cfg.Media.FetchTimeout,
		MaxVideoBytes: cfg.Media.MaxVideoBytes,
		Logger:        logger,
	})
	deps.Prober = extractor
	deps.Screenshots = screenshot.NewService(extractor, logger).WithThumbnailWidth(cfg.Screenshot.BatchThumbnailWidth)
	deps.Processor = pipeline.NewProcessor(pipeline.Config{
		LongEdgeInches: cfg.Print.LongEdgeInches,
		MaxDimension:   cfg.Print.MaxDimension,
		MaxInputPixels: cfg.Print.MaxInputPixels,
	}, logger)

	app := api.NewServer(logger, deps, api.Options{
		MaxBodyBytes:   cfg.API.MaxBodyBytes,
		PresignTTL:     cfg.API.PresignTTL,
		DefaultDPI:     cfg.Print.DefaultDPI,
		DefaultQuality: cfg.Screenshot.DefaultQuality,
		UserIDHeader:   cfg.API.RateLimitUserIDHeader,
	})

	// The write budget covers a full video fetch plus a high-DPI render.
	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Media.FetchTimeout + 60*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}
