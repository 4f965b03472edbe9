package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/database"
	"github.com/mediaforge/mediaforge/internal/engine"
	"github.com/mediaforge/mediaforge/internal/events"
	"github.com/mediaforge/mediaforge/internal/logger"
	"github.com/mediaforge/mediaforge/internal/media"
	"github.com/mediaforge/mediaforge/internal/pipeline"
	"github.com/mediaforge/mediaforge/internal/server"
	"github.com/mediaforge/mediaforge/internal/storage"
	"github.com/mediaforge/mediaforge/internal/streaming"
)

func main() {
	configPath := os.Getenv("MEDIAFORGE_CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat("./mediaforge.yaml"); err == nil {
			configPath = "./mediaforge.yaml"
		}
	}
	if err := config.Load(configPath); err != nil {
		logger.Init(logger.Options{})
		logger.Root().Error("failed to load configuration", "path", configPath, "error", err)
		os.Exit(1)
	}
	cfg := config.Get()

	logger.Init(logger.Options{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON})
	log := logger.Root()
	log.Info("starting mediaforge", "config", configPath)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		log.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	store, err := buildBlobStore(cfg)
	if err != nil {
		log.Error("failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus(log)
	prober := media.NewProber(cfg.Transcoding.FFprobePath, log)
	runner := engine.NewRunner(log)
	eng := engine.New(cfg.Transcoding, runner, prober, store, log)
	jobStore := pipeline.NewJobStore(db, log)
	backoff := pipeline.BackoffFromConfig(cfg.Queue)
	scheduler := pipeline.NewScheduler(cfg.Queue, jobStore, eng, bus, backoff, log)
	optimizer := streaming.NewOptimizer(cfg.CDN, log)
	load := pipeline.NewLoadMonitor(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Jobs interrupted by the previous run go back to the queue.
	if err := scheduler.Resume(); err != nil {
		log.Error("failed to resume incomplete jobs", "error", err)
		os.Exit(1)
	}

	jobStore.StartRetentionSweep(ctx, time.Duration(cfg.Queue.RetentionDays)*24*time.Hour)
	startCleanupLoop(ctx, eng)

	if cfg.Ingest.Enabled {
		watcher, err := pipeline.NewWatcher(cfg.Ingest, scheduler, log)
		if err != nil {
			log.Error("failed to start ingest watcher", "error", err)
			os.Exit(1)
		}
		watcher.Start(ctx)
	}

	mediaDir := ""
	if cfg.Storage.Backend == "local" {
		mediaDir = cfg.Storage.LocalDir
	}
	srv := server.New(cfg.Server, scheduler, optimizer, bus, load, mediaDir, log)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown error", "error", err)
		}
		scheduler.Shutdown()
		eng.Shutdown()
		bus.Close()
		cancel()
	}()

	if err := srv.Start(); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("shutdown complete")
}

func buildBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	if cfg.Storage.Backend == "s3" {
		return storage.NewS3Store(context.Background(), cfg.Storage.S3Bucket, cfg.Storage.S3Region, logger.Named("storage"))
	}
	return storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL, logger.Named("storage"))
}

// startCleanupLoop prunes stale temp artifacts hourly.
func startCleanupLoop(ctx context.Context, eng *engine.Engine) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eng.Cleanup(24 * time.Hour)
			}
		}
	}()
}
