// main package for the voice-engine service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-engine/internal/audit"
	"github.com/book-expert/voice-engine/internal/cache"
	"github.com/book-expert/voice-engine/internal/config"
	"github.com/book-expert/voice-engine/internal/core"
	"github.com/book-expert/voice-engine/internal/engine"
	"github.com/book-expert/voice-engine/internal/objectstore"
	"github.com/book-expert/voice-engine/internal/registry"
	"github.com/book-expert/voice-engine/internal/validator"
	"github.com/book-expert/voice-engine/internal/worker"
)

const purgeInterval = time.Hour

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger %s: %w", fileName, err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "voice-engine-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "voice-engine.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsURL := cfg.NATS.URL
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	natsConnection, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.ObjectStoreBucket, 0)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	var resultCache engine.ResultCache

	if cfg.Features.CachingEnabled() {
		audioCache, cacheErr := openCache(jetstreamContext, cfg, log)
		if cacheErr != nil {
			return cacheErr
		}

		defer func() {
			closeErr := audioCache.Close()
			if closeErr != nil {
				log.Warn("Failed to close cache: %v", closeErr)
			}
		}()

		purgeCtx, cancelPurge := context.WithCancel(ctx)
		purgeDone := make(chan struct{})

		go func() {
			defer close(purgeDone)

			purgeLoop(purgeCtx, audioCache, log)
		}()

		defer func() {
			cancelPurge()
			<-purgeDone
		}()

		resultCache = audioCache
	}

	reg, err := registry.FromConfig(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build backend registry: %w", err)
	}

	eng := engine.New(
		reg,
		validator.New(validator.DefaultRuleset()),
		resultCache,
		newAuditLog(natsConnection, cfg, log),
		engine.OptionsFromConfig(cfg),
		log,
	)

	defaults := worker.Defaults{
		Voice:    cfg.DefaultVoice(),
		Tier:     core.Tier(cfg.Engine.DefaultTier),
		Validate: cfg.Features.ValidationEnabled(),
		Cache:    cfg.Features.CachingEnabled(),
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.TextProcessedSubject,
		cfg.NATS.AudioChunkCreatedSubject,
		store,
		eng,
		defaults,
		cfg.JobTimeout(),
		log,
	)

	log.System("Voice-Engine successfully initialized. Listening for jobs on subject: %s", cfg.NATS.TextProcessedSubject)

	err = natsWorker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker stopped: %w", err)
	}

	log.System("Voice-Engine shut down.")

	return nil
}

// openCache backs the cache with the NATS cache bucket when configured and
// with the cache directory otherwise.
func openCache(jetstreamContext nats.JetStreamContext, cfg *config.Config, log *logger.Logger) (*cache.Cache, error) {
	var store core.ObjectStore

	if cfg.NATS.CacheBucket != "" {
		bucket, err := objectstore.New(jetstreamContext, cfg.NATS.CacheBucket, cfg.CacheTTL())
		if err != nil {
			return nil, fmt.Errorf("failed to open cache bucket: %w", err)
		}

		store = bucket

		log.Info("Caching audio in NATS bucket %s", cfg.NATS.CacheBucket)
	} else {
		dir, err := cache.NewDirStore(cfg.Engine.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache directory: %w", err)
		}

		store = dir

		log.Info("Caching audio in %s", cfg.Engine.CacheDir)
	}

	audioCache, err := cache.New(store, cache.Options{
		TTL:              cfg.CacheTTL(),
		CompressionLevel: cfg.Engine.CacheCompressionLevel,
		Now:              time.Now,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return audioCache, nil
}

func newAuditLog(natsConnection *nats.Conn, cfg *config.Config, log *logger.Logger) *audit.Log {
	if !cfg.Features.AuditLoggingEnabled() {
		return audit.NewLog(cfg.Engine.AuditCapacity, log, audit.Disabled())
	}

	if cfg.NATS.AuditSubject == "" {
		return audit.NewLog(cfg.Engine.AuditCapacity, log)
	}

	log.Info("Publishing audit events to %s", cfg.NATS.AuditSubject)

	return audit.NewLog(cfg.Engine.AuditCapacity, log, audit.WithSink(audit.NewNatsSink(natsConnection, cfg.NATS.AuditSubject)))
}

// purgeLoop removes expired cache entries until ctx is cancelled.
func purgeLoop(ctx context.Context, audioCache *cache.Cache, log *logger.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeOnce(ctx, audioCache, log)
		}
	}
}

// purgeOnce runs one purge and logs the cache counters.
func purgeOnce(ctx context.Context, audioCache *cache.Cache, log *logger.Logger) {
	removed, err := audioCache.Purge(ctx)
	if err != nil {
		log.Warn("Cache purge failed: %v", err)
	} else if removed > 0 {
		log.Info("Purged %d expired cache entries", removed)
	}

	stats := audioCache.Stats()
	log.Info(
		"Cache stats: hits=%d misses=%d expired=%d writes=%d write_failures=%d",
		stats.Hits, stats.Misses, stats.Expired, stats.Writes, stats.WriteFailures,
	)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
